package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chitbidgo/internal/http/auctionhandler"
	"chitbidgo/internal/metrics"
	"chitbidgo/internal/ws"

	swaggerfilesv2 "github.com/abrar71/swaggerfilesv2" // swagger embed files
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type httpServer struct {
	listenPort  uint16
	srv         *http.Server
	ln          net.Listener
	handler     *auctionhandler.Handler
	wsSrv       *ws.WsServer
	corsOrigins []string
	ctx         context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer,
	handler *auctionhandler.Handler, corsOrigins []string) *httpServer {

	h := &httpServer{
		listenPort:  listenPort,
		wsSrv:       wsSrv,
		handler:     handler,
		corsOrigins: corsOrigins,
		ctx:         ctx,
	}
	h.srv = &http.Server{
		Handler:           h.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// routes builds the engine wrapped in the CORS layer.
func (h *httpServer) routes() http.Handler {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))
	routerEngine.Use(metrics.Middleware())

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	routerEngine.GET("/metrics", gin.WrapH(metrics.Handler()))
	routerEngine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// websocket endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST API
	h.handler.Register(routerEngine)

	return cors.New(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Admin-Token"},
	}).Handler(routerEngine)
}

// Start serves until Dispose is called; it then returns nil.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http_listen", zap.String("addr", listenAddr))

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish.
func (h *httpServer) Dispose() error {
	// The parent context is usually already cancelled at this point.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err // e.g. active conns didn’t finish in time
	}
	return nil
}
