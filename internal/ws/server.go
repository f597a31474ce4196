package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chitbidgo/internal/finance"
	"chitbidgo/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 12 * time.Second
	pingPeriod = 3 * time.Second // must be < pongWait

	readLimit = 1024
)

var ErrNotJoined = errors.New("join the room first")

// UserLookup resolves the display name of a connecting viewer.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (finance.User, error)
}

type WsServer struct {
	hub                *Hub
	router             *Router
	upgrader           websocket.Upgrader
	auctionSvc         auction.IAuctionService
	users              UserLookup
	requireEligibility bool
}

func NewWsServer(h *Hub, auctionSvc auction.IAuctionService, users UserLookup, requireEligibility bool) *WsServer {
	srv := &WsServer{
		hub:    h,
		router: NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of the engine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		auctionSvc:         auctionSvc,
		users:              users,
		requireEligibility: requireEligibility,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle upgrades GET /ws?user_id=... . The viewer gets a snapshot right
// away and every broadcast after that; bidding needs "auction/join" first.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	userID := ginCtx.Query("user_id")
	if userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	user, err := s.users.GetUser(ginCtx.Request.Context(), userID)
	if errors.Is(err, finance.ErrUserNotFound) {
		ginCtx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		zap.L().Error("ws.user_lookup", zap.String("user_id", userID), zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(readLimit)

	// ─────────────────── Client joined ────────────────────────
	wsConn := newClientConn(rawConn)
	s.hub.add(wsConn)

	if err := wsConn.writeJSON(outFrame{Event: EventSnapshot, Body: s.snapshot(ginCtx.Request.Context())}); err != nil {
		zap.L().Warn("ws.snapshot", zap.Error(err))
	}

	cc := &ConnContext{UserID: user.ID, Name: user.Name, Server: s}
	go s.reader(cc, wsConn)
	go s.pinger(wsConn)
}

// Run relays auction events to every connected viewer until ctx is done.
func (s *WsServer) Run(ctx context.Context) error {
	events, cancel := s.subscribe(ctx)
	defer cancel()
	return s.pump(ctx, events)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 auction/join ---------------------------------------------------------
	Register(
		s.router,
		EventJoin,
		func(ctx context.Context, cc *ConnContext, req JoinRequest) (JoinAck, error) {
			if !s.auctionSvc.JoinRoom(ctx, req.RoomCode) {
				return JoinAck{}, auction.ErrRoomCodeMismatch
			}
			cc.Joined = true
			return JoinAck{Joined: true}, nil
		},
	)

	// 🔹 auction/bid ----------------------------------------------------------
	Register(
		s.router,
		EventBid,
		func(ctx context.Context, cc *ConnContext, req BidRequest) (AckBody, error) {
			if !cc.Joined {
				return AckBody{}, ErrNotJoined
			}
			if s.requireEligibility {
				ok, err := s.auctionSvc.CanBid(ctx, cc.UserID, "")
				if err != nil {
					return AckBody{}, err
				}
				if !ok {
					return AckBody{}, auction.ErrNotEligible
				}
			}
			err := s.auctionSvc.PlaceBid(ctx, cc.UserID, cc.Name, req.Increment)
			return AckBody{}, err
		},
	)

	// 🔹 auction/get-state ----------------------------------------------------
	Register(
		s.router,
		EventGetState,
		func(ctx context.Context, _ *ConnContext, _ struct{}) (SnapshotBody, error) {
			return s.snapshot(ctx), nil
		},
	)
}

func (s *WsServer) snapshot(ctx context.Context) SnapshotBody {
	return SnapshotBody{Config: s.auctionSvc.GetConfig(ctx), State: s.auctionSvc.GetState(ctx)}
}

// subscribe queues service events; broadcasting happens on the pump
// goroutine so mutators never wait on socket I/O.
func (s *WsServer) subscribe(ctx context.Context) (<-chan auction.Event, func()) {
	events := make(chan auction.Event, 256)
	cancel := s.auctionSvc.Subscribe(func(e auction.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	return events, cancel
}

func (s *WsServer) pump(ctx context.Context, events <-chan auction.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			msg, err := json.Marshal(frameFor(e))
			if err != nil {
				zap.L().Error("ws.encode", zap.String("kind", string(e.Kind)), zap.Error(err))
				continue
			}
			s.hub.broadcast(msg)
		}
	}
}

func (s *WsServer) reader(cc *ConnContext, conn *clientConn) {
	defer s.hub.remove(conn)

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			_ = conn.writeJSON(outFrame{Event: EventError, Body: ErrorBody{Error: err.Error()}})
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		_ = conn.writeJSON(outFrame{Event: env.Event + "-ack", Body: res})
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.write(websocket.PingMessage, nil); err != nil {
				s.hub.remove(conn)
				return
			}
		}
	}
}
