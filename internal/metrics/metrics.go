// Package metrics provides Prometheus instrumentation for the auction service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsTotal counts bid attempts by outcome ("accepted" or the rejection).
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chit_bids_total",
		Help: "Bid attempts by result",
	}, []string{"result"})

	// RoundsSettled counts settlements by outcome ("winner", "no_winner").
	RoundsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chit_rounds_settled_total",
		Help: "Settled auction rounds",
	}, []string{"outcome"})

	CurrentLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chit_current_loss",
		Help: "Aggregate loss of the active round",
	})

	SecondsLeft = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chit_seconds_left",
		Help: "Seconds until the active round closes",
	})

	// SyncMerges counts snapshots merged from other viewers.
	SyncMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chit_sync_merges_total",
		Help: "Remote snapshots merged, by key and result",
	}, []string{"key", "result"})

	StoreWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chit_store_write_errors_total",
		Help: "Failed writes to the shared store",
	}, []string{"key"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chit_websocket_clients",
		Help: "Connected WebSocket viewers",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chit_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chit_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The route pattern is used as the path
// label to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
