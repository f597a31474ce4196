package ws

import (
	"sync"

	"chitbidgo/internal/metrics"

	"github.com/gorilla/websocket"
)

// Hub keeps the set of connected viewers. Every viewer receives auction
// broadcasts; joining the room only unlocks bidding.
type Hub struct {
	mu    sync.RWMutex
	conns map[*clientConn]struct{}
}

func NewHub() *Hub { return &Hub{conns: map[*clientConn]struct{}{}} }

func (h *Hub) add(c *clientConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
}

func (h *Hub) remove(c *clientConn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	c.close()
}

func (h *Hub) broadcast(msg []byte) {
	// Take a quick snapshot of the current connections
	h.mu.RLock()
	conns := make([]*clientConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	// Do the I/O outside the lock
	var failed []*clientConn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.remove(c)
	}
}
