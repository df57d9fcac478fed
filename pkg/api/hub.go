package api

import (
	"context"
	"net/http"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/scheduler"
	"github.com/NotCoffee418/panel_bridge/pkg/telemetry"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 20 * time.Second
)

// Hub fans job updates out to websocket clients. Only Run writes data
// frames, so each connection has a single writer.
type Hub struct {
	upgrader     websocket.Upgrader
	clients      *xsync.MapOf[*websocket.Conn, struct{}]
	metrics      *telemetry.Metrics
	logger       logger.Logger
	pingInterval time.Duration
}

func NewHub(metrics *telemetry.Metrics, log logger.Logger) *Hub {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:      xsync.NewMapOf[*websocket.Conn, struct{}](),
		metrics:      metrics,
		logger:       log.With("component", "hub"),
		pingInterval: pingInterval,
	}
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int {
	return h.clients.Size()
}

// Run broadcasts every update from sub until ctx is done, then closes all
// clients.
func (h *Hub) Run(ctx context.Context, sub *scheduler.Subscription) {
	defer sub.Close()
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-sub.Done():
			h.closeAll()
			return
		case job := <-sub.C():
			h.broadcast(websocket.TextMessage, job.ToJsonBytes())
		case <-ticker.C:
			h.broadcast(websocket.PingMessage, nil)
		}
	}
}

func (h *Hub) broadcast(messageType int, data []byte) {
	h.clients.Range(func(conn *websocket.Conn, _ struct{}) bool {
		var err error
		if messageType == websocket.PingMessage {
			err = conn.WriteControl(websocket.PingMessage, data, time.Now().Add(writeWait))
		} else {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(messageType, data)
		}
		if err != nil {
			h.logger.Debug("dropping websocket client", "remote", conn.RemoteAddr().String(), "error", err)
			h.remove(conn)
		}
		return true
	})
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away. Incoming messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.clients.Store(conn, struct{}{})
	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	h.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	if _, loaded := h.clients.LoadAndDelete(conn); !loaded {
		return
	}
	if h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
	conn.Close()
}

func (h *Hub) closeAll() {
	h.clients.Range(func(conn *websocket.Conn, _ struct{}) bool {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			time.Now().Add(writeWait))
		h.remove(conn)
		return true
	})
}
