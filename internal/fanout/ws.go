package fanout

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/artbid/auction-engine/internal/metrics"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// wsConn adapts a gorilla connection to the hub's Conn interface. A mutex
// serializes writes (gorilla allows one concurrent writer) and every write
// carries a deadline so a stalled peer fails fast instead of wedging a
// broadcast.
type wsConn struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	sendTimeout time.Duration
	closeOnce   sync.Once
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

// WSHandler upgrades HTTP requests into hub subscriptions.
//
// Query parameters select scopes: auction_id (repeatable) subscribes to
// those auctions' updates, feed=1 to the global feed, user_id to that
// user's personal notifications. Any combination is allowed.
type WSHandler struct {
	hub         *Hub
	sendTimeout time.Duration
}

// NewWSHandler creates the websocket endpoint handler.
func NewWSHandler(hub *Hub, sendTimeout time.Duration) *WSHandler {
	return &WSHandler{hub: hub, sendTimeout: sendTimeout}
}

// ServeHTTP handles GET /api/v1/ws.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	conn := &wsConn{conn: raw, sendTimeout: h.sendTimeout}

	q := r.URL.Query()
	auctionIDs := q["auction_id"]
	userID := q.Get("user_id")
	wantFeed := q.Get("feed") == "1" || q.Get("feed") == "true"

	for _, id := range auctionIDs {
		h.hub.SubscribeAuction(id, conn)
	}
	if wantFeed {
		h.hub.SubscribeFeed(conn)
	}
	if userID != "" {
		h.hub.SubscribeUser(userID, conn)
	}

	metrics.WebSocketClients.Inc()
	slog.Info("ws client connected",
		"auctions", len(auctionIDs), "feed", wantFeed, "user_id", userID)

	// Read pump: detects close and half-open connections. Teardown is
	// driven by the transport close, never inferred from inactivity alone;
	// the ping/pong deadline below catches half-open sockets.
	go func() {
		defer func() {
			h.hub.Drop(conn)
			metrics.WebSocketClients.Dec()
			slog.Info("ws client disconnected", "user_id", userID)
		}()
		raw.SetReadDeadline(time.Now().Add(pongWait))
		raw.SetPongHandler(func(string) error {
			raw.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies and to
	// surface half-open peers.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.ping(); err != nil {
				return
			}
		}
	}()
}
