package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bookshelf/internal/favorites"
	"bookshelf/internal/models"
	"bookshelf/internal/render"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBuffer  = 8
	maxReadSize = 512
)

var _ favorites.Notifier = (*Hub)(nil)

// Hub pushes re-rendered favorites panels to every websocket subscribed to
// the key that changed.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[string]map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		logger:   logger,
		clients:  make(map[string]map[*wsClient]struct{}),
	}
}

// Refresh renders c once and queues it for every subscriber of key. A
// subscriber whose queue is full is dropped.
func (h *Hub) Refresh(_ context.Context, key string, c models.Collection) {
	page, err := render.PanelHTML(c)
	if err != nil {
		h.logger.Error("render favorites panel", zap.String("key", key), zap.Error(err))
		return
	}
	msg := []byte(page)

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients[key] {
		select {
		case cl.send <- msg:
		default:
			h.logger.Warn("dropping slow panel subscriber", zap.String("key", key))
			h.dropLocked(key, cl)
		}
	}
}

// Subscribers reports how many sockets listen on key.
func (h *Hub) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[key])
}

// Serve upgrades the request and streams panels for key until the peer goes
// away. The first message is built from load. Once the hub is closed new
// subscribers are turned away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, key string, load func(context.Context) models.Collection) {
	if h.isClosed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cl := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	// Registering and loading under the lock keeps a concurrent Refresh from
	// being queued ahead of the older initial panel.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	if h.clients[key] == nil {
		h.clients[key] = make(map[*wsClient]struct{})
	}
	h.clients[key][cl] = struct{}{}
	if page, err := render.PanelHTML(load(r.Context())); err == nil {
		cl.send <- []byte(page)
	}
	h.mu.Unlock()

	h.logger.Debug("panel subscriber connected", zap.String("key", key))

	done := make(chan struct{})
	go func() {
		defer close(done)
		cl.writeLoop()
	}()
	cl.readLoop()

	h.mu.Lock()
	h.dropLocked(key, cl)
	h.mu.Unlock()
	<-done

	h.logger.Debug("panel subscriber disconnected", zap.String("key", key))
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for key, set := range h.clients {
		for cl := range set {
			h.dropLocked(key, cl)
		}
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) dropLocked(key string, cl *wsClient) {
	set, ok := h.clients[key]
	if !ok {
		return
	}
	if _, ok := set[cl]; !ok {
		return
	}
	delete(set, cl)
	if len(set) == 0 {
		delete(h.clients, key)
	}
	close(cl.send)
}

// readLoop discards client messages and returns once the connection fails.
func (c *wsClient) readLoop() {
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
