package cart

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	cartstore "encore.app/pkg/cart"
	"encore.app/pkg/config"
	"encore.app/pkg/logger"
	"encore.app/pkg/metrics"
)

// EventType identifies a realtime cart event.
type EventType string

const (
	EventTotalsApplied   EventType = "totals_applied"
	EventReconcileFailed EventType = "reconcile_failed"
	EventCartUpdated     EventType = "cart_updated"
	EventHeartbeat       EventType = "heartbeat"
)

// CartEvent is one realtime message pushed to a session's connections.
type CartEvent struct {
	EventType EventType   `json:"event"`
	Data      interface{} `json:"data"`
}

// wsClient is one connected WebSocket for a session.
type wsClient struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

func (c *wsClient) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub fans cart updates out to the WebSocket connections of each
// session.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{} // sessionID -> clients
	nextID  int
}

// NewHub creates a hub and starts its heartbeat loop.
func NewHub() *Hub {
	h := &Hub{clients: make(map[string]map[*wsClient]struct{})}
	go h.heartbeatLoop()
	return h
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WSConnections.Inc()
}

// ConnectionCount reports the number of connected clients across all
// sessions, used to enforce the configured connection cap.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.sessionID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			metrics.WSConnections.Dec()
		}
		if len(set) == 0 {
			delete(h.clients, c.sessionID)
		}
	}
	h.mu.Unlock()
}

// BroadcastView pushes a fresh cart view to the session's connections.
// The event type distinguishes applied totals from soft failures so
// clients can surface the advisory state.
func (h *Hub) BroadcastView(view *cartstore.View) {
	event := &CartEvent{EventType: EventTotalsApplied, Data: view}
	if view.PricingError != "" {
		event.EventType = EventReconcileFailed
	} else if view.Totals == nil {
		event.EventType = EventCartUpdated
	}
	h.broadcast(view.SessionID, event)
}

func (h *Hub) broadcast(sessionID string, event *CartEvent) {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[sessionID]))
	for c := range h.clients[sessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(event)
	}
}

func (h *Hub) heartbeatLoop() {
	interval := 30 * time.Second
	if settings := config.GetSettings(); settings != nil && settings.WSHeartbeatInterval > 0 {
		interval = time.Duration(settings.WSHeartbeatInterval) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		event := &CartEvent{
			EventType: EventHeartbeat,
			Data:      map[string]interface{}{"timestamp": time.Now().UTC().Unix()},
		}
		h.mu.RLock()
		targets := make([]*wsClient, 0)
		for _, set := range h.clients {
			for c := range set {
				targets = append(targets, c)
			}
		}
		h.mu.RUnlock()

		for _, c := range targets {
			c.send(event)
		}
	}
}

func (c *wsClient) send(event *CartEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(event); err != nil {
		c.markDone()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWebSocket streams cart events for one session. The session is
// taken from the `session` query parameter or the X-Cart-Session
// header.
//
//encore:api public raw method=GET path=/cart/ws
func HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	started := time.Now()

	sessionID := req.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = req.Header.Get("X-Cart-Session")
	}
	if sessionID == "" {
		http.Error(w, "session required", http.StatusBadRequest)
		metrics.ObserveHTTPRequest(req.Method, "/cart/ws", "400", started)
		return
	}

	settings := config.GetSettings()
	if settings != nil && !settings.WSEnabled {
		http.Error(w, "realtime disabled", http.StatusServiceUnavailable)
		metrics.ObserveHTTPRequest(req.Method, "/cart/ws", "503", started)
		return
	}

	s := getService()
	if s == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		metrics.ObserveHTTPRequest(req.Method, "/cart/ws", "503", started)
		return
	}

	if settings != nil && settings.WSMaxConnections > 0 && s.hub.ConnectionCount() >= settings.WSMaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		metrics.ObserveHTTPRequest(req.Method, "/cart/ws", "503", started)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn(req.Context(), "websocket upgrade failed", logger.Fields{"error": err.Error()})
		metrics.ObserveHTTPRequest(req.Method, "/cart/ws", "400", started)
		return
	}
	defer conn.Close()
	metrics.ObserveHTTPRequest(req.Method, "/cart/ws", "101", started)

	s.hub.mu.Lock()
	s.hub.nextID++
	id := fmt.Sprintf("ws-%d", s.hub.nextID)
	s.hub.mu.Unlock()

	client := &wsClient{
		id:        id,
		sessionID: sessionID,
		conn:      conn,
		done:      make(chan struct{}),
	}
	s.hub.register(client)
	defer s.hub.unregister(client)

	// Push the current state immediately, refreshing totals for carts
	// that were rehydrated while offline.
	if store, err := s.manager.Get(req.Context(), sessionID); err == nil {
		view := store.Refresh(req.Context())
		client.send(&CartEvent{EventType: EventCartUpdated, Data: view})
	}

	go readPump(client)

	select {
	case <-req.Context().Done():
	case <-client.done:
	}
}

// readPump drains incoming frames to keep the connection's read side
// alive and detects disconnects.
func readPump(c *wsClient) {
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug(context.Background(), "websocket closed unexpectedly", logger.Fields{"client": c.id})
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}

	c.markDone()
}
