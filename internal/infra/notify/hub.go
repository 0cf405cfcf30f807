package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub keeps websocket subscribers grouped by user. An event is written
// only to the connections of the user owning the order.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]map[*Client]struct{}
	metrics *infra.Metrics
	logger  *slog.Logger
}

func NewHub(metrics *infra.Metrics) *Hub {
	return &Hub{
		clients: make(map[uint64]map[*Client]struct{}),
		metrics: metrics,
		logger:  slog.Default().With("module", "ws_hub"),
	}
}

// ServeWS upgrades the request and subscribes the connection to the
// private channel of userID, the caller identity established upstream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint64) {
	if userID == 0 {
		http.Error(w, "Unauthenticated.", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", slog.Any("error", err))
		return
	}

	c := newClient(h, conn, userID)
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncrementConnections()
	}
	h.logger.Debug("Client registered", slog.String("client", c.id), slog.Uint64("user_id", c.userID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	if h.metrics != nil {
		h.metrics.DecrementConnections()
	}
}

// Subscribers returns the number of open connections for userID.
func (h *Hub) Subscribers(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// OrderStateChanged implements domain.Notifier. Slow clients whose buffer
// is full are dropped.
func (h *Hub) OrderStateChanged(_ context.Context, ev domain.OrderStateChanged) {
	payload, err := json.Marshal(message{Channel: ev.Channel(), Event: "OrderStateChanged", Data: ev})
	if err != nil {
		h.logger.Error("Failed to marshal event", slog.Any("error", err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients[ev.Order.UserID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow client", slog.String("client", c.id))
		h.unregister(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

type message struct {
	Channel string      `json:"channel"`
	Event   string      `json:"event"`
	Data    interface{} `json:"data"`
}
