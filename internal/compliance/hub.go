package compliance

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/covox/relay/internal/observability/metrics"
	"github.com/covox/relay/pkg/logging"
)

// Hub fans enriched transcript events out to connected observer sockets.
// Observers are write-only; a failed write evicts the connection.
type Hub struct {
	mu        sync.Mutex
	observers map[string]*websocket.Conn

	metrics *metrics.ComplianceMetrics
	logger  *logging.Logger
}

func NewHub(m *metrics.ComplianceMetrics, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		observers: make(map[string]*websocket.Conn),
		metrics:   m,
		logger:    logger,
	}
}

// HandleWS upgrades an observer connection and parks it until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serve).ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn) {
	id := uuid.NewString()
	h.mu.Lock()
	h.observers[id] = conn
	h.mu.Unlock()
	h.metrics.ObserverConnected()
	h.logger.Info("compliance observer connected", "observer_id", id)

	defer func() {
		h.remove(id)
		h.metrics.ObserverDisconnected()
		h.logger.Info("compliance observer disconnected", "observer_id", id)
	}()

	// Drain inbound frames so we notice the close; observers are not
	// expected to send anything meaningful.
	for {
		var discard string
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			return
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	conn, ok := h.observers[id]
	delete(h.observers, id)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Broadcast sends one serialized event to every observer and returns how
// many received it. Observers whose write fails are evicted.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.Lock()
	conns := make(map[string]*websocket.Conn, len(h.observers))
	for id, conn := range h.observers {
		conns[id] = conn
	}
	h.mu.Unlock()

	delivered := 0
	for id, conn := range conns {
		if err := websocket.Message.Send(conn, string(data)); err != nil {
			h.logger.Warn("evicting compliance observer", "observer_id", id, "error", err)
			h.remove(id)
			continue
		}
		delivered++
	}
	h.metrics.ObserveDelivered(delivered)
	return delivered
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}
