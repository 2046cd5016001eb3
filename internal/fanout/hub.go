// Package fanout broadcasts state-change events to every connected session.
//
// Delivery is at-most-once and best-effort: a client whose buffer is full
// misses the event, and a client that reconnects gets no replay. Consumers
// reconcile by re-querying. The hub carries no business state.
package fanout

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event type discriminators. The channel is shared with other subjects, so
// every payload names its subject.
const (
	TypeVisitor = "visitor"

	ActionCreate = "create"
	ActionUpdate = "update"
)

// Event is the payload pushed to clients.
type Event struct {
	Type   string    `json:"type"`
	Action string    `json:"action"`
	Op     string    `json:"op,omitempty"`
	Data   any       `json:"data,omitempty"`
	ID     string    `json:"id,omitempty"`
	At     time.Time `json:"at"`
}

// Client is one connected session.
type Client struct {
	ID   string
	Send chan []byte
}

// Hub is the process-wide registry of connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int
}

// NewHub creates a hub whose clients buffer up to buffer undelivered events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{clients: make(map[string]*Client), buffer: buffer}
}

// Connect registers a new client.
func (h *Hub) Connect() *Client {
	client := &Client{ID: uuid.NewString(), Send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	return client
}

// Disconnect removes the client and closes its channel. Calling it twice is a no-op.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes evt once and broadcasts it.
func (h *Hub) Publish(evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	h.Broadcast(payload)
	return nil
}

// Broadcast delivers payload to every client without blocking and returns
// how many clients accepted it.
func (h *Hub) Broadcast(payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		select {
		case client.Send <- payload:
			delivered++
		default:
			slog.Warn("drop message for slow client", "client", client.ID)
		}
	}
	return delivered
}
