package fanout

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/igm/sockjs-go/sockjs"
)

// session is the part of sockjs.Session the hub needs.
type session interface {
	Recv() (string, error)
	Send(string) error
}

// NewSockJSHandler serves the hub over SockJS under prefix.
func NewSockJSHandler(h *Hub, prefix string, heartbeat time.Duration) http.Handler {
	opts := sockjs.DefaultOptions
	if heartbeat > 0 {
		opts.HeartbeatDelay = heartbeat
	}
	return sockjs.NewHandler(prefix, opts, func(s sockjs.Session) {
		Serve(h, s)
	})
}

// Serve pumps hub events to s until the session ends. Inbound frames are
// read and discarded; clients cannot act through the channel.
func Serve(h *Hub, s session) {
	client := h.Connect()
	defer h.Disconnect(client)
	slog.Debug("realtime client connected", "client", client.ID, "clients", h.Len())

	go func() {
		for msg := range client.Send {
			if err := s.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		if _, err := s.Recv(); err != nil {
			slog.Debug("realtime client disconnected", "client", client.ID)
			return
		}
	}
}
