package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"PaperPerps/internal/observability"
)

// EventsWS streams processed events to WebSocket clients. Pass
// ?player=<uuid> to filter to one player's events.
type EventsWS struct {
	bus      *Bus
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
}

func NewEventsWS(bus *Bus, origin string, metrics *observability.Metrics) *EventsWS {
	return &EventsWS{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
		metrics: metrics,
	}
}

func (h *EventsWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	playerFilter := strings.TrimSpace(r.URL.Query().Get("player"))

	if h.metrics != nil {
		h.metrics.WSClients.Inc()
		defer h.metrics.WSClients.Dec()
	}

	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if playerFilter != "" && !strings.EqualFold(evt.Player, playerFilter) {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}
