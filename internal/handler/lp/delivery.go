package lp

import (
	"net/http"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/handler/marshaller"
	lpmarshaller "github.com/quakecast/quake-delivery-service/internal/handler/marshaller/lp"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"github.com/quakecast/quake-delivery-service/internal/service"
)

const transport = "lp"

type LPHandler struct {
	deliverer service.Deliverer
	timeout   time.Duration
	batch     int
}

func NewLPHandler(deliverer service.Deliverer, timeout time.Duration, batch int) *LPHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if batch <= 0 {
		batch = 16
	}
	return &LPHandler{
		deliverer: deliverer,
		timeout:   timeout,
		batch:     batch,
	}
}

// Poll handles the long-polling request.
// Cached records newer than lastEventId are answered at once; otherwise the
// connection is held until a live record arrives or the timeout elapses.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	lastID := marshaller.LastEventID(r)

	// 1. Temporary Subscription.
	// The connector lives only for the duration of this HTTP request.
	conn, replay, err := h.deliverer.Subscribe(r.Context(), lastID)
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusServiceUnavailable)
		return
	}
	defer h.deliverer.Unsubscribe(conn)

	metrics.ActiveConnections.WithLabelValues(transport).Inc()
	defer metrics.ActiveConnections.WithLabelValues(transport).Dec()

	// 2. Replay short-circuits the wait.
	if len(replay) > 0 {
		h.respond(w, replay)
		return
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var events []*event.Envelope

	// 3. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-conn.Done():
		w.WriteHeader(http.StatusNoContent)
		return

	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return

	case ev := <-conn.Recv():
		events = append(events, ev)

		// Drain what is already buffered to save the client a round trip.
	drainLoop:
		for len(events) < h.batch {
			select {
			case next := <-conn.Recv():
				events = append(events, next)
			default:
				break drainLoop
			}
		}
	}

	h.respond(w, events)
}

func (h *LPHandler) respond(w http.ResponseWriter, events []*event.Envelope) {
	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
