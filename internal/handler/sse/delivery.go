package sse

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/handler/marshaller"
	ssemarshaller "github.com/quakecast/quake-delivery-service/internal/handler/marshaller/sse"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"github.com/quakecast/quake-delivery-service/internal/service"
)

const (
	transport = "sse"
	// Time allowed to write one frame to a client that stopped reading.
	writeWait = 10 * time.Second
)

type SSEHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	heartbeat time.Duration
	writeWait time.Duration
}

func NewSSEHandler(logger *slog.Logger, deliverer service.Deliverer, heartbeat time.Duration) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SSEHandler{
		logger:    logger,
		deliverer: deliverer,
		heartbeat: heartbeat,
		writeWait: writeWait,
	}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// 1. RESUME CURSOR (header set by EventSource on reconnect, query for first connect)
	lastID := marshaller.LastEventID(r)

	// 2. ATTACH: replay tail and live registration happen atomically
	conn, replay, err := h.deliverer.Subscribe(r.Context(), lastID)
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusServiceUnavailable)
		return
	}
	defer h.deliverer.Unsubscribe(conn)

	metrics.ActiveConnections.WithLabelValues(transport).Inc()
	defer metrics.ActiveConnections.WithLabelValues(transport).Dec()

	rc := http.NewResponseController(w)
	log := h.logger.With(slog.String("conn_id", conn.GetID().String()))
	log.Debug("SSE_OPENED", slog.Int("replay", len(replay)))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer func() {
		if dropped := conn.Dropped(); dropped > 0 {
			metrics.DroppedFrames.WithLabelValues(transport, "mailbox_full").Add(float64(dropped))
		}
		log.Debug("SSE_CLOSED", slog.Any("reason", conn.Err()), slog.Uint64("dropped", conn.Dropped()))
	}()

	// 3. REPLAY before anything live
	for _, ev := range replay {
		if !h.write(w, rc, ev, log) {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	// 4. MAIN SSE PUMP LOOP
	for {
		select {
		case <-conn.Done():
			if errors.Is(conn.Err(), registry.ErrSlowConsumer) {
				metrics.DroppedFrames.WithLabelValues(transport, "slow_consumer").Inc()
				log.Warn("SSE_SLOW_CONSUMER_CLOSED")
			}
			return

		case <-ticker.C:
			if err := h.extendDeadline(rc); err != nil {
				log.Debug("SSE_DEADLINE_FAILED", slog.Any("err", err))
				return
			}
			if _, err := w.Write(ssemarshaller.Heartbeat); err != nil {
				log.Debug("SSE_HEARTBEAT_FAILED", slog.Any("err", err))
				return
			}
			flusher.Flush()

		case ev := <-conn.Recv():
			if !h.write(w, rc, ev, log) {
				return
			}
			flusher.Flush()
		}
	}
}

// extendDeadline bounds the next write. Writers without deadline support
// are left unbounded.
func (h *SSEHandler) extendDeadline(rc *http.ResponseController) error {
	err := rc.SetWriteDeadline(time.Now().Add(h.writeWait))
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func (h *SSEHandler) write(w http.ResponseWriter, rc *http.ResponseController, ev event.Eventer, log *slog.Logger) bool {
	frame, err := ssemarshaller.MarshallFrame(ev)
	if err != nil {
		// A record that cannot be encoded is skipped, the stream stays open.
		log.Error("SSE_MARSHAL_FAILED", slog.Int64("event_id", ev.GetID()), slog.Any("err", err))
		return true
	}
	if err := h.extendDeadline(rc); err != nil {
		log.Debug("SSE_DEADLINE_FAILED", slog.Any("err", err))
		return false
	}
	if _, err := w.Write(frame); err != nil {
		log.Debug("SSE_WRITE_FAILED", slog.Any("err", err))
		return false
	}
	return true
}
