package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/handler/marshaller"
	wsmarshaller "github.com/quakecast/quake-delivery-service/internal/handler/marshaller/ws"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"github.com/quakecast/quake-delivery-service/internal/service"
)

const (
	transport = "ws"

	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer, heartbeat time.Duration) *WSHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Public read-only feed: origins are not restricted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. RESUME CURSOR must be read before the upgrade hijacks the request
	lastID := marshaller.LastEventID(r)

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS_UPGRADE_FAILED", slog.Any("err", err))
		return
	}
	defer ws.Close()

	// 3. SUBSCRIBE VIA THE SAME SERVICE
	conn, replay, err := h.deliverer.Subscribe(r.Context(), lastID)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer h.deliverer.Unsubscribe(conn)

	metrics.ActiveConnections.WithLabelValues(transport).Inc()
	defer metrics.ActiveConnections.WithLabelValues(transport).Dec()

	log := h.logger.With(slog.String("conn_id", conn.GetID().String()))
	log.Debug("WS_OPENED", slog.Int("replay", len(replay)))

	defer func() {
		if dropped := conn.Dropped(); dropped > 0 {
			metrics.DroppedFrames.WithLabelValues(transport, "mailbox_full").Add(float64(dropped))
		}
		log.Debug("WS_CLOSED", slog.Any("reason", conn.Err()), slog.Uint64("dropped", conn.Dropped()))
	}()

	// 4. READ PUMP: the feed is one-way, reads only serve control frames and detect hang-ups
	go h.readPump(ws, conn)

	for _, ev := range replay {
		if !h.write(ws, ev, log) {
			return
		}
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	// 5. MAIN WS PUMP LOOP
	for {
		select {
		case <-conn.Done():
			code, reason := websocket.CloseNormalClosure, ""
			if errors.Is(conn.Err(), registry.ErrSlowConsumer) {
				metrics.DroppedFrames.WithLabelValues(transport, "slow_consumer").Inc()
				log.Warn("WS_SLOW_CONSUMER_CLOSED")
				code, reason = websocket.CloseTryAgainLater, "slow consumer"
			}
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			return

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("WS_PING_FAILED", slog.Any("err", err))
				return
			}

		case ev := <-conn.Recv():
			if !h.write(ws, ev, log) {
				return
			}
		}
	}
}

func (h *WSHandler) readPump(ws *websocket.Conn, conn registry.Connector) {
	defer conn.Close()

	ws.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) write(ws *websocket.Conn, ev event.Eventer, log *slog.Logger) bool {
	data, err := wsmarshaller.MarshallDeliveryEvent(ev)
	if err != nil {
		log.Error("WS_MARSHAL_FAILED", slog.Int64("event_id", ev.GetID()), slog.Any("err", err))
		return true
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("WS_SEND_FAILED", slog.Any("err", err))
		return false
	}
	return true
}
