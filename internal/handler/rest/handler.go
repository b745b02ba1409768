package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/quakecast/quake-delivery-service/infra/server/http/interceptors"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/service"
	"github.com/quakecast/quake-delivery-service/internal/service/dto"
)

const healthProbeTimeout = 2 * time.Second

type Handler struct {
	logger    *slog.Logger
	hub       registry.Hubber
	deliverer service.Deliverer
	ingester  service.Ingester
	notifier  service.Notifications
	store     service.SubscriptionStore
	keys      service.KeyProvider
	now       func() time.Time
}

func NewHandler(
	logger *slog.Logger,
	hub registry.Hubber,
	deliverer service.Deliverer,
	ingester service.Ingester,
	notifier service.Notifications,
	store service.SubscriptionStore,
	keys service.KeyProvider,
) *Handler {
	return &Handler{
		logger:    logger,
		hub:       hub,
		deliverer: deliverer,
		ingester:  ingester,
		notifier:  notifier,
		store:     store,
		keys:      keys,
		now:       time.Now,
	}
}

// Events returns the replay cache, oldest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	snapshot := h.deliverer.Snapshot()
	if snapshot == nil {
		snapshot = []*event.Envelope{}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Subscribe registers a browser push subscription.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := dto.Decode[dto.SubscriptionV1](raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.notifier.Register(r.Context(), in.ToDomain(h.now()))
	switch {
	case errors.Is(err, model.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		h.logger.Error("PUSH_SUBSCRIPTION_FAILED",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
		writeError(w, http.StatusInternalServerError, "registration failed")
	case status == model.RegisterExists:
		writeJSON(w, http.StatusOK, statusResponse{Status: status.String()})
	default:
		writeJSON(w, http.StatusCreated, statusResponse{Status: status.String()})
	}
}

// VAPIDKey returns the applicationServerKey for PushManager.subscribe.
func (h *Handler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.keys.PublicKey()})
}

func (h *Handler) InjectEvent(w http.ResponseWriter, r *http.Request) {
	h.inject(w, r, model.ChannelEvent)
}

func (h *Handler) InjectPick(w http.ResponseWriter, r *http.Request) {
	h.inject(w, r, model.ChannelPick)
}

// inject feeds one record through the same path as the pub/sub adapter.
func (h *Handler) inject(w http.ResponseWriter, r *http.Request, ch model.Channel) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := h.ingester.Ingest(r.Context(), ch, raw)
	if err != nil {
		if errors.Is(err, model.ErrInvalidMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("INJECT_FAILED", slog.String("channel", ch.String()), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	attrs := []any{slog.String("channel", ch.String()), slog.Int64("id", env.ID)}
	if p, ok := interceptors.GetProducer(r.Context()); ok {
		attrs = append(attrs, slog.String("producer", p.Subject))
	}
	h.logger.Debug("RECORD_INJECTED", attrs...)

	writeJSON(w, http.StatusAccepted, map[string]int64{"id": env.ID})
}

type healthResponse struct {
	Status    string         `json:"status"`
	Store     string         `json:"store"`
	Threshold float64        `json:"notify_threshold"`
	Hub       model.HubStats `json:"hub"`
}

// Health reports liveness. A missing store degrades notifications only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	res := healthResponse{
		Status:    "ok",
		Store:     "up",
		Threshold: h.notifier.Threshold(),
		Hub:       h.hub.Stats(),
	}
	if !h.store.Available(ctx) {
		res.Status, res.Store = "degraded", "down"
	}
	writeJSON(w, http.StatusOK, res)
}
