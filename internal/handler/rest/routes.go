package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quakecast/quake-delivery-service/config"
	"github.com/quakecast/quake-delivery-service/infra/server/http/interceptors"
	"github.com/quakecast/quake-delivery-service/internal/handler/lp"
	"github.com/quakecast/quake-delivery-service/internal/handler/sse"
	"github.com/quakecast/quake-delivery-service/internal/handler/ws"
	"github.com/quakecast/quake-delivery-service/internal/service"
)

// Streams groups the transport handlers mounted next to the REST API.
type Streams struct {
	SSE *sse.SSEHandler
	WS  *ws.WSHandler
	LP  *lp.LPHandler
}

func RegisterRoutes(
	r chi.Router,
	h *Handler,
	streams Streams,
	auther service.Auther,
	cfg *config.Config,
	logger *slog.Logger,
) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stream", streams.SSE.ServeHTTP)
		r.Get("/ws", streams.WS.ServeHTTP)
		r.Get("/poll", streams.LP.Poll)
		r.Get("/events", h.Events)

		r.Get("/subscriptions/vapid-key", h.VAPIDKey)
		r.With(rateLimit(cfg.HTTP.RateLimit)).Post("/subscriptions", h.Subscribe)
	})

	// [RESTRICTED] Injection is for trusted producers only.
	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg.HTTP.InjectRateLimit))
		r.Use(interceptors.NewProducerAuthInterceptor(auther, logger))

		r.Post("/events", h.InjectEvent)
		r.Post("/picks", h.InjectPick)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
}

// rateLimit limits requests per client ip; a non-positive limit disables it.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}
