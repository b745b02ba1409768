package service

import (
	"context"
	"log/slog"

	"github.com/quakecast/quake-delivery-service/config"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			func(hub registry.Hubber, cfg *config.Config) *DeliveryService {
				return NewDeliveryService(hub, cfg.Stream.MailboxSize, cfg.Stream.SendTimeout)
			},
			fx.As(new(Deliverer)),
		),
		fx.Annotate(
			NewIngestService,
			fx.As(new(Ingester)),
		),
		fx.Annotate(
			NewGeoEnricher,
			fx.As(new(Enricher)),
		),
		fx.Annotate(
			func(store SubscriptionStore, pusher Pusher, logger *slog.Logger, cfg *config.Config) *Notifier {
				return NewNotifier(store, pusher, logger, NotifierConfig{
					Threshold:       cfg.Notify.Threshold,
					Concurrency:     cfg.Notify.Concurrency,
					DispatchTimeout: cfg.Notify.DispatchTimeout,
				})
			},
			fx.As(new(Notifications)),
		),
		// [HUB_ENRICHMENT] The hub only knows the narrow resolver contract.
		func(e Enricher) registry.PlaceResolver { return e },
	),

	// [DECORATION_LAYER] Intercept Enricher to add cross-cutting concerns
	fx.Decorate(func(orig Enricher, logger *slog.Logger) Enricher {
		return NewEnricherMiddleware(orig, logger)
	}),

	fx.Invoke(RegisterNotifier),
)

// RegisterNotifier attaches the notifier to the hub for the application lifetime.
func RegisterNotifier(lc fx.Lifecycle, hub registry.Hubber, n Notifications) {
	var handle registry.ListenerID
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			handle = hub.Subscribe(n)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hub.Unsubscribe(handle)
			n.Close() // [GRACEFUL_SHUTDOWN] Drain in-flight dispatches
			return nil
		},
	})
}
