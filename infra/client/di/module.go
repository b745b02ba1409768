package di

import (
	"context"
	"log/slog"

	"github.com/quakecast/quake-delivery-service/config"
	"github.com/quakecast/quake-delivery-service/infra/auth"
	"github.com/quakecast/quake-delivery-service/infra/client/geo"
	"github.com/quakecast/quake-delivery-service/infra/push"
	"github.com/quakecast/quake-delivery-service/infra/store"
	"github.com/quakecast/quake-delivery-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"external_clients",

	// [CONSTRUCTOR] Reverse geocoding; nil when disabled so enrichment yields the sentinel
	fx.Provide(ProvidePlaceLookup),

	// [CONSTRUCTOR] Web Push provider serves both delivery and the VAPID key endpoint
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) (*push.WebPush, error) {
			return push.New(push.Config{
				VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
				VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
				Subscriber:      cfg.Push.Subscriber,
				TTL:             cfg.Push.TTL,
				Urgency:         cfg.Push.Urgency,
				Timeout:         cfg.Push.Timeout,
				RatePerSecond:   cfg.Push.RatePerSecond,
				Burst:           cfg.Push.Burst,
			}, logger)
		},
		func(p *push.WebPush) service.Pusher { return p },
		func(p *push.WebPush) service.KeyProvider { return p },
	),

	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config) *auth.JWTAuther {
				return auth.NewJWTAuther(auth.Config{
					Secret: cfg.Auth.JWTSecret,
					Issuer: cfg.Auth.Issuer,
					Role:   cfg.Auth.Role,
				})
			},
			fx.As(new(service.Auther)),
		),
	),

	fx.Provide(ProvideSubscriptionStore),
)

func ProvidePlaceLookup(cfg *config.Config, logger *slog.Logger) (service.PlaceLookup, error) {
	if !cfg.Geo.Enabled {
		logger.Info("GEO_ENRICHMENT_DISABLED")
		return nil, nil
	}

	client, err := geo.New(geo.Config{
		BaseURL:   cfg.Geo.BaseURL,
		Username:  cfg.Geo.Username,
		Timeout:   cfg.Geo.Timeout,
		CacheSize: cfg.Geo.CacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type closableStore interface {
	service.SubscriptionStore
	Close(ctx context.Context) error
}

// ProvideSubscriptionStore selects the store driver and ties it to the app lifecycle.
func ProvideSubscriptionStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (service.SubscriptionStore, error) {
	var s closableStore

	switch cfg.Store.Driver {
	case "mongo":
		ms, err := store.NewMongoStore(context.Background(), cfg.Store.MongoURI, cfg.Store.Database, cfg.Store.Collection)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// [DEGRADED_START] An unreachable store disables notifications, not streaming.
				if err := ms.EnsureIndexes(ctx); err != nil {
					logger.Warn("STORE_INDEXES_FAILED", slog.Any("err", err))
				}
				return nil
			},
		})
		s = ms
	default:
		logger.Warn("STORE_IN_MEMORY", slog.String("driver", cfg.Store.Driver))
		s = store.NewMemoryStore()
	}

	// [LIFECYCLE] Ensures the connection pool is closed gracefully on app shutdown
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close(ctx)
		},
	})
	return s, nil
}
