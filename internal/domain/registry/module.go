package registry

import (
	"context"
	"log/slog"

	"github.com/quakecast/quake-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(cfg *config.Config, resolver PlaceResolver, logger *slog.Logger) *Hub {
			return NewHub(
				WithCacheCapacity(cfg.Hub.CacheCapacity),
				WithEnrichTimeout(cfg.Hub.EnrichTimeout),
				WithPlaceResolver(resolver),
				WithLogger(logger),
			)
		},
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Release every open stream
				return nil
			},
		})
	}),
)
