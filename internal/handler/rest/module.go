package rest

import (
	"log/slog"

	"github.com/quakecast/quake-delivery-service/config"
	httpsrv "github.com/quakecast/quake-delivery-service/infra/server/http"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/handler/lp"
	"github.com/quakecast/quake-delivery-service/internal/handler/sse"
	"github.com/quakecast/quake-delivery-service/internal/handler/ws"
	"github.com/quakecast/quake-delivery-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery-http",
	fx.Provide(
		NewHandler,
		func(logger *slog.Logger, d service.Deliverer, cfg *config.Config) Streams {
			return Streams{
				SSE: sse.NewSSEHandler(logger, d, cfg.Stream.HeartbeatInterval),
				WS:  ws.NewWSHandler(logger, d, cfg.Stream.HeartbeatInterval),
				LP:  lp.NewLPHandler(d, cfg.Stream.PollTimeout, cfg.Stream.PollBatch),
			}
		},
	),
	fx.Invoke(RegisterRoutes),

	// [GRACEFUL_SHUTDOWN] Open streams never finish on their own, so the hub
	// releases them as soon as the server starts draining.
	fx.Invoke(func(server *httpsrv.Server, hub registry.Hubber) {
		server.OnShutdown(hub.Shutdown)
	}),
)
