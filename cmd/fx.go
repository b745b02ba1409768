package cmd

import (
	"log/slog"

	"github.com/quakecast/quake-delivery-service/config"
	clientdi "github.com/quakecast/quake-delivery-service/infra/client/di"
	httpsrv "github.com/quakecast/quake-delivery-service/infra/server/http"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	pubsubhandler "github.com/quakecast/quake-delivery-service/internal/handler/pubsub"
	"github.com/quakecast/quake-delivery-service/internal/handler/rest"
	"github.com/quakecast/quake-delivery-service/internal/service"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideRedis,
			ProvideTracerProvider,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Invoke(func(*sdktrace.TracerProvider) {}),
		clientdi.Module,
		service.Module,
		registry.Module,
		httpsrv.Module,
		rest.Module,
		pubsubhandler.Module,
		fx.Invoke(WatchConfig),
	)
}
