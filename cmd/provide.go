package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/quakecast/quake-delivery-service/config"
	"github.com/quakecast/quake-delivery-service/internal/service"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// logLevel is shared by every handler so a config reload takes effect everywhere.
var logLevel = new(slog.LevelVar)

func ProvideLogger(cfg *config.Config) *slog.Logger {
	logLevel.Set(config.ParseLevel(cfg.Log.Level))
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// [OTEL_BRIDGE] Mirror records to the OpenTelemetry logs pipeline
	if cfg.Log.OTel {
		handler = fanout{handler, otelslog.NewHandler(ServiceName)}
	}

	logger := slog.New(handler).With(
		slog.String("service", ServiceName),
		slog.String("version", version),
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideRedis opens the client used by the pub/sub subscriber and the CLI publisher.
func ProvideRedis(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	client := newRedisClient(cfg)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// [DEGRADED_START] The subscriber keeps retrying; a dead broker is logged, not fatal.
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("REDIS_UNREACHABLE", slog.String("addr", cfg.Redis.Addr), slog.Any("err", err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				return err
			}
			return nil
		},
	})
	return client
}

// ProvideTracerProvider installs the global tracer provider used by the hub, notifier and geo client.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.namespace", ServiceNamespace),
		attribute.String("service.version", version),
		attribute.String("vcs.commit", commit),
		attribute.String("build.timestamp", buildTimestamp),
	))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.NeverSample()
	if cfg.Tracing.Enabled {
		sampler = sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

// WatchConfig applies hot-reloadable settings when the config file changes.
func WatchConfig(cfg *config.Config, logger *slog.Logger, notifier service.Notifications) {
	cfg.Watch(logger, func(next *config.Config) {
		logLevel.Set(config.ParseLevel(next.Log.Level))
		notifier.SetThreshold(next.Notify.Threshold)
	})
}

// fanout duplicates records to several handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
