package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/quakecast/quake-delivery-service/config"
	pubsubadapter "github.com/quakecast/quake-delivery-service/internal/adapter/pubsub"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"go.uber.org/fx"
)

// HandlerName identifies the single wildcard consumer in router logs.
const HandlerName = "ON_SEISMIC_MESSAGE"

type MessageHandler struct {
	hub    registry.Hubber
	logger *slog.Logger
	wmLog  watermill.LoggerAdapter
}

func NewMessageHandler(hub registry.Hubber, logger *slog.Logger, wmLog watermill.LoggerAdapter) *MessageHandler {
	return &MessageHandler{hub, logger, wmLog}
}

// NewWatermillRouter builds the router and ties its run loop to the application lifecycle.
func NewWatermillRouter(lc fx.Lifecycle, logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("ROUTER_STOPPED", err, nil)
				}
			}()

			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(ctx context.Context) error {
			return router.Close()
		},
	})

	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(
	router *message.Router,
	cfg *config.Config,
	subProvider *pubsubadapter.SubscriberProvider,
	pubProvider *pubsubadapter.PublisherProvider,
) error {
	poison, err := middleware.PoisonQueue(pubProvider.BuildPoison(), cfg.Redis.PoisonChannel)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	// [CHANNEL_TABLE]
	// Add new channels here by following this table-driven pattern.
	routes := map[model.Channel]message.NoPublishHandlerFunc{
		model.ChannelEvent: Bind(h, h.OnEventV1),
		model.ChannelPick:  Bind(h, h.OnPickV1),
	}

	// [SINGLE_SUBSCRIPTION]
	// One pattern subscription keeps EVENT and PICK in publication order.
	router.AddConsumerHandler(HandlerName, cfg.Redis.Pattern, subProvider.Build(), Route(h, routes)).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(h.logger),
		NewRetryMiddleware(h.wmLog).Middleware,
		poison,
		middleware.NewThrottle(500, time.Second).Middleware,
		middleware.Timeout(time.Second*30),
	)

	h.logger.Info("PUBSUB_PIPELINE_READY", "pattern", cfg.Redis.Pattern, "poison", cfg.Redis.PoisonChannel)
	return nil
}
