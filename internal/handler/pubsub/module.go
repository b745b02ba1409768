package pubsub

import (
	pubsubadapter "github.com/quakecast/quake-delivery-service/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub-handler",
	fx.Provide(
		pubsubadapter.NewPublisherProvider,
		pubsubadapter.NewSubscriberProvider,

		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke((*MessageHandler).RegisterHandlers),
)
