package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/quakecast/quake-delivery-service/infra/pubsub"
	"github.com/redis/go-redis/v9"
)

type PublisherProvider struct {
	client redis.UniversalClient
	logger watermill.LoggerAdapter
}

func NewPublisherProvider(client redis.UniversalClient, logger watermill.LoggerAdapter) *PublisherProvider {
	return &PublisherProvider{client: client, logger: logger}
}

// Build returns a publisher for plain records.
func (pp *PublisherProvider) Build() message.Publisher {
	return infrapubsub.NewRedisPublisher(pp.client, infrapubsub.PublisherConfig{}, pp.logger)
}

// BuildPoison returns a publisher that keeps the failure metadata next to the payload.
func (pp *PublisherProvider) BuildPoison() message.Publisher {
	return infrapubsub.NewRedisPublisher(pp.client, infrapubsub.PublisherConfig{WrapMetadata: true}, pp.logger)
}

type SubscriberProvider struct {
	client redis.UniversalClient
	logger watermill.LoggerAdapter
}

func NewSubscriberProvider(client redis.UniversalClient, logger watermill.LoggerAdapter) *SubscriberProvider {
	return &SubscriberProvider{client: client, logger: logger}
}

// Build returns a subscriber; the pattern is chosen by the router handler topic.
func (sp *SubscriberProvider) Build() message.Subscriber {
	return infrapubsub.NewRedisSubscriber(sp.client, sp.logger)
}
