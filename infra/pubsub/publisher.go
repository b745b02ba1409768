package pubsub

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Interface guard
var _ message.Publisher = (*RedisPublisher)(nil)

type PublisherConfig struct {
	// WrapMetadata publishes {"uuid","metadata","payload"} instead of the bare payload.
	// Used for the poison channel, where the failure reason lives in metadata.
	WrapMetadata bool
}

// RedisPublisher publishes watermill messages with PUBLISH; the topic is the channel.
type RedisPublisher struct {
	client redis.UniversalClient
	config PublisherConfig
	logger watermill.LoggerAdapter
	closed atomic.Bool
}

func NewRedisPublisher(client redis.UniversalClient, config PublisherConfig, logger watermill.LoggerAdapter) *RedisPublisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &RedisPublisher{client: client, config: config, logger: logger}
}

type wrappedMessage struct {
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata"`
	Payload  json.RawMessage   `json:"payload"`
}

func (p *RedisPublisher) Publish(topic string, messages ...*message.Message) error {
	if p.closed.Load() {
		return fmt.Errorf("redis publisher: closed")
	}

	for _, msg := range messages {
		body := []byte(msg.Payload)
		if p.config.WrapMetadata {
			var err error
			body, err = json.Marshal(wrappedMessage{
				UUID:     msg.UUID,
				Metadata: msg.Metadata,
				Payload:  rawOrString(msg.Payload),
			})
			if err != nil {
				return fmt.Errorf("redis publisher: wrap %s: %w", msg.UUID, err)
			}
		}

		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		receivers, err := p.client.Publish(ctx, topic, body).Result()
		if err != nil {
			return fmt.Errorf("redis publisher: publish to %s: %w", topic, err)
		}

		p.logger.Trace("REDIS_PUBLISHED", watermill.LogFields{
			"msg_id":    msg.UUID,
			"channel":   topic,
			"receivers": receivers,
		})
	}
	return nil
}

// rawOrString embeds valid JSON payloads verbatim and quotes anything else.
func rawOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

// Close marks the publisher closed. The Redis client is owned by the caller.
func (p *RedisPublisher) Close() error {
	p.closed.Store(true)
	return nil
}
