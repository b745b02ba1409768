package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// Metadata keys set on every consumed message.
const (
	MetadataChannel = "channel"
	MetadataPattern = "pattern"
)

var ErrSubscriberClosed = errors.New("redis subscriber: closed")

// Interface guard
var _ message.Subscriber = (*RedisSubscriber)(nil)

// RedisSubscriber exposes Redis pattern subscriptions as a watermill Subscriber.
// The topic passed to Subscribe is a PSUBSCRIBE pattern; the concrete channel of each
// message is in its metadata. Redis pub/sub has no redelivery, so a nacked message is
// logged and dropped.
type RedisSubscriber struct {
	client redis.UniversalClient
	logger watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewRedisSubscriber(client redis.UniversalClient, logger watermill.LoggerAdapter) *RedisSubscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &RedisSubscriber{
		client:  client,
		logger:  logger,
		closing: make(chan struct{}),
	}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, pattern string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, ErrSubscriberClosed
	default:
	}

	ps := s.client.PSubscribe(ctx, pattern)
	// [HANDSHAKE] Wait for the subscription confirmation so no message published
	// after Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	fields := watermill.LogFields{"pattern": pattern}
	s.logger.Info("REDIS_SUBSCRIBED", fields)

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer ps.Close()

		// [RECONNECT] go-redis re-subscribes transparently after connection loss.
		in := ps.Channel()
		for {
			select {
			case <-s.closing:
				return
			case <-ctx.Done():
				return
			case rm, ok := <-in:
				if !ok {
					return
				}
				if !s.deliver(ctx, out, rm, fields) {
					return
				}
			}
		}
	}()

	return out, nil
}

// deliver hands one message to the consumer and blocks until it is acked or nacked,
// preserving publication order. It reports false when the subscriber is shutting down.
func (s *RedisSubscriber) deliver(ctx context.Context, out chan<- *message.Message, rm *redis.Message, fields watermill.LogFields) bool {
	msg := message.NewMessage(watermill.NewUUID(), []byte(rm.Payload))
	msg.Metadata.Set(MetadataChannel, rm.Channel)
	msg.Metadata.Set(MetadataPattern, rm.Pattern)

	msgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	msg.SetContext(msgCtx)

	select {
	case out <- msg:
	case <-s.closing:
		return false
	case <-ctx.Done():
		return false
	}

	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Error("REDIS_MESSAGE_NACKED", nil, fields.Add(watermill.LogFields{
			"msg_id":  msg.UUID,
			"channel": rm.Channel,
		}))
	case <-s.closing:
		return false
	case <-ctx.Done():
		return false
	}
	return true
}

// Close stops every subscription and waits for their goroutines to exit.
func (s *RedisSubscriber) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	s.wg.Wait()
	return nil
}
