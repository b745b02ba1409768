package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
)

// EventDispatcher defines the high-level contract for outgoing records.
// This allows callers to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ch model.Channel, payload []byte) error
	Publisher() message.Publisher
}

// eventDispatcher is the concrete implementation (private).
type eventDispatcher struct {
	publisher message.Publisher
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{
		publisher: pub,
	}
}

// Publish sends one raw record on the channel the ingestion adapter listens to.
func (d *eventDispatcher) Publish(ctx context.Context, ch model.Channel, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event dispatcher: cannot publish empty payload")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(ch.String(), msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to channel %s: %w", ch, err)
	}

	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
