package pubsub

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/quakecast/quake-delivery-service/infra/pubsub"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"github.com/quakecast/quake-delivery-service/internal/service/dto"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) (event.Eventer, error)

// [INFRASTRUCTURE_BRIDGE]
// Route dispatches one wildcard subscription to per-channel handlers.
func Route(h *MessageHandler, routes map[model.Channel]message.NoPublishHandlerFunc) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [IDENTIFICATION]
		raw := msg.Metadata.Get(infrapubsub.MetadataChannel)
		ch, ok := model.ParseChannel(raw)
		if !ok {
			return nil // ACK: the pattern matches channels this service does not distribute.
		}

		fn, ok := routes[ch]
		if !ok {
			return nil
		}
		return fn(msg)
	}
}

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to Domain logic, handling Panic Recovery and Decoding.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = nil
			}
		}()

		channel := msg.Metadata.Get(infrapubsub.MetadataChannel)

		// [DECODING]
		payload, err := dto.Decode[T](msg.Payload)
		if err != nil {
			metrics.DroppedMessages.WithLabelValues("invalid").Inc()
			h.logger.Warn("DECODE_FAILED",
				"err", err,
				"msg_id", msg.UUID,
				"channel", channel,
				"payload", truncate(msg.Payload, 256),
			)
			return nil // ACK: Poison Pill protection.
		}

		// [EXECUTION]
		ev, err := fn(msg.Context(), payload)
		if err != nil {
			if errors.Is(err, model.ErrPayloadMismatch) {
				h.logger.Error("INGEST_REJECTED", "err", err, "msg_id", msg.UUID)
				return nil // ACK: retrying cannot fix a programming error.
			}
			return err // NACK: triggers Retry policy.
		}

		if ev != nil {
			h.logger.Debug("MESSAGE_INGESTED",
				"msg_id", msg.UUID,
				"channel", channel,
				"id", ev.GetID(),
				"trace_id", TraceIDFromContext(msg.Context()),
			)
		}
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
