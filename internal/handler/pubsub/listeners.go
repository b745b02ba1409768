package pubsub

import (
	"context"

	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/service/dto"
)

// [ON_EVENT]
// Enrichment, caching and fan-out all happen inside the hub.
func (h *MessageHandler) OnEventV1(ctx context.Context, raw *dto.EventV1) (event.Eventer, error) {
	env, err := h.hub.Ingest(ctx, model.ChannelEvent, raw.ToDomain())
	if err != nil || env == nil {
		return nil, err
	}
	return env, nil
}

// [ON_PICK]
func (h *MessageHandler) OnPickV1(ctx context.Context, raw *dto.PickV1) (event.Eventer, error) {
	env, err := h.hub.Ingest(ctx, model.ChannelPick, raw.ToDomain())
	if err != nil || env == nil {
		return nil, err
	}
	return env, nil
}
