package service

import (
	"context"
	"fmt"

	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/service/dto"
)

// Ingester turns a raw channel message into a sequenced record. Both inbound paths
// (the pub/sub adapter and the restricted HTTP endpoint) go through it.
type Ingester interface {
	Ingest(ctx context.Context, ch model.Channel, raw []byte) (*event.Envelope, error)
}

type IngestService struct {
	hub registry.Hubber
}

func NewIngestService(hub registry.Hubber) *IngestService {
	return &IngestService{hub: hub}
}

// Ingest returns (nil, nil) for channels this service does not distribute and an
// error wrapping model.ErrInvalidMessage when raw fails decoding or validation.
func (s *IngestService) Ingest(ctx context.Context, ch model.Channel, raw []byte) (*event.Envelope, error) {
	var payload any

	switch ch {
	case model.ChannelEvent:
		in, err := dto.Decode[dto.EventV1](raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", model.ErrInvalidMessage, ch, err)
		}
		payload = in.ToDomain()

	case model.ChannelPick:
		in, err := dto.Decode[dto.PickV1](raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", model.ErrInvalidMessage, ch, err)
		}
		payload = in.ToDomain()

	default:
		return nil, nil
	}

	return s.hub.Ingest(ctx, ch, payload)
}
