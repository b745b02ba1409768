package service

import (
	"context"
	"log/slog"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
)

// Enricher resolves the human readable place of an event. It never fails.
type Enricher interface {
	registry.PlaceResolver
}

// PlaceLookup is the reverse-geocoding provider contract.
type PlaceLookup interface {
	NearestPlace(ctx context.Context, lat, lon float64) (*model.Place, error)
}

type GeoEnricher struct {
	lookup PlaceLookup
	logger *slog.Logger
}

// NewGeoEnricher returns an Enricher backed by lookup. A nil lookup disables
// enrichment: every event is tagged with model.PlaceUnavailable.
func NewGeoEnricher(lookup PlaceLookup, logger *slog.Logger) *GeoEnricher {
	return &GeoEnricher{lookup: lookup, logger: logger}
}

// ResolvePlace degrades to the sentinel on every failure path; enrichment is best effort.
func (e *GeoEnricher) ResolvePlace(ctx context.Context, lat, lon float64) string {
	if e.lookup == nil {
		return model.PlaceUnavailable
	}

	place, err := e.lookup.NearestPlace(ctx, lat, lon)
	if err != nil {
		e.logger.Warn("PLACE_LOOKUP_FAILED",
			"err", err,
			"lat", lat,
			"lon", lon,
		)
		return model.PlaceUnavailable
	}
	if place == nil || (place.Name == "" && place.Region == "") {
		return model.PlaceUnavailable
	}

	return FormatPlace(lat, lon, place)
}
