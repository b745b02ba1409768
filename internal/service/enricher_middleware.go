package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
)

// EnricherMiddleware implements [DECORATOR_PATTERN] to add observability
// to the enrichment process without touching business logic.
type EnricherMiddleware struct {
	Next   Enricher
	Logger *slog.Logger
}

// NewEnricherMiddleware creates a new logging decorator for the Enricher.
func NewEnricherMiddleware(next Enricher, logger *slog.Logger) Enricher {
	return &EnricherMiddleware{
		Next:   next,
		Logger: logger,
	}
}

// ResolvePlace wraps the lookup with execution timing and outcome accounting.
func (m *EnricherMiddleware) ResolvePlace(ctx context.Context, lat, lon float64) string {
	start := time.Now()

	place := m.Next.ResolvePlace(ctx, lat, lon)

	// [OBSERVABILITY] Scoped logging for performance auditing
	duration := time.Since(start)
	metrics.EnrichmentDuration.Observe(duration.Seconds())

	if place == model.PlaceUnavailable {
		metrics.EnrichmentResults.WithLabelValues("unavailable").Inc()
		m.Logger.Warn("PLACE_ENRICHMENT_DEGRADED",
			"lat", lat,
			"lon", lon,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		metrics.EnrichmentResults.WithLabelValues("resolved").Inc()
		m.Logger.Debug("PLACE_ENRICHMENT_COMPLETED",
			"place", place,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return place
}
