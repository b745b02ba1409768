package registry

import (
	"log/slog"
	"time"
)

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithCacheCapacity sets the [REPLAY_WINDOW]: how many recent EVENT records
// a reconnecting client can catch up on.
func WithCacheCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.config.cacheCapacity = n
		}
	}
}

// WithEnrichTimeout bounds the time one EVENT may spend waiting for its place.
func WithEnrichTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.enrichTimeout = d
		}
	}
}

// WithPlaceResolver plugs the [ENRICHMENT] stage in front of sequencing.
func WithPlaceResolver(r PlaceResolver) Option {
	return func(h *Hub) {
		h.resolver = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock replaces the id source; tests use it to freeze or rewind time.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}
