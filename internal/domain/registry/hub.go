/*
Package registry is the single sequencing and fan-out point of the service.

Key Architectural Concepts:
  - Single Writer: every inbound record passes through Hub.Ingest, which assigns a
    strictly increasing id, appends EVENT records to the bounded replay cache and
    publishes to listeners inside one critical section.
  - Observer Registry: listeners (stream connectors, the notifier) are invoked
    synchronously in registration order. A panicking listener is isolated.
  - Mailboxes: stream connectors only enqueue into a buffered mailbox, so a slow
    network consumer cannot stall ingestion beyond a short bounded wait.
  - Atomic Resume: Attach snapshots the replay tail and registers the listener in the
    same critical section, so replay followed by live delivery never skips or repeats an id.
*/
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/quakecast/quake-delivery-service/internal/domain/registry"

// ListenerID is the handle returned by Subscribe and Attach.
type ListenerID = uuid.UUID

// PlaceResolver turns coordinates into a place description. It never fails:
// implementations return model.PlaceUnavailable instead of an error.
type PlaceResolver interface {
	ResolvePlace(ctx context.Context, lat, lon float64) string
}

// Hubber defines the gateway for record sequencing and listener management.
type Hubber interface {
	Ingest(ctx context.Context, ch model.Channel, payload any) (*event.Envelope, error)
	Subscribe(l Listener) ListenerID
	Unsubscribe(id ListenerID)
	Attach(l Listener, lastID *int64) (ListenerID, []*event.Envelope)
	Snapshot() []*event.Envelope
	Stats() model.HubStats
	Shutdown()
}

type listenerEntry struct {
	id       ListenerID
	listener Listener
}

// Hub implements Hubber. Listeners must not call back into the Hub from Notify.
type Hub struct {
	config   hubConfig
	resolver PlaceResolver
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer

	mu        sync.Mutex
	cache     *EventCache
	lastID    int64
	listeners []listenerEntry
	startedAt time.Time
}

type hubConfig struct {
	cacheCapacity int
	enrichTimeout time.Duration
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			cacheCapacity: DefaultCacheCapacity,
			enrichTimeout: 5 * time.Second,
		},
		logger: slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.cache = NewEventCache(h.config.cacheCapacity)
	h.startedAt = h.now()
	return h
}

// Ingest classifies, enriches, sequences and publishes one inbound record.
// Unrecognized channels are ignored and yield (nil, nil).
func (h *Hub) Ingest(ctx context.Context, ch model.Channel, payload any) (*event.Envelope, error) {
	ctx, span := h.tracer.Start(ctx, "hub.ingest", trace.WithAttributes(attribute.String("channel", ch.String())))
	defer span.End()

	switch ch {
	case model.ChannelEvent:
		ev, ok := payload.(*model.Event)
		if !ok || ev == nil {
			return nil, fmt.Errorf("%w: %s got %T", model.ErrPayloadMismatch, ch, payload)
		}

		// [ENRICHMENT] Runs outside the lock: a slow provider delays only this record.
		enriched := ev.Clone()
		enriched.Place = h.resolvePlace(ctx, enriched)

		env := h.sequence(ch, enriched, true)
		span.SetAttributes(attribute.Int64("id", env.ID))
		return env, nil

	case model.ChannelPick:
		pick, ok := payload.(*model.Pick)
		if !ok || pick == nil {
			return nil, fmt.Errorf("%w: %s got %T", model.ErrPayloadMismatch, ch, payload)
		}

		env := h.sequence(ch, pick, false)
		span.SetAttributes(attribute.Int64("id", env.ID))
		return env, nil

	default:
		return nil, nil
	}
}

func (h *Hub) resolvePlace(ctx context.Context, ev *model.Event) string {
	if h.resolver == nil {
		return model.PlaceUnavailable
	}

	rctx, cancel := context.WithTimeout(ctx, h.config.enrichTimeout)
	defer cancel()

	if place := h.resolver.ResolvePlace(rctx, ev.Latitude, ev.Longitude); place != "" {
		return place
	}
	return model.PlaceUnavailable
}

// sequence is the single writer: id assignment, caching and publication happen atomically.
func (h *Hub) sequence(ch model.Channel, payload any, cacheable bool) *event.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	env := event.NewEnvelope(ch, h.nextID(), payload)
	if cacheable {
		h.cache.Append(env)
		metrics.CachedEvents.Set(float64(h.cache.Len()))
	}
	metrics.IngestedMessages.WithLabelValues(ch.String()).Inc()

	for _, entry := range h.listeners {
		h.safeNotify(entry, env)
	}
	return env
}

// nextID returns the creation-time millisecond timestamp, bumped past the previous id
// whenever the clock did not advance (or went backwards).
func (h *Hub) nextID() int64 {
	id := h.now().UnixMilli()
	if id <= h.lastID {
		id = h.lastID + 1
	}
	h.lastID = id
	return id
}

func (h *Hub) safeNotify(entry listenerEntry, env *event.Envelope) {
	// [PANIC_RECOVERY] One failing consumer must not starve the others.
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("LISTENER_PANIC_RECOVERED",
				slog.String("listener_id", entry.id.String()),
				slog.Int64("event_id", env.ID),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	entry.listener.Notify(env)
}

// Subscribe registers l for every record published after this call.
func (h *Hub) Subscribe(l Listener) ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.register(l)
}

// Attach registers l and returns the cached records newer than lastID in one step.
// A nil lastID means no replay was requested.
func (h *Hub) Attach(l Listener, lastID *int64) (ListenerID, []*event.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var replay []*event.Envelope
	if lastID != nil {
		replay = h.cache.After(*lastID)
	}
	return h.register(l), replay
}

func (h *Hub) register(l Listener) ListenerID {
	id := uuid.New()
	h.listeners = append(h.listeners, listenerEntry{id: id, listener: l})
	return id
}

// Unsubscribe removes the listener; unknown ids are ignored.
func (h *Hub) Unsubscribe(id ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, entry := range h.listeners {
		if entry.id == id {
			// [ORDER_PRESERVING] Registration order is the notification order.
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the replay cache, oldest first.
func (h *Hub) Snapshot() []*event.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache.Snapshot()
}

func (h *Hub) Stats() model.HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return model.HubStats{
		Listeners:    len(h.listeners),
		CachedEvents: h.cache.Len(),
		CacheSize:    h.cache.Capacity(),
		LastID:       h.lastID,
		Uptime:       h.now().Sub(h.startedAt),
	}
}

// Shutdown detaches every listener and closes the ones that own a connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	listeners := h.listeners
	h.listeners = nil
	h.mu.Unlock()

	for _, entry := range listeners {
		if c, ok := entry.listener.(interface{ Close() }); ok {
			c.Close()
		}
	}
	h.logger.Info("HUB_SHUTDOWN", slog.Int("listeners", len(listeners)))
}
