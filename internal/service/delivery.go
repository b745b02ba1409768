package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (SSE/WS/LP)
type Deliverer interface {
	Subscribe(ctx context.Context, lastID *int64) (registry.Connector, []*event.Envelope, error)
	Unsubscribe(conn registry.Connector)
	Snapshot() []*event.Envelope
}

type DeliveryService struct {
	hub         registry.Hubber
	mailboxSize int
	sendTimeout time.Duration

	mu      sync.Mutex
	handles map[uuid.UUID]registry.ListenerID
}

// NewDeliveryService returns a production-ready instance of the service.
func NewDeliveryService(hub registry.Hubber, mailboxSize int, sendTimeout time.Duration) *DeliveryService {
	return &DeliveryService{
		hub:         hub,
		mailboxSize: mailboxSize,
		sendTimeout: sendTimeout,
		handles:     make(map[uuid.UUID]registry.ListenerID),
	}
}

// [SUBSCRIBE] HANDLES CONNECTION LIFECYCLE INITIATION
// The returned replay holds every cached record newer than lastID; the caller writes it
// before draining conn.Recv(), which then carries only records published after the attach.
func (s *DeliveryService) Subscribe(ctx context.Context, lastID *int64) (registry.Connector, []*event.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// 1. Create a connector bound to the request lifetime
	conn := registry.NewConnector(ctx, s.mailboxSize, s.sendTimeout)

	// 2. Take the replay tail and go live in one step
	handle, replay := s.hub.Attach(conn, lastID)

	s.mu.Lock()
	s.handles[conn.GetID()] = handle
	s.mu.Unlock()

	return conn, replay, nil
}

// [UNSUBSCRIBE] TRIGGERS CLEANUP. Safe to call more than once.
func (s *DeliveryService) Unsubscribe(conn registry.Connector) {
	s.mu.Lock()
	handle, ok := s.handles[conn.GetID()]
	delete(s.handles, conn.GetID())
	s.mu.Unlock()

	if ok {
		s.hub.Unsubscribe(handle)
	}
	conn.Close()
}

func (s *DeliveryService) Snapshot() []*event.Envelope {
	return s.hub.Snapshot()
}
