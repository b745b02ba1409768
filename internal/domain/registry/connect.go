package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
)

// Interface guard
var _ Connector = (*connect)(nil)

var (
	// ErrSlowConsumer closes a connection whose mailbox stayed full for a high priority frame.
	ErrSlowConsumer = errors.New("slow consumer: mailbox overflow")
	// ErrConnectorClosed is the reason reported after a regular Close.
	ErrConnectorClosed = errors.New("connector closed")
)

// [LISTENER] Anything the Hub can publish to.
type Listener interface {
	Notify(ev *event.Envelope)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(ev *event.Envelope)

func (f ListenerFunc) Notify(ev *event.Envelope) { f(ev) }

// [CONNECTOR] THE INTERFACE FOR TRANSPORT HANDLERS (SSE/WS/LP)
// One connector backs exactly one client connection for its whole lifetime.
type Connector interface {
	Listener
	GetID() uuid.UUID
	Recv() <-chan *event.Envelope
	Done() <-chan struct{}
	Err() error
	Dropped() uint64
	Close()
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id          uuid.UUID
	createdAt   time.Time
	sendTimeout time.Duration

	ctx      context.Context
	cancelFn context.CancelCauseFunc

	// [MAILBOX] Decouples the Hub's publishing loop from network writes.
	// It is never closed: Done() is the termination signal, so a late
	// Notify from the Hub can never panic on a closed channel.
	sendCh chan *event.Envelope

	closeOnce    sync.Once
	droppedCount atomic.Uint64

	// [CONGESTED] Set after a timed out drop, cleared by the next accepted frame.
	congested atomic.Bool
}

// NewConnector creates a connector bound to the lifetime of ctx.
func NewConnector(ctx context.Context, bufferSize int, sendTimeout time.Duration) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancelCause(ctx)

	return &connect{
		id:          uuid.New(),
		createdAt:   time.Now(),
		sendTimeout: sendTimeout,
		ctx:         childCtx,
		cancelFn:    cancel,
		sendCh:      make(chan *event.Envelope, bufferSize),
	}
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() uuid.UUID             { return c.id }
func (c *connect) Recv() <-chan *event.Envelope { return c.sendCh }
func (c *connect) Done() <-chan struct{}        { return c.ctx.Done() }
func (c *connect) Dropped() uint64              { return c.droppedCount.Load() }
func (c *connect) Err() error                   { return context.Cause(c.ctx) }

// Notify is invoked by the Hub for every published record.
// While congested, low priority frames skip the bounded wait so a stalled
// client costs the Hub at most one timeout until its mailbox drains.
func (c *connect) Notify(ev *event.Envelope) {
	high := ev.GetPriority() >= event.PriorityHigh

	timeout := c.sendTimeout
	if !high && c.congested.Load() {
		timeout = 0
	}
	if c.Send(ev, timeout) {
		c.congested.Store(false)
		return
	}
	// [RECOVERY_BY_REPLAY] A dropped EVENT would leave a silent gap, so the
	// connection is torn down and the client resumes from its last id.
	if high {
		c.closeWith(ErrSlowConsumer)
		return
	}
	c.congested.Store(true)
}

// Send attempts to push an event into the mailbox within timeout.
func (c *connect) Send(ev *event.Envelope, timeout time.Duration) bool {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	// 2. [FAST_PATH] Mailbox has room.
	select {
	case c.sendCh <- ev:
		return true
	default:
	}

	if timeout <= 0 {
		c.droppedCount.Add(1)
		return false
	}

	// 3. [BOUNDED_WAIT] Smooth out transient network jitter without holding the Hub hostage.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		return true
	case <-timer.C:
		c.droppedCount.Add(1)
		return false
	}
}

// Close terminates the session. Safe to call more than once and from any goroutine.
func (c *connect) Close() {
	c.closeWith(ErrConnectorClosed)
}

func (c *connect) closeWith(reason error) {
	c.closeOnce.Do(func() {
		c.cancelFn(reason)
	})
}
