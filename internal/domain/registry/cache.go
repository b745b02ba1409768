package registry

import "github.com/quakecast/quake-delivery-service/internal/domain/event"

// DefaultCacheCapacity is the number of EVENT records retained for replay.
const DefaultCacheCapacity = 30

// EventCache is a bounded FIFO ring of envelopes in insertion (and therefore id) order.
// It is not safe for concurrent use; the Hub serializes every access.
type EventCache struct {
	buf   []*event.Envelope
	head  int // index of the oldest entry
	count int
}

func NewEventCache(capacity int) *EventCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &EventCache{buf: make([]*event.Envelope, capacity)}
}

// Append stores ev, evicting the oldest record when the ring is full.
func (c *EventCache) Append(ev *event.Envelope) (evicted *event.Envelope) {
	if c.count == len(c.buf) {
		evicted = c.buf[c.head]
		c.buf[c.head] = ev
		c.head = (c.head + 1) % len(c.buf)
		return evicted
	}
	c.buf[(c.head+c.count)%len(c.buf)] = ev
	c.count++
	return nil
}

func (c *EventCache) Len() int      { return c.count }
func (c *EventCache) Capacity() int { return len(c.buf) }

// Snapshot copies the cache contents, oldest first.
func (c *EventCache) Snapshot() []*event.Envelope {
	out := make([]*event.Envelope, 0, c.count)
	for i := 0; i < c.count; i++ {
		out = append(out, c.buf[(c.head+i)%len(c.buf)])
	}
	return out
}

// After copies every record whose id is strictly greater than lastID, oldest first.
func (c *EventCache) After(lastID int64) []*event.Envelope {
	// ids are ascending, so skip the prefix and copy the tail
	i := 0
	for ; i < c.count; i++ {
		if c.buf[(c.head+i)%len(c.buf)].ID > lastID {
			break
		}
	}
	out := make([]*event.Envelope, 0, c.count-i)
	for ; i < c.count; i++ {
		out = append(out, c.buf[(c.head+i)%len(c.buf)])
	}
	return out
}
