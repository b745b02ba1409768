package sse

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledWriter accepts headers but blocks every body write until its write
// deadline passes, like a client whose TCP window stays at zero.
type stalledWriter struct {
	header  http.Header
	release chan struct{}

	mu       sync.Mutex
	deadline time.Time
}

func newStalledWriter(t *testing.T) *stalledWriter {
	w := &stalledWriter{header: http.Header{}, release: make(chan struct{})}
	t.Cleanup(func() { close(w.release) })
	return w
}

func (w *stalledWriter) Header() http.Header { return w.header }
func (w *stalledWriter) WriteHeader(int)     {}
func (w *stalledWriter) Flush()              {}

func (w *stalledWriter) SetWriteDeadline(d time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline = d
	return nil
}

func (w *stalledWriter) Write([]byte) (int, error) {
	w.mu.Lock()
	d := w.deadline
	w.mu.Unlock()

	if d.IsZero() {
		<-w.release
		return 0, io.ErrClosedPipe
	}
	select {
	case <-time.After(time.Until(d)):
		return 0, os.ErrDeadlineExceeded
	case <-w.release:
		return 0, io.ErrClosedPipe
	}
}

func TestSSE_StalledClientReachesClosed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := registry.NewHub(registry.WithLogger(logger))
	deliverer := service.NewDeliveryService(hub, 16, 10*time.Millisecond)

	h := NewSSEHandler(logger, deliverer, 10*time.Millisecond)
	h.writeWait = 20 * time.Millisecond

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil).WithContext(context.Background())
	w := newStalledWriter(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open for a client that stopped reading")
	}
	assert.Zero(t, hub.Stats().Listeners)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
