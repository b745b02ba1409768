package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingestEvent(t *testing.T, hub *registry.Hub, id string) int64 {
	t.Helper()
	env, err := hub.Ingest(context.Background(), model.ChannelEvent, &model.Event{PublicID: id})
	require.NoError(t, err)
	return env.ID
}

func TestDeliveryService_SubscribeReplaysAfterCursor(t *testing.T) {
	hub := registry.NewHub(registry.WithLogger(discardLogger()))
	svc := NewDeliveryService(hub, 8, 10*time.Millisecond)

	first := ingestEvent(t, hub, "a")
	second := ingestEvent(t, hub, "b")

	conn, replay, err := svc.Subscribe(context.Background(), &first)
	require.NoError(t, err)
	defer svc.Unsubscribe(conn)

	require.Len(t, replay, 1)
	assert.Equal(t, second, replay[0].ID)

	live := ingestEvent(t, hub, "c")
	select {
	case env := <-conn.Recv():
		assert.Equal(t, live, env.ID)
	case <-time.After(time.Second):
		t.Fatal("live record not delivered")
	}
}

func TestDeliveryService_NoCursorNoReplay(t *testing.T) {
	hub := registry.NewHub(registry.WithLogger(discardLogger()))
	svc := NewDeliveryService(hub, 8, 10*time.Millisecond)
	ingestEvent(t, hub, "a")

	conn, replay, err := svc.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	defer svc.Unsubscribe(conn)

	assert.Empty(t, replay)
}

func TestDeliveryService_Unsubscribe(t *testing.T) {
	hub := registry.NewHub(registry.WithLogger(discardLogger()))
	svc := NewDeliveryService(hub, 8, 10*time.Millisecond)

	conn, _, err := svc.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, hub.Stats().Listeners)

	svc.Unsubscribe(conn)
	svc.Unsubscribe(conn)

	assert.Equal(t, 0, hub.Stats().Listeners)
	select {
	case <-conn.Done():
	default:
		t.Fatal("connector still open")
	}
}

func TestDeliveryService_CancelledContext(t *testing.T) {
	hub := registry.NewHub(registry.WithLogger(discardLogger()))
	svc := NewDeliveryService(hub, 8, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.Subscribe(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, hub.Stats().Listeners)
}

// A client resuming while records are being ingested must see a gapless,
// duplicate free continuation of the sequence.
func TestDeliveryService_ResumeDuringIngestIsGapless(t *testing.T) {
	hub := registry.NewHub(registry.WithLogger(discardLogger()))
	svc := NewDeliveryService(hub, 512, time.Second)

	var all []int64
	hub.Subscribe(registry.ListenerFunc(func(env *event.Envelope) { all = append(all, env.ID) }))

	const total = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range total {
			_, _ = hub.Ingest(context.Background(), model.ChannelEvent, &model.Event{})
		}
	}()

	var cursor int64
	conn, replay, err := svc.Subscribe(context.Background(), &cursor)
	require.NoError(t, err)
	defer svc.Unsubscribe(conn)

	wg.Wait()

	var got []int64
	for _, env := range replay {
		got = append(got, env.ID)
	}
drain:
	for {
		select {
		case env := <-conn.Recv():
			got = append(got, env.ID)
		default:
			break drain
		}
	}

	require.Len(t, all, total)
	require.NotEmpty(t, got)
	assert.Equal(t, all[len(all)-len(got):], got)
}
