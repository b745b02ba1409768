package pubsub

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	infrapubsub "github.com/quakecast/quake-delivery-service/infra/pubsub"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "seismic"

type pipeline struct {
	hub  *registry.Hub
	bus  *gochannel.GoChannel
	live chan *event.Envelope
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()

	hub := registry.NewHub()
	live := make(chan *event.Envelope, 16)
	hub.Subscribe(registry.ListenerFunc(func(ev *event.Envelope) { live <- ev }))

	wmLog := watermill.NopLogger{}
	bus := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, wmLog)

	h := NewMessageHandler(hub, slog.Default(), wmLog)
	router, err := message.NewRouter(message.RouterConfig{}, wmLog)
	require.NoError(t, err)

	routes := map[model.Channel]message.NoPublishHandlerFunc{
		model.ChannelEvent: Bind(h, h.OnEventV1),
		model.ChannelPick:  Bind(h, h.OnPickV1),
	}
	router.AddConsumerHandler(HandlerName, testTopic, bus, Route(h, routes)).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(slog.Default()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	t.Cleanup(func() {
		cancel()
		_ = router.Close()
		_ = bus.Close()
	})
	return &pipeline{hub: hub, bus: bus, live: live}
}

func (p *pipeline) publish(t *testing.T, channel, payload string) {
	t.Helper()
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	msg.Metadata.Set(infrapubsub.MetadataChannel, channel)
	require.NoError(t, p.bus.Publish(testTopic, msg))
}

func (p *pipeline) next(t *testing.T) *event.Envelope {
	t.Helper()
	select {
	case ev := <-p.live:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return nil
	}
}

const mindoroJSON = `{
	"publicID": "2024p123456",
	"OT": "2024-05-01T10:00:00Z",
	"latitude_value": 13.734,
	"longitude_value": "120.595",
	"depth_value": "10",
	"magnitude_value": "5.6",
	"eventType": "NEW",
	"text": "Mindoro, Philippines"
}`

func TestPipeline_EventIsIngestedAndCached(t *testing.T) {
	p := startPipeline(t)

	p.publish(t, "EVENT", mindoroJSON)

	env := p.next(t)
	assert.Equal(t, model.ChannelEvent, env.Name)
	ev, ok := env.Event()
	require.True(t, ok)
	assert.Equal(t, 5.6, ev.Magnitude)
	assert.Equal(t, 120.595, ev.Longitude)
	assert.Equal(t, model.PlaceUnavailable, ev.Place)
	assert.Len(t, p.hub.Snapshot(), 1)
}

func TestPipeline_PickIsLiveOnly(t *testing.T) {
	p := startPipeline(t)

	p.publish(t, "PICK", `{"networkCode":"AM","stationCode":"RE722","timestamp":"2024-05-01T10:00:01.52Z"}`)

	env := p.next(t)
	assert.Equal(t, model.ChannelPick, env.Name)
	assert.Empty(t, p.hub.Snapshot())
}

func TestPipeline_DropsInvalidAndUnknown(t *testing.T) {
	p := startPipeline(t)

	p.publish(t, "STATUS", `{"anything":true}`)
	p.publish(t, "EVENT", `{not json`)
	p.publish(t, "EVENT", `{"publicID":"x","OT":"yesterday","eventType":"NEW"}`)
	p.publish(t, "PICK", `{"networkCode":"AMX","stationCode":"R","timestamp":"2024-05-01T10:00:01Z"}`)

	// pipeline keeps consuming after the rejects
	p.publish(t, "PICK", `{"networkCode":"AM","stationCode":"RE722","timestamp":"2024-05-01T10:00:01Z"}`)

	env := p.next(t)
	assert.Equal(t, model.ChannelPick, env.Name)
	assert.Empty(t, p.hub.Snapshot())

	select {
	case extra := <-p.live:
		t.Fatalf("unexpected record %+v", extra)
	default:
	}
}

func TestPipeline_PreservesOrderAcrossChannels(t *testing.T) {
	p := startPipeline(t)

	p.publish(t, "EVENT", mindoroJSON)
	p.publish(t, "PICK", `{"networkCode":"AM","stationCode":"RE722","timestamp":"2024-05-01T10:00:01Z"}`)
	p.publish(t, "EVENT", mindoroJSON)

	first, second, third := p.next(t), p.next(t), p.next(t)
	assert.Equal(t, []model.Channel{model.ChannelEvent, model.ChannelPick, model.ChannelEvent},
		[]model.Channel{first.Name, second.Name, third.Name})
	assert.Less(t, first.ID, second.ID)
	assert.Less(t, second.ID, third.ID)
}

func TestTraceIDMiddleware(t *testing.T) {
	var seen string
	h := TraceIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		seen = TraceIDFromContext(msg.Context())
		return nil, nil
	})

	msg := message.NewMessage(watermill.NewUUID(), nil)
	_, err := h(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, msg.Metadata.Get("trace_id"))

	msg = message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set("trace_id", "abc")
	_, _ = h(msg)
	assert.Equal(t, "abc", seen)
}
