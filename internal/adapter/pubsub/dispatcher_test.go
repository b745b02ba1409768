package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDispatcher_PublishesOnChannel(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	msgs, err := bus.Subscribe(context.Background(), "EVENT")
	require.NoError(t, err)

	d := NewEventDispatcher(bus)
	require.NoError(t, d.Publish(context.Background(), model.ChannelEvent, []byte(`{"publicID":"x"}`)))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"publicID":"x"}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message not published")
	}
	assert.Same(t, bus, d.Publisher())
}

func TestEventDispatcher_RejectsEmptyPayload(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	assert.Error(t, NewEventDispatcher(bus).Publish(context.Background(), model.ChannelPick, nil))
}
