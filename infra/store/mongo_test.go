package store

import (
	"context"
	"errors"
	"testing"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestWrapUnavailable(t *testing.T) {
	assert.NoError(t, wrapUnavailable(nil))
	assert.ErrorIs(t, wrapUnavailable(context.DeadlineExceeded), model.ErrStoreUnavailable)
	assert.ErrorIs(t, wrapUnavailable(mongo.ErrClientDisconnected), model.ErrStoreUnavailable)

	plain := errors.New("validation failed")
	assert.NotErrorIs(t, wrapUnavailable(plain), model.ErrStoreUnavailable)
}

func TestMongoStore_UnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for server selection timeout")
	}
	ctx := context.Background()

	s, err := NewMongoStore(ctx, "mongodb://127.0.0.1:1/?directConnection=true", "quake_test", "")
	require.NoError(t, err)
	defer s.Close(ctx)

	assert.False(t, s.Available(ctx))

	_, err = s.FindAll(ctx)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}
