package service

import (
	"context"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
)

// Auther validates a bearer token presented to the restricted endpoints.
// It returns model.ErrUnauthenticated or model.ErrForbidden (possibly wrapped).
type Auther interface {
	Inspect(ctx context.Context, token string) (*model.Producer, error)
}
