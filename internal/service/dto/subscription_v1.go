package dto

import (
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
)

// SubscriptionV1 mirrors the browser's PushSubscription.toJSON().
type SubscriptionV1 struct {
	Endpoint       string `json:"endpoint" validate:"required,url"`
	ExpirationTime *int64 `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh" validate:"required,base64url|base64rawurl|base64"`
		Auth   string `json:"auth" validate:"required,base64url|base64rawurl|base64"`
	} `json:"keys" validate:"required"`
}

func (d *SubscriptionV1) ToDomain(now time.Time) *model.PushSubscription {
	return &model.PushSubscription{
		Endpoint:       d.Endpoint,
		ExpirationTime: d.ExpirationTime,
		Keys: model.PushKeys{
			P256dh: d.Keys.P256dh,
			Auth:   d.Keys.Auth,
		},
		CreatedAt: now.UTC(),
	}
}
