package model

import "time"

// PushKeys are the base64 encoded values from PushSubscription.getKey().
type PushKeys struct {
	P256dh string `json:"p256dh" bson:"p256dh" validate:"required"`
	Auth   string `json:"auth" bson:"auth" validate:"required"`
}

// [PUSH_SUBSCRIPTION] A browser push endpoint. The endpoint URI is the identity.
type PushSubscription struct {
	Endpoint       string    `json:"endpoint" bson:"endpoint" validate:"required,url"`
	ExpirationTime *int64    `json:"expirationTime,omitempty" bson:"expiration_time,omitempty"`
	Keys           PushKeys  `json:"keys" bson:"keys"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
}

type RegisterStatus int

const (
	RegisterCreated RegisterStatus = iota + 1
	RegisterExists
)

func (s RegisterStatus) String() string {
	switch s {
	case RegisterCreated:
		return "created"
	case RegisterExists:
		return "already exists"
	default:
		return "unknown"
	}
}
