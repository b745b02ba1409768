package model

import "errors"

var (
	// ErrStoreUnavailable is returned when the subscription store cannot be reached.
	ErrStoreUnavailable = errors.New("subscription store unavailable")

	// ErrPayloadMismatch signals a payload whose type does not belong to the channel.
	ErrPayloadMismatch = errors.New("payload does not match channel")

	// ErrInvalidMessage marks inbound messages that failed decoding or validation.
	ErrInvalidMessage = errors.New("invalid inbound message")
)

// ErrDuplicateSubscription is returned by stores when the endpoint is already registered.
var ErrDuplicateSubscription = errors.New("push subscription already exists")

var (
	// ErrUnauthenticated is returned when a bearer token is missing, malformed or not trusted.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned for a valid token that lacks the required role.
	ErrForbidden = errors.New("forbidden")
)
