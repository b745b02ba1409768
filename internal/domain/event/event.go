package event

import "github.com/quakecast/quake-delivery-service/internal/domain/model"

type EventPriority int32

const (
	// PriorityLow frames may be shed under backpressure.
	PriorityLow EventPriority = 10
	// PriorityHigh frames are never shed: the connection is closed instead so the
	// client can recover them through replay.
	PriorityHigh EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() int64
	GetChannel() model.Channel
	GetPriority() EventPriority
	GetPayload() any
	Data() ([]byte, error)
}

// PriorityOf maps a channel to its delivery priority.
func PriorityOf(ch model.Channel) EventPriority {
	if ch == model.ChannelEvent {
		return PriorityHigh
	}
	return PriorityLow
}
