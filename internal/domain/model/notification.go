package model

// Notification is the body handed to the push provider.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type DispatchStatus int

const (
	// DispatchSkipped means the event did not reach the magnitude threshold.
	DispatchSkipped DispatchStatus = iota + 1
	DispatchDispatched
	// DispatchStoreUnavailable means no delivery was attempted at all.
	DispatchStoreUnavailable
)

func (s DispatchStatus) String() string {
	switch s {
	case DispatchSkipped:
		return "skipped"
	case DispatchDispatched:
		return "dispatched"
	case DispatchStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// DispatchReport summarizes one MaybeNotify run.
type DispatchReport struct {
	Status    DispatchStatus
	Attempted int
	Delivered int
	Pruned    int
	Failed    int
}

type PushResult int

const (
	PushDelivered PushResult = iota + 1
	// PushTransient leaves the subscription in place for the next qualifying event.
	PushTransient
	// PushPermanent means the endpoint is gone or invalid and must be pruned.
	PushPermanent
)

// PushOutcome is the typed result of a single push attempt.
type PushOutcome struct {
	Result     PushResult
	StatusCode int
	Err        error
}

func (r PushResult) String() string {
	switch r {
	case PushDelivered:
		return "delivered"
	case PushTransient:
		return "transient"
	case PushPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}
