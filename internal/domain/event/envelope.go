package event

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*Envelope)(nil)

// Envelope is the sequenced record distributed to every listener and kept in the
// replay cache. It is immutable once created.
type Envelope struct {
	Name    model.Channel `json:"name"`
	ID      int64         `json:"id"`
	Payload any           `json:"data"`

	// [MARSHAL_ONCE] The JSON form of Payload is shared by every connection.
	once sync.Once
	data []byte
	err  error
}

// NewEnvelope wraps a payload with its channel and sequence id.
func NewEnvelope(ch model.Channel, id int64, payload any) *Envelope {
	return &Envelope{Name: ch, ID: id, Payload: payload}
}

func (e *Envelope) GetID() int64               { return e.ID }
func (e *Envelope) GetChannel() model.Channel  { return e.Name }
func (e *Envelope) GetPriority() EventPriority { return PriorityOf(e.Name) }
func (e *Envelope) GetPayload() any            { return e.Payload }

// Data returns the JSON encoded payload, computing it on first use.
func (e *Envelope) Data() ([]byte, error) {
	e.once.Do(func() {
		e.data, e.err = json.Marshal(e.Payload)
	})
	return e.data, e.err
}

// Event returns the payload as an earthquake event when the envelope carries one.
func (e *Envelope) Event() (*model.Event, bool) {
	ev, ok := e.Payload.(*model.Event)
	return ev, ok
}
