package lpmarshaller

import (
	"github.com/goccy/go-json"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
)

// LPEvent represents a single event structured for long-polling consumers.
type LPEvent struct {
	Event string          `json:"event"`
	ID    int64           `json:"id"`
	Data  json.RawMessage `json:"data"`
}

// Response defines the top-level JSON array to support event batching.
type Response struct {
	Events []LPEvent `json:"events"`
}

// MarshallEvents converts a batch of envelopes into a single JSON document.
// Clients resume with the id of the last element.
func MarshallEvents(events []*event.Envelope) ([]byte, error) {
	res := Response{
		Events: make([]LPEvent, 0, len(events)),
	}

	for _, ev := range events {
		data, err := ev.Data()
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, LPEvent{
			Event: ev.GetChannel().String(),
			ID:    ev.GetID(),
			Data:  data,
		})
	}

	return json.Marshal(res)
}
