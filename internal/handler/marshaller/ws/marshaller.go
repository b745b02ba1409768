package wsmarshaller

import (
	"github.com/goccy/go-json"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
)

// WSEvent is the JSON text frame sent for every distributed record.
type WSEvent struct {
	Event string          `json:"event"` // "EVENT" or "PICK"
	ID    int64           `json:"id"`
	Data  json.RawMessage `json:"data"`
}

// MarshallDeliveryEvent prepares data for WebSocket transmission.
// The payload JSON is the envelope's shared encoding, so it is computed once per record.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	data, err := ev.Data()
	if err != nil {
		return nil, err
	}

	return json.Marshal(&WSEvent{
		Event: ev.GetChannel().String(),
		ID:    ev.GetID(),
		Data:  data,
	})
}
