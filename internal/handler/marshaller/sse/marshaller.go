package ssemarshaller

import (
	"bytes"
	"strconv"

	"github.com/quakecast/quake-delivery-service/internal/domain/event"
)

// Heartbeat is an SSE comment line. EventSource clients ignore it.
var Heartbeat = []byte(": heartbeat\n\n")

// MarshallFrame renders one envelope as a text/event-stream frame:
//
//	event: <name>
//	data: <json>
//	id: <id>
func MarshallFrame(ev event.Eventer) ([]byte, error) {
	data, err := ev.Data()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 48)

	buf.WriteString("event: ")
	buf.WriteString(ev.GetChannel().String())
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\nid: ")
	buf.WriteString(strconv.FormatInt(ev.GetID(), 10))
	buf.WriteString("\n\n")

	return buf.Bytes(), nil
}
