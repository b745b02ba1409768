package marshaller

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	// LastEventIDHeader is set by EventSource clients on automatic reconnect.
	LastEventIDHeader = "Last-Event-ID"
	// LastEventIDQuery is the explicit resume parameter used by every transport.
	LastEventIDQuery = "lastEventId"
)

// LastEventID extracts the resume cursor of a streaming request.
// The header wins over the query parameter. An absent or unparsable value yields nil.
func LastEventID(r *http.Request) *int64 {
	raw := strings.TrimSpace(r.Header.Get(LastEventIDHeader))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get(LastEventIDQuery))
	}
	if raw == "" {
		return nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
