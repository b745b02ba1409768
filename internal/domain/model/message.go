package model

type Channel string

const (
	// [HIGH_VALUE] Low frequency, enriched and cached for replay.
	ChannelEvent Channel = "EVENT"
	// [HIGH_FREQUENCY] Delivered live only.
	ChannelPick Channel = "PICK"
)

// ParseChannel reports whether the raw transport channel is one this service distributes.
// Wildcard subscriptions may carry unrelated channels; those are not an error.
func ParseChannel(raw string) (Channel, bool) {
	switch Channel(raw) {
	case ChannelEvent, ChannelPick:
		return Channel(raw), true
	default:
		return "", false
	}
}

func (c Channel) String() string { return string(c) }

type EventType string

const (
	EventTypeNew    EventType = "NEW"
	EventTypeUpdate EventType = "UPDATE"
)

// [EVENT] A located earthquake as published by the seismic processing system.
// JSON names follow the upstream wire format verbatim.
type Event struct {
	PublicID         string    `json:"publicID"`
	OriginTime       string    `json:"OT"`
	Latitude         float64   `json:"latitude_value"`
	Longitude        float64   `json:"longitude_value"`
	Depth            float64   `json:"depth_value"`
	Magnitude        float64   `json:"magnitude_value"`
	Type             EventType `json:"eventType"`
	Method           string    `json:"method,omitempty"`
	Text             string    `json:"text"`
	LastModification string    `json:"last_modification,omitempty"`

	// [ENRICHMENT] Human readable location, or the sentinel when unavailable.
	Place string `json:"place,omitempty"`
}

// Clone returns a shallow copy so enrichment never mutates a caller owned value.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// [PICK] A single station phase arrival.
type Pick struct {
	NetworkCode string `json:"networkCode"`
	StationCode string `json:"stationCode"`
	Timestamp   string `json:"timestamp"`
}
