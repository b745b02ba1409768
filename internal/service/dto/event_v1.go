package dto

import "github.com/quakecast/quake-delivery-service/internal/domain/model"

// [EVENT_V1] THE PAYLOAD PUBLISHED BY THE SEISMIC PROCESSING SYSTEM ON "EVENT"
type EventV1 struct {
	PublicID         string    `json:"publicID" validate:"required"`
	OriginTime       string    `json:"OT" validate:"required,iso8601"`
	Latitude         FlexFloat `json:"latitude_value" validate:"latitude"`
	Longitude        FlexFloat `json:"longitude_value" validate:"longitude"`
	Depth            FlexFloat `json:"depth_value"`
	Magnitude        FlexFloat `json:"magnitude_value" validate:"gte=-2,lte=11"`
	EventType        string    `json:"eventType" validate:"required,oneof=NEW UPDATE"`
	Method           string    `json:"method"`
	Text             string    `json:"text"`
	LastModification string    `json:"last_modification"`
}

func (d *EventV1) ToDomain() *model.Event {
	return &model.Event{
		PublicID:         d.PublicID,
		OriginTime:       d.OriginTime,
		Latitude:         float64(d.Latitude),
		Longitude:        float64(d.Longitude),
		Depth:            float64(d.Depth),
		Magnitude:        float64(d.Magnitude),
		Type:             model.EventType(d.EventType),
		Method:           d.Method,
		Text:             d.Text,
		LastModification: d.LastModification,
	}
}
