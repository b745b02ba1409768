package dto

import "github.com/quakecast/quake-delivery-service/internal/domain/model"

// [PICK_V1] A station phase arrival published on "PICK".
type PickV1 struct {
	NetworkCode string `json:"networkCode" validate:"required,len=2,alpha"`
	StationCode string `json:"stationCode" validate:"required,min=3,max=5,alphanum"`
	Timestamp   string `json:"timestamp" validate:"required,iso8601"`
}

func (d *PickV1) ToDomain() *model.Pick {
	return &model.Pick{
		NetworkCode: d.NetworkCode,
		StationCode: d.StationCode,
		Timestamp:   d.Timestamp,
	}
}
