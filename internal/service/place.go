package service

import (
	"fmt"
	"math"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
)

const earthRadiusKm = 6371.0

// Cone half-widths, in degrees from the horizontal, below which a bearing is reported
// as a single cardinal letter instead of a two-letter intercardinal.
const (
	eastWestOnlyBelow   = 10.0
	northSouthOnlyAbove = 80.0
)

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Compass abbreviates the direction of travel given signed degree deltas.
// The 10 and 80 degree cutoffs apply to the bearing angle atan2(|dLat|, |dLon|),
// not to the size of either delta: below 10 yields "E"/"W", above 80 "N"/"S",
// anything in between a combined "NE", "SW", etc. Zero deltas yield "".
func Compass(dLat, dLon float64) string {
	if dLat == 0 && dLon == 0 {
		return ""
	}

	var ns, ew string
	switch {
	case dLat > 0:
		ns = "N"
	case dLat < 0:
		ns = "S"
	}
	switch {
	case dLon > 0:
		ew = "E"
	case dLon < 0:
		ew = "W"
	}

	angle := math.Atan2(math.Abs(dLat), math.Abs(dLon)) * 180 / math.Pi
	switch {
	case angle < eastWestOnlyBelow:
		return ew
	case angle > northSouthOnlyAbove:
		return ns
	default:
		return ns + ew
	}
}

// FormatPlace renders "<km> km <dir> of <place>, <country>" for an event at (lat, lon)
// relative to the nearest named place p.
func FormatPlace(lat, lon float64, p *model.Place) string {
	name := p.Name
	if name == "" {
		name = p.Region
	}
	label := name
	if p.Country != "" {
		label = fmt.Sprintf("%s, %s", name, p.Country)
	}

	dir := Compass(lat-p.Latitude, lon-p.Longitude)
	if dir == "" {
		return label
	}

	km := math.Round(HaversineKm(p.Latitude, p.Longitude, lat, lon))
	return fmt.Sprintf("%d km %s of %s", int64(km), dir, label)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
