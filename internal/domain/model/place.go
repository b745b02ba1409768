package model

// PlaceUnavailable is substituted for the place description whenever enrichment fails.
const PlaceUnavailable = "Unavailable"

// Place is the nearest named location returned by the reverse-geocoding provider.
type Place struct {
	Name      string
	Region    string
	Country   string
	Latitude  float64
	Longitude float64
}
