package model

// Producer is the authenticated caller of the restricted injection endpoints.
type Producer struct {
	Subject string
	Issuer  string
	Role    string
}
