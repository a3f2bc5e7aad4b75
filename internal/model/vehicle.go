package model

import "time"

// Vehicle is a fleet vehicle that owns zero or more documents.
// This is a pure domain model with no database-specific dependencies or tags.
type Vehicle struct {
	ID               string    `json:"id"`
	Plate            string    `json:"plate"`
	Make             string    `json:"make,omitempty"`
	Model            string    `json:"model,omitempty"`
	Year             int       `json:"year,omitempty"`
	ResponsibleEmail string    `json:"responsible_email,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
