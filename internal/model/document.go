package model

import "time"

// DocumentStatus classifies how close a document is to expiry.
type DocumentStatus string

const (
	StatusExpired  DocumentStatus = "expired"  // already past valid_to
	StatusCritical DocumentStatus = "critical" // 0..7 days left
	StatusWarning  DocumentStatus = "warning"  // 8..30 days left
	StatusOK       DocumentStatus = "ok"       // more than 30 days left
)

// Document is a regulatory or maintenance document attached to a vehicle.
// AttachmentKey, when set, points at the scanned copy in object storage.
type Document struct {
	ID            string     `json:"id"`
	VehicleID     string     `json:"vehicle_id"`
	DocType       DocType    `json:"doc_type"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidTo       time.Time  `json:"valid_to"`
	Note          string     `json:"note,omitempty"`
	AttachmentKey string     `json:"attachment_key,omitempty"`
}

// DueDocument is one row of the expiry evaluator output: a document that
// crossed a configured notification threshold today.
type DueDocument struct {
	DocumentID       string
	Plate            string
	DocType          DocType
	ValidTo          time.Time
	ResponsibleEmail string
	DaysLeft         int
}

// DaysLeft returns the whole-day difference between validTo and today,
// comparing calendar dates only. Negative means already expired.
func DaysLeft(validTo, today time.Time) int {
	return int(dateOnly(validTo).Sub(dateOnly(today)).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StatusFor maps a days-left value to a document status.
func StatusFor(daysLeft int) DocumentStatus {
	switch {
	case daysLeft < 0:
		return StatusExpired
	case daysLeft <= 7:
		return StatusCritical
	case daysLeft <= 30:
		return StatusWarning
	default:
		return StatusOK
	}
}
