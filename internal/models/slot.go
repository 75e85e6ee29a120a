package models

import "time"

// Slot is a computed booking candidate. Slots are produced fresh per
// availability query and never persisted.
type Slot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Tier            string    `json:"tier"`
	Confidence      string    `json:"confidence"`
	AvailableCovers int       `json:"available_covers"`
}

// Availability reasons returned alongside a (possibly empty) slot list so
// callers can tell "fully booked" apart from "closed" or "too far out".
const (
	ReasonOK            = "ok"
	ReasonClosed        = "closed"
	ReasonPastDate      = "past_date"
	ReasonBeyondHorizon = "beyond_horizon"
)

// Hold is a short-lived checkout claim on a resource window. It blocks
// other owners from confirming the same window until the hold expires.
type Hold struct {
	Token      string    `json:"token"`
	ResourceID int64     `json:"resource_id"`
	OwnerID    string    `json:"owner_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ExpiresAt  time.Time `json:"expires_at"`
}
