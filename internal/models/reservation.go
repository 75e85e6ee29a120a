package models

import "time"

// Reservation is the canonical unit of commitment. ResourceID 0 on input
// means "any table seating the party"; the ledger resolves it at commit.
type Reservation struct {
	ID               int64     `json:"id"`
	ConfirmationCode string    `json:"confirmation_code"`
	VenueID          string    `json:"venue_id"`
	ResourceID       int64     `json:"resource_id"`
	ResourceName     string    `json:"resource_name"`
	Kind             string    `json:"kind"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	PartySize        int       `json:"party_size"`
	Status           string    `json:"status"`
	Source           string    `json:"source"`
	OwnerID          string    `json:"owner_id"`
	GuestName        string    `json:"guest_name"`
	GuestPhone       string    `json:"guest_phone"`
	CancelReason     string    `json:"cancel_reason,omitempty"`
	CancelledBy      string    `json:"cancelled_by,omitempty"`
	CancelledAt      time.Time `json:"cancelled_at,omitempty"`
	WarningNotified  bool      `json:"warning_notified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// Overlaps reports whether [Start, End) intersects [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.Start.Before(end) && start.Before(r.End)
}

// Terminal reports whether the reservation reached a terminal status.
func (r *Reservation) Terminal() bool {
	return IsTerminalStatus(r.Status)
}

// ExtensionRequest asks for extra time on a session resource. Accepted only
// while the session is inside its warning window.
type ExtensionRequest struct {
	ID            string    `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	Minutes       int       `json:"minutes"`
	ActorID       string    `json:"actor_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ResolvedAt    time.Time `json:"resolved_at,omitempty"`
}
