package models

// Reservation lifecycle statuses. Terminal: completed, cancelled, no_show.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusArrived   = "arrived"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Intake channels.
const (
	SourceApp    = "app"
	SourcePhone  = "phone"
	SourceWalkIn = "walkin"
)

// Resource kinds.
const (
	KindTable     = "table"
	KindLane      = "lane"
	KindTimeBlock = "timeblock"
)

// Resource statuses.
const (
	ResourceAvailable    = "available"
	ResourceHeld         = "held"
	ResourceOccupied     = "occupied"
	ResourceOutOfService = "out_of_service"
)

// Slot tiers, most favorable first.
const (
	TierRecommended = "recommended"
	TierAvailable   = "available"
	TierFlexible    = "flexible"
)

// Slot confidence.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// ExtensionRequest statuses.
const (
	ExtensionRequested = "requested"
	ExtensionApproved  = "approved"
	ExtensionDenied    = "denied"
	ExtensionExpired   = "expired"
)

// Actor roles supplied by the identity provider.
const (
	RoleDiner = "diner"
	RoleStaff = "staff"
)

const (
	// DefaultGranularityMinutes is the slot grid step.
	DefaultGranularityMinutes = 15

	// DefaultDiningDurationMinutes is assumed when a request carries no duration.
	DefaultDiningDurationMinutes = 90

	// DefaultCutoffMinutes blocks non-staff modification this close to start.
	DefaultCutoffMinutes = 120

	// DefaultHorizonDays caps how far out availability is computed.
	DefaultHorizonDays = 90

	// DefaultWarningMinutes before a session's end the owner is warned.
	DefaultWarningMinutes = 15

	// DefaultHoldTTL seconds a checkout hold stays alive in redis.
	DefaultHoldTTLSeconds = 300

	// DefaultRecommendedMargin multiplies party size for the recommended tier.
	DefaultRecommendedMargin = 2.0

	// DefaultTightFitCovers is the headroom under which a slot counts as a tight fit.
	DefaultTightFitCovers = 2
)

// IsTerminalStatus reports whether a reservation status permits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsCommittedStatus reports whether a reservation counts against capacity.
func IsCommittedStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusArrived:
		return true
	}
	return false
}
