package database

import (
	"fmt"

	"lineup/internal/domain"
)

// Store-level sentinels. They wrap the domain taxonomy so errors.Is works
// across layers without the store importing HTTP concerns.
var (
	ErrNotAvailable           = fmt.Errorf("no capacity for the requested window: %w", domain.ErrSlotUnavailable)
	ErrConcurrentModification = fmt.Errorf("reservation changed underneath us: %w", domain.ErrConcurrentModification)
	ErrReservationNotFound    = fmt.Errorf("reservation: %w", domain.ErrNotFound)
	ErrExtensionNotFound      = fmt.Errorf("extension request: %w", domain.ErrNotFound)
)
