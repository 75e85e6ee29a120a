package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by the ledger, availability engine, scheduler and
// the HTTP layer. Handlers map these to status codes; nothing downstream
// inspects error strings.
var (
	// ErrInvalidRequest marks malformed caller input. Not retryable.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound marks an unknown venue, resource or reservation id.
	ErrNotFound = errors.New("not found")

	// ErrSlotUnavailable marks a capacity or exclusivity conflict detected at
	// commit time. Expected under concurrency; callers should re-query
	// availability rather than retry the same request.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrCutoffExceeded marks a modification attempted inside the venue's
	// cutoff window by a non-privileged actor.
	ErrCutoffExceeded = errors.New("cutoff exceeded")

	// ErrInvalidTransition marks a reservation state-machine violation.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidState marks an extension submitted outside the warning window.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthorized marks an actor lacking permission for the mutation.
	// Never downgraded to another error.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConcurrentModification marks an optimistic-version conflict in the store.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// CutoffError carries the deadline so the API can explain why the
// modification was rejected.
type CutoffError struct {
	Deadline time.Time
}

func (e *CutoffError) Error() string {
	return fmt.Sprintf("cutoff exceeded: changes were allowed until %s", e.Deadline.Format(time.RFC3339))
}

func (e *CutoffError) Unwrap() error { return ErrCutoffExceeded }
