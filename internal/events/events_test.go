package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishJSON(t *testing.T) {
	bus := NewBus()

	var received []ReservationEventPayload
	bus.Subscribe(EventReservationConfirmed, func(e *Event) error {
		var p ReservationEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		received = append(received, p)
		return nil
	})

	payload := ReservationEventPayload{
		ReservationID: 42,
		OwnerID:       "guest-1",
		Status:        "confirmed",
		Start:         time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC),
		PartySize:     4,
	}
	require.NoError(t, bus.PublishJSON(EventReservationConfirmed, payload))

	require.Len(t, received, 1)
	assert.Equal(t, int64(42), received[0].ReservationID)
	assert.Equal(t, "guest-1", received[0].OwnerID)
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := NewBus()

	confirmed := 0
	cancelled := 0
	bus.Subscribe(EventReservationConfirmed, func(*Event) error { confirmed++; return nil })
	bus.Subscribe(EventReservationCancelled, func(*Event) error { cancelled++; return nil })

	require.NoError(t, bus.PublishJSON(EventReservationConfirmed, struct{}{}))
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 0, cancelled)
}

func TestBus_HandlerErrorsIgnored(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(EventSessionExpired, func(*Event) error { calls++; return errors.New("boom") })
	bus.Subscribe(EventSessionExpired, func(*Event) error { calls++; return nil })

	require.NoError(t, bus.PublishJSON(EventSessionExpired, struct{}{}))
	// The failing handler does not stop the second one.
	assert.Equal(t, 2, calls)
}

func TestBus_NilSafe(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.PublishJSON(EventSessionWarning, struct{}{}))
}
