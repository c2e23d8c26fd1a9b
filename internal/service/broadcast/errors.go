package broadcast

import (
	"errors"
	"fmt"

	"github.com/ignite/broadcast-engine/internal/domain"
)

// Sentinel errors for the broadcast service layer.
var (
	ErrNotFound = errors.New("broadcast not found")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden = errors.New("not allowed to access this broadcast")
	// ErrNotClaimed is returned by ClaimSending when the broadcast was
	// already claimed (or moved out of an eligible state) by a
	// concurrent sender.
	ErrNotClaimed = errors.New("broadcast already claimed or not eligible for sending")
	// ErrImmutable is returned when a sent broadcast's subject,
	// content, or recipients would change.
	ErrImmutable = errors.New("sent broadcasts cannot be modified")
	// ErrPastSchedule is returned when the schedule time is not in the
	// future.
	ErrPastSchedule = errors.New("scheduled time must be in the future")
)

// InvalidTransitionError reports a lifecycle event applied in a state
// that does not permit it.
type InvalidTransitionError struct {
	From  domain.BroadcastStatus
	Event domain.Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s while broadcast is %s", e.Event, e.From)
}

// NewInvalidTransition builds an InvalidTransitionError.
func NewInvalidTransition(from domain.BroadcastStatus, event domain.Event) error {
	return &InvalidTransitionError{From: from, Event: event}
}
