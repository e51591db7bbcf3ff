package rewind

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned for transitions submitted to a closed Store.
	ErrClosed = errors.New("store closed")

	// ErrEmptyHistory is returned by Last and Back when the log is empty.
	// Callers should consult Available or Len first.
	ErrEmptyHistory = errors.New("history is empty")
)

// TransitionError describes a transition that was not committed.
// The store retains the value it held before the transition.
type TransitionError struct {
	Store   string
	Handler string
	ID      uuid.UUID
	Err     error
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s.%s: transition %s failed: %v", e.Store, e.Handler, e.ID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *TransitionError) Unwrap() error {
	return e.Err
}
