package rewind

import "github.com/google/uuid"

// Transition carries one requested state change through a handler pipeline.
// Middleware sees Previous and Payload before the handler runs; processors
// wrapping the handler also see Next.
type Transition[T any] struct {
	// ID identifies the request. It matches Pending.ID.
	ID uuid.UUID

	// Handler is the name of the handler that computes Next.
	Handler string

	// Previous is the store value when the transition began.
	Previous T

	// Next is the value to commit. It is set by the handler and may be
	// adjusted by processors that run after it.
	Next T

	// Payload is the value submitted with the request.
	Payload any
}
