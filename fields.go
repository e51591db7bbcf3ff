package rewind

import "github.com/zoobzio/capitan"

// Field keys for rewind events.
var (
	// KeyStore is the name of the Store.
	KeyStore = capitan.NewStringKey("store")

	// KeyHandler is the name of the handler computing a transition.
	KeyHandler = capitan.NewStringKey("handler")

	// KeyTransition is the ID of a transition request.
	KeyTransition = capitan.NewStringKey("transition")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyQueueDepth is the number of transitions waiting behind the current one.
	KeyQueueDepth = capitan.NewIntKey("queue_depth")

	// KeyDuration is the time spent computing a transition.
	KeyDuration = capitan.NewDurationKey("duration")

	// KeyHistory is the name of the History.
	KeyHistory = capitan.NewStringKey("history")

	// KeySize is the number of entries in a History after an operation.
	KeySize = capitan.NewIntKey("size")

	// KeyMaxSize is the configured History bound, 0 when unbounded.
	KeyMaxSize = capitan.NewIntKey("max_size")

	// KeySource is the index of a CompositeFeed source.
	KeySource = capitan.NewIntKey("source")

	// KeyContentType is the MIME type of the codec used by a Feed.
	KeyContentType = capitan.NewStringKey("content_type")
)
