package rewind

import "github.com/zoobzio/capitan"

// Store lifecycle signals.
var (
	// StoreStarted is emitted when a Store worker begins processing transitions.
	StoreStarted = capitan.NewSignal(
		"rewind.store.started",
		"Store worker started",
	)

	// StoreClosed is emitted once a Store has drained its queue and stopped.
	StoreClosed = capitan.NewSignal(
		"rewind.store.closed",
		"Store closed",
	)

	// StoreStateChanged is emitted when a Store transitions between states.
	StoreStateChanged = capitan.NewSignal(
		"rewind.store.state.changed",
		"Store state transition",
	)
)

// Transition signals.
var (
	// TransitionQueued is emitted when a transition request is accepted.
	TransitionQueued = capitan.NewSignal(
		"rewind.transition.queued",
		"Transition request queued",
	)

	// TransitionApplied is emitted after a new value is committed.
	TransitionApplied = capitan.NewSignal(
		"rewind.transition.applied",
		"Transition committed",
	)

	// TransitionFailed is emitted when a handler fails and nothing is committed.
	TransitionFailed = capitan.NewSignal(
		"rewind.transition.failed",
		"Transition failed, previous value retained",
	)
)

// History signals.
var (
	// HistorySynced is emitted when a History attaches to a source.
	HistorySynced = capitan.NewSignal(
		"rewind.history.synced",
		"History linked to a source",
	)

	// HistoryUnsynced is emitted when a History detaches from its source.
	HistoryUnsynced = capitan.NewSignal(
		"rewind.history.unsynced",
		"History link removed",
	)

	// HistoryRecorded is emitted when a value is pushed onto the log.
	HistoryRecorded = capitan.NewSignal(
		"rewind.history.recorded",
		"Value recorded in history",
	)

	// HistoryTrimmed is emitted when the oldest entry is dropped to honour the bound.
	HistoryTrimmed = capitan.NewSignal(
		"rewind.history.trimmed",
		"Oldest history entry dropped",
	)

	// HistoryRewound is emitted when Back pops the head of the log.
	HistoryRewound = capitan.NewSignal(
		"rewind.history.rewound",
		"History head popped",
	)

	// HistorySuppressed is emitted when an observed value is not recorded
	// because it is the replay of a Back.
	HistorySuppressed = capitan.NewSignal(
		"rewind.history.suppressed",
		"Replayed value not recorded",
	)

	// HistoryReset is emitted when a non-empty log is cleared.
	HistoryReset = capitan.NewSignal(
		"rewind.history.reset",
		"History cleared",
	)
)

// Feed signals.
var (
	// FeedStarted is emitted when a Feed begins watching.
	FeedStarted = capitan.NewSignal(
		"rewind.feed.started",
		"Feed watching started",
	)

	// FeedStopped is emitted when a Feed stops watching.
	FeedStopped = capitan.NewSignal(
		"rewind.feed.stopped",
		"Feed watching stopped",
	)

	// FeedDecodeFailed is emitted when raw data cannot be decoded.
	FeedDecodeFailed = capitan.NewSignal(
		"rewind.feed.decode.failed",
		"Feed data could not be decoded",
	)

	// FeedValidationFailed is emitted when decoded data fails validation.
	FeedValidationFailed = capitan.NewSignal(
		"rewind.feed.validation.failed",
		"Feed data failed validation",
	)
)
