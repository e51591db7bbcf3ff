package rewind

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// History is a most-recent-first log of values a source has moved away
// from, with navigation back through them.
//
// A History is created on its own and starts recording once synced to a
// source, usually a Store. For every value the source publishes after the
// sync, the value it replaced is pushed onto the log. Back pops the head
// and arms a one-shot suppression so that feeding the popped value back
// into the store does not record it again:
//
//	hist := rewind.NewHistory[string](0).Sync(store)
//	...
//	if v, err := hist.Back(); err == nil {
//	    store.Update().Submit(ctx, v)
//	}
//
// All methods are safe for concurrent use. Log mutations, the suppression
// flag and the link share one lock, so concurrent Back calls are
// serialized.
type History[T any] struct {
	name    string
	maxSize int
	metrics MetricsProvider

	mu       sync.Mutex
	log      *ring[T]
	suppress bool
	link     *link[T]

	entries   *Stream[[]T]
	available *Stream[bool]
}

// link is one attachment of a History to a source.
type link[T any] struct {
	sub    *Subscription
	prev   T
	primed bool
}

// mutation holds the stream emissions produced by one log change. They are
// staged under the history lock and delivered after it is released.
type mutation[T any] struct {
	entries   emission[[]T]
	available emission[bool]
	size      int
	trimmed   bool
}

func (m mutation[T]) deliver() {
	m.entries.deliver()
	m.available.deliver()
}

// NewHistory creates an empty, unsynced History holding at most maxSize
// entries. A maxSize of 0 or less means unbounded.
func NewHistory[T any](maxSize int) *History[T] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &History[T]{
		name:      "history",
		maxSize:   maxSize,
		log:       newRing[T](maxSize),
		entries:   NewStream([]T{}),
		available: NewStream(false),
	}
}

// Name sets the name used in signals. Default: "history".
func (h *History[T]) Name(name string) *History[T] {
	h.name = name
	return h
}

// Metrics sets a metrics provider for observability integration.
func (h *History[T]) Metrics(provider MetricsProvider) *History[T] {
	h.metrics = provider
	return h
}

// Sync attaches the History to src and returns it.
//
// Any previous link is detached first and a pending suppression is
// cleared. The first value src delivers is its current value; it is
// remembered but not recorded. Each later value causes the one before it
// to be recorded, unless a Back is pending, in which case the value is
// taken to be the restored one and nothing is recorded.
func (h *History[T]) Sync(src Source[T]) *History[T] {
	l := &link[T]{}

	h.mu.Lock()
	old := h.link
	h.link = l
	h.suppress = false
	var oldSub *Subscription
	if old != nil {
		oldSub = old.sub
	}
	h.mu.Unlock()
	oldSub.Cancel()

	sub := src.Subscribe(func(v T) { h.observe(l, v) })

	h.mu.Lock()
	current := h.link == l
	if current {
		l.sub = sub
	}
	h.mu.Unlock()
	if !current {
		sub.Cancel()
		return h
	}

	capitan.Emit(context.Background(), HistorySynced,
		KeyHistory.Field(h.name),
		KeyMaxSize.Field(h.maxSize),
	)
	return h
}

// Unsync detaches the History from its source. The log is kept.
func (h *History[T]) Unsync() {
	h.mu.Lock()
	l := h.link
	h.link = nil
	var sub *Subscription
	if l != nil {
		sub = l.sub
	}
	h.mu.Unlock()

	if l == nil {
		return
	}
	sub.Cancel()
	capitan.Emit(context.Background(), HistoryUnsynced,
		KeyHistory.Field(h.name),
	)
}

// Synced reports whether the History is attached to a source.
func (h *History[T]) Synced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.link != nil
}

// observe handles one value from the linked source.
func (h *History[T]) observe(l *link[T], v T) {
	h.mu.Lock()
	if h.link != l {
		h.mu.Unlock()
		return
	}
	if !l.primed {
		l.prev = v
		l.primed = true
		h.mu.Unlock()
		return
	}

	prev := l.prev
	l.prev = v

	if h.suppress {
		h.suppress = false
		size := h.log.len()
		h.mu.Unlock()
		capitan.Emit(context.Background(), HistorySuppressed,
			KeyHistory.Field(h.name),
			KeySize.Field(size),
		)
		return
	}

	m := h.pushLocked(prev)
	h.mu.Unlock()
	h.recorded(m)
}

// Add pushes v onto the head of the log, dropping the oldest entry if the
// bound would be exceeded. Add works without a link and leaves a pending
// suppression untouched.
func (h *History[T]) Add(v T) {
	h.mu.Lock()
	m := h.pushLocked(v)
	h.mu.Unlock()
	h.recorded(m)
}

// Back removes and returns the head of the log and arms suppression of the
// next value observed from the linked source. Back does not touch the
// store; the caller restores the value, normally through Store.Update.
// Returns ErrEmptyHistory if the log is empty.
func (h *History[T]) Back() (T, error) {
	h.mu.Lock()
	v, ok := h.log.pop()
	if !ok {
		h.mu.Unlock()
		return v, ErrEmptyHistory
	}
	h.suppress = true
	m := h.stageLocked(false, false)
	h.mu.Unlock()

	m.deliver()
	capitan.Emit(context.Background(), HistoryRewound,
		KeyHistory.Field(h.name),
		KeySize.Field(m.size),
	)
	if h.metrics != nil {
		h.metrics.OnHistoryRewound()
		h.metrics.OnHistorySize(m.size)
	}
	return v, nil
}

// Last returns the head of the log without removing it.
// Returns ErrEmptyHistory if the log is empty.
func (h *History[T]) Last() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.log.peek()
	if !ok {
		return v, ErrEmptyHistory
	}
	return v, nil
}

// Reset empties the log. The link and any pending suppression are kept.
// Resetting an empty log does nothing.
func (h *History[T]) Reset() {
	h.mu.Lock()
	if !h.log.clear() {
		h.mu.Unlock()
		return
	}
	m := h.stageLocked(false, false)
	h.mu.Unlock()

	m.deliver()
	capitan.Emit(context.Background(), HistoryReset,
		KeyHistory.Field(h.name),
	)
	if h.metrics != nil {
		h.metrics.OnHistorySize(0)
	}
}

// Len returns the number of entries in the log.
func (h *History[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.len()
}

// MaxSize returns the bound, 0 when unbounded.
func (h *History[T]) MaxSize() int {
	return h.maxSize
}

// Snapshot returns a copy of the log, most recent first.
func (h *History[T]) Snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.newestFirst()
}

// Suppressing reports whether a Back is waiting for its value to be observed.
func (h *History[T]) Suppressing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suppress
}

// Entries returns a stream of log snapshots, most recent first, emitted
// after every change. Observers must not modify the slices they receive.
func (h *History[T]) Entries() *Stream[[]T] {
	return h.entries
}

// Available returns a stream that is true while the log is non-empty.
// It emits only when the log becomes empty or stops being empty.
func (h *History[T]) Available() *Stream[bool] {
	return h.available
}

// pushLocked is the single push-and-trim primitive shared by Add and the
// sync path. h.mu must be held.
func (h *History[T]) pushLocked(v T) mutation[T] {
	wasEmpty := h.log.len() == 0
	trimmed := h.log.push(v)
	return h.stageLocked(wasEmpty, trimmed)
}

// stageLocked sequences the stream emissions for the current log.
// h.mu must be held.
func (h *History[T]) stageLocked(wasEmpty, trimmed bool) mutation[T] {
	m := mutation[T]{size: h.log.len(), trimmed: trimmed}
	m.entries = h.entries.stage(h.log.newestFirst())
	if wasEmpty != (m.size == 0) {
		m.available = h.available.stage(m.size > 0)
	}
	return m
}

// recorded delivers a push and reports it.
func (h *History[T]) recorded(m mutation[T]) {
	m.deliver()

	ctx := context.Background()
	capitan.Emit(ctx, HistoryRecorded,
		KeyHistory.Field(h.name),
		KeySize.Field(m.size),
	)
	if m.trimmed {
		capitan.Emit(ctx, HistoryTrimmed,
			KeyHistory.Field(h.name),
			KeyMaxSize.Field(h.maxSize),
		)
	}
	if h.metrics != nil {
		h.metrics.OnHistorySize(m.size)
	}
}
