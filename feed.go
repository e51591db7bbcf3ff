package rewind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// validate is the shared validator instance.
var validate = validator.New()

// Validator is implemented by values that check themselves. A Feed uses it
// in preference to struct tags.
type Validator interface {
	Validate() error
}

// Feed drives a store from an external byte source.
//
// Each payload from the Watcher is decoded with the Codec, validated, and
// submitted through a handler, normally the store's Update handler. A
// payload that fails to decode or validate is dropped and the store keeps
// its value. Because values arrive as ordinary transitions, a synced
// History records them like any other change.
//
// Struct values are validated with go-playground/validator tags unless the
// value implements Validator:
//
//	type Settings struct {
//	    Theme string `yaml:"theme" validate:"required,oneof=light dark"`
//	}
//
//	store := rewind.New(Settings{Theme: "light"})
//	feed := rewind.NewFeed(file.New("/etc/app/settings.yaml"), store.Update())
//	if err := feed.Start(ctx); err != nil { ... }
type Feed[T any] struct {
	watcher        Watcher
	handler        *Handler[T, T]
	codec          Codec
	clock          clockz.Clock
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool

	lastError atomic.Pointer[error]
	applied   atomic.Int64

	mu      sync.Mutex
	started bool

	// Sync mode keeps the watcher channel for Process.
	changes <-chan []byte
}

// NewFeed creates a Feed that submits decoded values through handler.
func NewFeed[T any](watcher Watcher, handler *Handler[T, T]) *Feed[T] {
	return &Feed[T]{
		watcher: watcher,
		handler: handler,
		codec:   AutoCodec{},
		clock:   clockz.RealClock,
	}
}

// Codec sets the decoder. Default: AutoCodec.
func (f *Feed[T]) Codec(codec Codec) *Feed[T] {
	f.codec = codec
	return f
}

// Clock sets the clock used for debouncing and the startup timeout.
func (f *Feed[T]) Clock(clock clockz.Clock) *Feed[T] {
	f.clock = clock
	return f
}

// Debounce coalesces payloads arriving within d; only the last one is
// applied. Default: 0, every payload is applied.
func (f *Feed[T]) Debounce(d time.Duration) *Feed[T] {
	f.debounce = d
	return f
}

// StartupTimeout bounds how long Start waits for the first payload.
// Default: 0, no bound beyond ctx.
func (f *Feed[T]) StartupTimeout(d time.Duration) *Feed[T] {
	f.startupTimeout = d
	return f
}

// SyncMode disables the background goroutine. Start only applies the first
// payload and Process applies the following ones on demand.
func (f *Feed[T]) SyncMode() *Feed[T] {
	f.syncMode = true
	return f
}

// LastError returns the most recent decode, validation or transition
// error, or nil after a successful apply.
func (f *Feed[T]) LastError() error {
	ptr := f.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Applied returns the number of payloads committed to the store.
func (f *Feed[T]) Applied() int64 {
	return f.applied.Load()
}

// Start begins watching and blocks until the first payload has been
// applied or rejected, then keeps watching in the background until ctx is
// done. The error of the first payload is returned; later errors are
// available from LastError.
//
// Start can only be called once.
func (f *Feed[T]) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("feed already started")
	}
	f.started = true
	f.mu.Unlock()

	changes, err := f.watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	capitan.Emit(ctx, FeedStarted,
		KeyStore.Field(f.handler.store.name),
		KeyContentType.Field(f.codec.ContentType()),
	)

	var timeout <-chan time.Time
	if f.startupTimeout > 0 {
		timer := f.clock.NewTimer(f.startupTimeout)
		defer timer.Stop()
		timeout = timer.C()
	}

	var initialErr error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("no initial value within %s", f.startupTimeout)
	case raw, ok := <-changes:
		if !ok {
			return errors.New("watcher closed before emitting initial value")
		}
		initialErr = f.process(ctx, raw)
	}

	if f.syncMode {
		f.changes = changes
		return initialErr
	}

	go f.watch(ctx, changes)
	return initialErr
}

// Process applies the next waiting payload. It is only available in sync
// mode and returns false when nothing is waiting or the watcher is closed.
func (f *Feed[T]) Process(ctx context.Context) bool {
	if !f.syncMode || f.changes == nil {
		return false
	}

	select {
	case raw, ok := <-f.changes:
		if !ok {
			return false
		}
		_ = f.process(ctx, raw) //nolint:errcheck // Errors stored via setError
		return true
	default:
		return false
	}
}

// process decodes, validates and applies one payload.
func (f *Feed[T]) process(ctx context.Context, raw []byte) error {
	var v T
	if err := f.codec.Unmarshal(raw, &v); err != nil {
		f.setError(err)
		capitan.Emit(ctx, FeedDecodeFailed,
			KeyStore.Field(f.handler.store.name),
			KeyContentType.Field(f.codec.ContentType()),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("decode failed: %w", err)
	}

	if err := validateValue(&v); err != nil {
		f.setError(err)
		capitan.Emit(ctx, FeedValidationFailed,
			KeyStore.Field(f.handler.store.name),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := f.handler.Apply(ctx, v); err != nil {
		f.setError(err)
		return err
	}

	f.lastError.Store(nil)
	f.applied.Add(1)
	return nil
}

// validateValue checks v with its own Validate method if it has one, and
// with struct tags otherwise. Non-struct values without a Validate method
// are accepted.
func validateValue[T any](v *T) error {
	if val, ok := any(*v).(Validator); ok {
		return val.Validate()
	}
	if val, ok := any(v).(Validator); ok {
		return val.Validate()
	}

	err := validate.Struct(*v)
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	return err
}

func (f *Feed[T]) setError(err error) {
	e := err
	f.lastError.Store(&e)
}

// watch applies payloads until ctx is done or the watcher closes.
func (f *Feed[T]) watch(ctx context.Context, changes <-chan []byte) {
	defer capitan.Emit(ctx, FeedStopped,
		KeyStore.Field(f.handler.store.name),
	)

	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				if hasPending {
					_ = f.process(ctx, pending) //nolint:errcheck // Errors stored via setError
				}
				return
			}

			if f.debounce <= 0 {
				_ = f.process(ctx, raw) //nolint:errcheck // Errors stored via setError
				continue
			}

			pending = raw
			hasPending = true
			if timer == nil {
				timer = f.clock.NewTimer(f.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(f.debounce)
			}

		case <-timerC:
			if hasPending {
				_ = f.process(ctx, pending) //nolint:errcheck // Errors stored via setError
				hasPending = false
			}
		}
	}
}
