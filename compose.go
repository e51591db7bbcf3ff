package rewind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// SourceError reports a payload from one source of a CompositeFeed that
// could not be decoded or validated.
type SourceError struct {
	Index int
	Err   error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %d: %v", e.Index, e.Err)
}

func (e SourceError) Unwrap() error {
	return e.Err
}

// Reducer merges the decoded values of every source into one store value.
// prev holds the values of the previous merge and is nil the first time.
type Reducer[T any] func(ctx context.Context, prev, curr []T) (T, error)

// CompositeFeed drives a store from several byte sources. Once every source
// has produced a value, each change on any source re-runs the reducer over
// the latest value of all of them and submits the result.
type CompositeFeed[T any] struct {
	sources        []Watcher
	reducer        Reducer[T]
	handler        *Handler[T, T]
	codec          Codec
	clock          clockz.Clock
	startupTimeout time.Duration

	lastError atomic.Pointer[error]
	applied   atomic.Int64

	mu      sync.Mutex
	started bool
	latest  [][]byte
	ready   []bool
	prev    []T
}

type sourcePayload struct {
	index int
	raw   []byte
}

// Compose creates a CompositeFeed that submits merged values through
// handler. Values are passed to the reducer in source order.
//
// Example:
//
//	feed := rewind.Compose(store.Update(),
//	    func(_ context.Context, _, curr []Settings) (Settings, error) {
//	        merged := curr[0]
//	        if curr[1].Theme != "" {
//	            merged.Theme = curr[1].Theme
//	        }
//	        return merged, nil
//	    },
//	    defaults, file.New("settings.yaml"),
//	)
func Compose[T any](handler *Handler[T, T], reducer Reducer[T], sources ...Watcher) *CompositeFeed[T] {
	return &CompositeFeed[T]{
		sources: sources,
		reducer: reducer,
		handler: handler,
		codec:   AutoCodec{},
		clock:   clockz.RealClock,
		latest:  make([][]byte, len(sources)),
		ready:   make([]bool, len(sources)),
	}
}

// Codec sets the decoder used for every source. Default: AutoCodec.
func (c *CompositeFeed[T]) Codec(codec Codec) *CompositeFeed[T] {
	c.codec = codec
	return c
}

// Clock sets the clock used for the startup timeout.
func (c *CompositeFeed[T]) Clock(clock clockz.Clock) *CompositeFeed[T] {
	c.clock = clock
	return c
}

// StartupTimeout bounds how long Start waits for every source to emit.
func (c *CompositeFeed[T]) StartupTimeout(d time.Duration) *CompositeFeed[T] {
	c.startupTimeout = d
	return c
}

// LastError returns the most recent source, reducer or transition error,
// or nil after a successful apply.
func (c *CompositeFeed[T]) LastError() error {
	ptr := c.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Applied returns the number of merged values committed to the store.
func (c *CompositeFeed[T]) Applied() int64 {
	return c.applied.Load()
}

// Start begins watching every source and blocks until each has emitted
// once and the first merge has been applied or rejected. Watching then
// continues in the background until ctx is done.
func (c *CompositeFeed[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("composite feed already started")
	}
	c.started = true
	c.mu.Unlock()

	if len(c.sources) == 0 {
		return errors.New("composite feed has no sources")
	}

	merged := make(chan sourcePayload)
	var wg sync.WaitGroup
	for i, src := range c.sources {
		ch, err := src.Watch(ctx)
		if err != nil {
			return fmt.Errorf("failed to start watcher %d: %w", i, err)
		}
		wg.Add(1)
		go func(i int, ch <-chan []byte) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- sourcePayload{index: i, raw: raw}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(i, ch)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	capitan.Emit(ctx, FeedStarted,
		KeyStore.Field(c.handler.store.name),
		KeyContentType.Field(c.codec.ContentType()),
	)

	var timeout <-chan time.Time
	if c.startupTimeout > 0 {
		timer := c.clock.NewTimer(c.startupTimeout)
		defer timer.Stop()
		timeout = timer.C()
	}

	for !c.allReady() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("not every source emitted within %s", c.startupTimeout)
		case <-done:
			return errors.New("a watcher closed before emitting initial value")
		case p := <-merged:
			c.store(p)
		}
	}
	initialErr := c.process(ctx)

	go c.watch(ctx, merged, done)
	return initialErr
}

func (c *CompositeFeed[T]) store(p sourcePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[p.index] = p.raw
	c.ready[p.index] = true
}

func (c *CompositeFeed[T]) allReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.ready {
		if !r {
			return false
		}
	}
	return true
}

// process decodes the latest payload of every source, merges and applies.
func (c *CompositeFeed[T]) process(ctx context.Context) error {
	c.mu.Lock()
	raws := make([][]byte, len(c.latest))
	copy(raws, c.latest)
	prev := c.prev
	c.mu.Unlock()

	curr := make([]T, len(raws))
	for i, raw := range raws {
		if err := c.codec.Unmarshal(raw, &curr[i]); err != nil {
			serr := SourceError{Index: i, Err: err}
			c.setError(serr)
			capitan.Emit(ctx, FeedDecodeFailed,
				KeyStore.Field(c.handler.store.name),
				KeySource.Field(i),
				KeyError.Field(err.Error()),
			)
			return fmt.Errorf("decode failed: %w", serr)
		}
		if err := validateValue(&curr[i]); err != nil {
			serr := SourceError{Index: i, Err: err}
			c.setError(serr)
			capitan.Emit(ctx, FeedValidationFailed,
				KeyStore.Field(c.handler.store.name),
				KeySource.Field(i),
				KeyError.Field(err.Error()),
			)
			return fmt.Errorf("validation failed: %w", serr)
		}
	}

	next, err := c.reducer(ctx, prev, curr)
	if err != nil {
		c.setError(err)
		return fmt.Errorf("reducer failed: %w", err)
	}
	if _, err := c.handler.Apply(ctx, next); err != nil {
		c.setError(err)
		return err
	}

	c.mu.Lock()
	c.prev = curr
	c.mu.Unlock()
	c.lastError.Store(nil)
	c.applied.Add(1)
	return nil
}

func (c *CompositeFeed[T]) setError(err error) {
	e := err
	c.lastError.Store(&e)
}

// watch re-merges on every change until ctx is done or all sources close.
func (c *CompositeFeed[T]) watch(ctx context.Context, merged <-chan sourcePayload, done <-chan struct{}) {
	defer capitan.Emit(ctx, FeedStopped,
		KeyStore.Field(c.handler.store.name),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case p := <-merged:
			c.store(p)
			_ = c.process(ctx) //nolint:errcheck // Errors stored via setError
		}
	}
}
