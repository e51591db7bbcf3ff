// Package testing provides test utilities and helpers for rewind stores
// and histories.
package testing

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/zoobzio/rewind"
)

// Doc is a small store value for tests. It implements rewind.Validator.
type Doc struct {
	Title string   `yaml:"title" json:"title"`
	Lines []string `yaml:"lines" json:"lines"`
}

// Validate implements rewind.Validator.
func (d Doc) Validate() error {
	if d.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the store reaches the expected state or timeout occurs.
func WaitForState[T any](t *testing.T, s *rewind.Store[T], expected rewind.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return s.State() == expected
	})
}

// RequireState fails the test immediately if the store is not in the expected state.
func RequireState[T any](t *testing.T, s *rewind.Store[T], expected rewind.State) {
	t.Helper()
	if got := s.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireCurrent fails the test if the store's value is not want.
func RequireCurrent[T any](t *testing.T, s *rewind.Store[T], want T) {
	t.Helper()
	if got := s.Current(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected current %v, got %v", want, got)
	}
}

// RequireEntries fails the test if the history log, most recent first, is
// not want.
func RequireEntries[T any](t *testing.T, h *rewind.History[T], want ...T) {
	t.Helper()
	got := h.Snapshot()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected history %v, got %v", want, got)
	}
}

// Recorder collects values delivered by a stream.
type Recorder[T any] struct {
	ch  chan T
	sub *rewind.Subscription
}

// Record subscribes to src and buffers every delivered value. The
// subscription is cancelled when the test ends.
func Record[T any](t *testing.T, src rewind.Source[T]) *Recorder[T] {
	t.Helper()
	r := &Recorder[T]{ch: make(chan T, 1024)}
	r.sub = src.Subscribe(func(v T) { r.ch <- v })
	t.Cleanup(r.sub.Cancel)
	return r
}

// Values returns the values received so far without waiting.
func (r *Recorder[T]) Values() []T {
	var out []T
	for {
		select {
		case v := <-r.ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

// Next waits up to timeout for the next value.
func (r *Recorder[T]) Next(t *testing.T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-r.ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timeout waiting for stream value")
		var zero T
		return zero
	}
}

// NewTestFeed creates a store holding initial and a sync-mode feed on its
// Update handler. Returns the store, the feed and a channel for sending
// raw payloads.
func NewTestFeed[T any](t *testing.T, initial T) (*rewind.Store[T], *rewind.Feed[T], chan<- []byte) {
	t.Helper()
	ch := make(chan []byte, 10)
	store := rewind.New(initial)
	feed := rewind.NewFeed(rewind.NewDirectChannelWatcher(ch), store.Update()).SyncMode()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store, feed, ch
}
