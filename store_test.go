package rewind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNew_InitialValue(t *testing.T) {
	s := New("A")

	if s.Current() != "A" {
		t.Errorf("expected 'A', got %q", s.Current())
	}
	if s.State() != StateHealthy {
		t.Errorf("expected healthy, got %s", s.State())
	}
	if s.Stream().Latest() != "A" {
		t.Errorf("expected stream latest 'A', got %q", s.Stream().Latest())
	}
	if s.LastError() != nil {
		t.Errorf("expected no error, got %v", s.LastError())
	}
	if s.ErrorHistory() != nil {
		t.Error("expected nil error history when disabled")
	}
}

func TestStore_UpdateApply(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	defer s.Close(ctx)

	v, err := s.Update().Apply(ctx, 7)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if v != 7 || s.Current() != 7 {
		t.Errorf("expected 7, got %d (current %d)", v, s.Current())
	}
	if s.Update().Name() != "update" {
		t.Errorf("expected handler name 'update', got %q", s.Update().Name())
	}
}

func TestStore_PendingHandle(t *testing.T) {
	ctx := context.Background()
	s := New("")
	defer s.Close(ctx)

	p := s.Update().Submit(ctx, "x")
	if p.ID() == uuid.Nil {
		t.Error("expected a transition ID")
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for transition")
	}

	v, err := p.Wait(ctx)
	if err != nil || v != "x" {
		t.Errorf("expected 'x', got %q (err %v)", v, err)
	}
}

func TestStore_StreamOrdering(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	var a, b collector[int]
	s.Subscribe(a.add)
	s.Subscribe(b.add)

	for i := 1; i <= 100; i++ {
		s.Update().Submit(ctx, i)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := make([]int, 101)
	for i := range want {
		want[i] = i
	}
	if got := a.get(); !equalInts(got, want) {
		t.Errorf("observer a: unexpected sequence %v", got)
	}
	if got := b.get(); !equalInts(got, want) {
		t.Errorf("observer b: unexpected sequence %v", got)
	}
}

func TestStore_HandlersNeverOverlap(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	defer s.Close(ctx)

	var running, maxRunning atomic.Int32
	slowInc := Handle(s, "slow-inc", func(_ context.Context, cur int, _ struct{}) (int, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return cur + 1, nil
	})

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := slowInc.Apply(ctx, struct{}{}); err != nil {
					t.Errorf("Apply failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if maxRunning.Load() != 1 {
		t.Errorf("expected one handler at a time, saw %d", maxRunning.Load())
	}
	if s.Current() != 50 {
		t.Errorf("expected 50, got %d", s.Current())
	}
}

func TestStore_HandlerSeesPreviousCommit(t *testing.T) {
	ctx := context.Background()
	s := New("")
	defer s.Close(ctx)

	appendText := Handle(s, "append", func(_ context.Context, cur string, text string) (string, error) {
		return cur + text, nil
	})

	appendText.Submit(ctx, "a")
	appendText.Submit(ctx, "b")
	v, err := appendText.Apply(ctx, "c")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if v != "abc" {
		t.Errorf("expected 'abc', got %q", v)
	}
}

func TestStore_FailureKeepsValue(t *testing.T) {
	ctx := context.Background()
	s := New("A").Name("doc").ErrorHistorySize(5)
	defer s.Close(ctx)

	var c collector[string]
	s.Subscribe(c.add)

	errRejected := errors.New("rejected")
	reject := Handle(s, "reject", func(_ context.Context, _ string, _ string) (string, error) {
		return "", errRejected
	})

	v, err := reject.Apply(ctx, "B")
	if err == nil {
		t.Fatal("expected error")
	}
	if v != "" {
		t.Errorf("expected zero value on failure, got %q", v)
	}

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if terr.Store != "doc" || terr.Handler != "reject" {
		t.Errorf("unexpected error fields %+v", terr)
	}
	if !errors.Is(err, errRejected) {
		t.Error("expected error to unwrap to errRejected")
	}

	if s.Current() != "A" {
		t.Errorf("expected 'A' retained, got %q", s.Current())
	}
	if s.State() != StateDegraded {
		t.Errorf("expected degraded, got %s", s.State())
	}
	if !errors.Is(s.LastError(), errRejected) {
		t.Errorf("expected LastError to wrap errRejected, got %v", s.LastError())
	}
	if len(s.ErrorHistory()) != 1 {
		t.Errorf("expected 1 error in history, got %d", len(s.ErrorHistory()))
	}
	if got := c.get(); !equalStrings(got, []string{"A"}) {
		t.Errorf("failed transition must not publish, got %v", got)
	}

	if _, err := s.Update().Apply(ctx, "C"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if s.State() != StateHealthy {
		t.Errorf("expected healthy after commit, got %s", s.State())
	}
	if s.LastError() != nil {
		t.Errorf("expected LastError cleared, got %v", s.LastError())
	}
	if len(s.ErrorHistory()) != 1 {
		t.Errorf("error history should survive a commit, got %d", len(s.ErrorHistory()))
	}
}

func TestStore_PanicIsFailure(t *testing.T) {
	ctx := context.Background()
	s := New(1)
	defer s.Close(ctx)

	explode := Handle(s, "explode", func(_ context.Context, _ int, _ int) (int, error) {
		panic("kaboom")
	})

	if _, err := explode.Apply(ctx, 0); err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if s.Current() != 1 {
		t.Errorf("expected 1 retained, got %d", s.Current())
	}

	if v, err := s.Update().Apply(ctx, 2); err != nil || v != 2 {
		t.Errorf("worker should keep running, got %d (err %v)", v, err)
	}
}

func TestStore_CancelledContextSkipsHandler(t *testing.T) {
	s := New(0)
	defer s.Close(context.Background())

	var ran atomic.Bool
	h := Handle(s, "mark", func(_ context.Context, cur int, _ int) (int, error) {
		ran.Store(true)
		return cur + 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := h.Submit(ctx, 0)
	<-p.Done()
	if _, err := p.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ran.Load() {
		t.Error("handler must not run for a cancelled request")
	}
}

func TestStore_OnFailure(t *testing.T) {
	ctx := context.Background()

	var got []*TransitionError
	var mu sync.Mutex
	s := New(0).OnFailure(func(_ context.Context, err *TransitionError) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, err)
	})
	defer s.Close(ctx)

	fail := Handle(s, "fail", func(_ context.Context, _ int, _ int) (int, error) {
		return 0, errors.New("nope")
	})
	if _, err := fail.Apply(ctx, 0); err == nil {
		t.Fatal("expected error")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Handler != "fail" {
		t.Errorf("expected one failure from 'fail', got %v", got)
	}
}

func TestStore_ObserverMaySubmit(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	defer s.Close(ctx)

	// Every odd value is bumped to the next even one from inside the
	// observer, which runs on the worker.
	s.Subscribe(func(v int) {
		if v%2 == 1 {
			s.Update().Submit(ctx, v+1)
		}
	})

	if _, err := s.Update().Apply(ctx, 3); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !waitUntil(time.Second, func() bool { return s.Current() == 4 }) {
		t.Errorf("expected 4, got %d", s.Current())
	}
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	s := New("A")

	s.Update().Submit(ctx, "B")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if s.Current() != "B" {
		t.Errorf("queued transition should be applied before close, got %q", s.Current())
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}

	_, err := s.Update().Apply(ctx, "C")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if s.Current() != "B" {
		t.Errorf("expected 'B' retained, got %q", s.Current())
	}
}

func TestStore_CloseWithoutSubmissions(t *testing.T) {
	s := New(0)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
}

func TestStore_CloseTimesOut(t *testing.T) {
	s := New(0)
	release := make(chan struct{})
	block := Handle(s, "block", func(_ context.Context, cur int, _ int) (int, error) {
		<-release
		return cur, nil
	})
	block.Submit(context.Background(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Close(ctx); err == nil {
		t.Error("expected Close to give up while a handler blocks")
	}

	close(release)
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("Close failed after release: %v", err)
	}
}

func TestStore_QueueDepth(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	release := make(chan struct{})
	block := Handle(s, "block", func(_ context.Context, cur int, _ int) (int, error) {
		<-release
		return cur, nil
	})
	first := block.Submit(ctx, 0)

	// Wait until the worker has taken the blocking transition.
	if !waitUntil(time.Second, func() bool { return s.QueueDepth() == 0 }) {
		t.Fatal("worker did not pick up the first transition")
	}
	for i := 0; i < 3; i++ {
		s.Update().Submit(ctx, i)
	}
	if s.QueueDepth() != 3 {
		t.Errorf("expected depth 3, got %d", s.QueueDepth())
	}

	close(release)
	<-first.Done()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.QueueDepth() != 0 {
		t.Errorf("expected empty queue, got %d", s.QueueDepth())
	}
}

func TestStore_ChainableConfiguration(t *testing.T) {
	s := New(0).
		Name("counter").
		Metrics(NoOpMetricsProvider{}).
		Tracer(noop.NewTracerProvider().Tracer("test"))
	defer s.Close(context.Background())

	h := Handle(s, "fail", func(_ context.Context, _ int, _ int) (int, error) {
		return 0, fmt.Errorf("bad input")
	})
	_, err := h.Apply(context.Background(), 0)

	var terr *TransitionError
	if !errors.As(err, &terr) || terr.Store != "counter" {
		t.Errorf("expected error from store 'counter', got %v", err)
	}
}

func TestPending_WaitRespectsContext(t *testing.T) {
	s := New(0)
	release := make(chan struct{})
	defer func() {
		close(release)
		s.Close(context.Background())
	}()

	block := Handle(s, "block", func(_ context.Context, cur int, _ int) (int, error) {
		<-release
		return cur, nil
	})
	p := block.Submit(context.Background(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestTransitionError_Message(t *testing.T) {
	id := uuid.New()
	err := &TransitionError{Store: "doc", Handler: "rename", ID: id, Err: errors.New("empty name")}

	want := fmt.Sprintf("doc.rename: transition %s failed: empty name", id)
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
