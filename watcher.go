package rewind

import "context"

// Watcher observes an external source and emits raw bytes on a channel.
// Implementations must emit the current contents as soon as Watch is
// called so a Feed can seed its store.
type Watcher interface {
	// Watch begins observing the source. The returned channel is closed
	// when ctx is done or the source fails for good.
	Watch(ctx context.Context) (<-chan []byte, error)
}

// ChannelWatcher adapts a byte channel the caller already owns.
//
// The caller's channel may outlive any one Feed, so by default Watch hands
// out a separate channel that closes when the Feed's ctx ends, leaving the
// source open. The direct form returns the source as is.
type ChannelWatcher struct {
	src    <-chan []byte
	direct bool
}

// NewChannelWatcher creates a ChannelWatcher whose Watch channel closes when
// ctx is done or src is closed, whichever comes first.
func NewChannelWatcher(src <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{src: src}
}

// NewDirectChannelWatcher creates a ChannelWatcher whose Watch returns src
// itself. Pair it with Feed.SyncMode for deterministic tests.
func NewDirectChannelWatcher(src <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{src: src, direct: true}
}

// Watch returns the payload channel.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if w.direct {
		return w.src, nil
	}
	out := make(chan []byte)
	go relay(ctx, w.src, out)
	return out, nil
}

// relay copies payloads from src to out and closes out once ctx is done or
// src is drained. A send blocked on a slow reader is abandoned on cancel.
func relay(ctx context.Context, src <-chan []byte, out chan<- []byte) {
	defer close(out)
	for {
		var (
			raw []byte
			ok  bool
		)
		select {
		case <-ctx.Done():
			return
		case raw, ok = <-src:
		}
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case out <- raw:
		}
	}
}
