// Package redis connects rewind stores to Redis keys.
//
// Watcher feeds a store from a key using keyspace notifications. Mirror
// does the reverse and writes every committed value of a store to a key, so
// another process can follow it with a Watcher.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/rewind"
)

var _ rewind.Watcher = (*Watcher)(nil)

// writeOps are the keyspace events that replace a string value.
var writeOps = map[string]bool{
	"set": true, "mset": true, "setex": true, "psetex": true, "setnx": true, "setrange": true,
}

// Watcher emits the value of a Redis key whenever it is written.
//
// Keyspace notifications must be enabled on the server:
//
//	CONFIG SET notify-keyspace-events KA
type Watcher struct {
	client *redis.Client
	key    string
}

// New creates a Watcher for key.
func New(client *redis.Client, key string) *Watcher {
	return &Watcher{client: client, key: key}
}

// Watch subscribes to writes of the key and returns a channel that receives
// its current value, if set, and every written value after that. The channel
// is closed when ctx is done or the subscription ends.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", w.client.Options().DB, w.key)
	pubsub := w.client.Subscribe(ctx, channel)

	// Wait for the subscription so no write between here and the initial
	// read is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer pubsub.Close()

		emit := func() bool {
			val, err := w.client.Get(ctx, w.key).Bytes()
			if errors.Is(err, redis.Nil) {
				return true
			}
			if err != nil {
				return ctx.Err() == nil
			}
			select {
			case out <- val:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if writeOps[msg.Payload] && !emit() {
					return
				}
			}
		}
	}()

	return out, nil
}

// MarshalFunc encodes a store value for Mirror.
type MarshalFunc func(v any) ([]byte, error)

// Mirror copies committed values of a store to a Redis key.
type Mirror[T any] struct {
	client  *redis.Client
	key     string
	marshal MarshalFunc
	ttl     time.Duration

	written   atomic.Int64
	lastError atomic.Pointer[error]
}

// NewMirror creates a Mirror writing to key. Values are encoded as JSON
// unless Marshal is set.
func NewMirror[T any](client *redis.Client, key string) *Mirror[T] {
	return &Mirror[T]{
		client:  client,
		key:     key,
		marshal: json.Marshal,
	}
}

// Marshal sets the encoder.
func (m *Mirror[T]) Marshal(fn MarshalFunc) *Mirror[T] {
	m.marshal = fn
	return m
}

// TTL sets an expiry on every write. Default: 0, no expiry.
func (m *Mirror[T]) TTL(d time.Duration) *Mirror[T] {
	m.ttl = d
	return m
}

// Written returns the number of values written.
func (m *Mirror[T]) Written() int64 {
	return m.written.Load()
}

// LastError returns the most recent encode or write error, or nil after a
// successful write.
func (m *Mirror[T]) LastError() error {
	ptr := m.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Run writes the latest value of store and every later one until ctx is
// done. Writes happen off the store worker, in commit order.
//
// Do not feed a store from the key it mirrors to; each write would be
// applied again as a new value.
func (m *Mirror[T]) Run(ctx context.Context, store *rewind.Store[T]) {
	for v := range store.Watch(ctx) {
		if err := m.write(ctx, v); err != nil {
			e := err
			m.lastError.Store(&e)
			continue
		}
		m.lastError.Store(nil)
		m.written.Add(1)
	}
}

func (m *Mirror[T]) write(ctx context.Context, v T) error {
	data, err := m.marshal(v)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("write %s: %w", m.key, err)
	}
	return nil
}
