package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/rewind"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func receive(t *testing.T, ctx context.Context, ch <-chan []byte) string {
	t.Helper()
	select {
	case data, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(data)
	case <-ctx.Done():
		t.Fatal("timeout waiting for file contents")
		return ""
	}
}

func TestNew(t *testing.T) {
	w := New("/path/to/doc.txt")
	if w.path != "/path/to/doc.txt" {
		t.Errorf("expected path '/path/to/doc.txt', got %q", w.path)
	}
}

func TestWatcher_EmitsInitialContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	writeFile(t, path, `"draft"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := New(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if got := receive(t, ctx, ch); got != `"draft"` {
		t.Errorf("expected %q, got %q", `"draft"`, got)
	}
}

func TestWatcher_NonexistentFile(t *testing.T) {
	_, err := New("/nonexistent/path/doc.json").Watch(context.Background())
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	writeFile(t, path, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := New(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	<-ch

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel to close")
	}
}

func TestWatcher_EmitsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	writeFile(t, path, `"one"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := New(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	receive(t, ctx, ch)

	writeFile(t, path, `"two"`)

	// A single write may surface as more than one event.
	for {
		if got := receive(t, ctx, ch); got == `"two"` {
			return
		}
	}
}

func TestWatcher_FollowsRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	writeFile(t, path, `"one"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := New(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	receive(t, ctx, ch)

	tmp := filepath.Join(dir, "doc.json.tmp")
	writeFile(t, tmp, `"renamed"`)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	for {
		if got := receive(t, ctx, ch); got == `"renamed"` {
			return
		}
	}
}

func TestWatcher_DrivesFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	writeFile(t, path, `"initial"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := rewind.New("")
	feed := rewind.NewFeed(New(path), store.Update()).Codec(rewind.JSONCodec{})

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if store.Current() != "initial" {
		t.Fatalf("expected 'initial', got %q", store.Current())
	}
	hist := rewind.NewHistory[string](0).Sync(store)

	writeFile(t, path, `"edited"`)

	for store.Current() != "edited" || hist.Len() == 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for edit, current %q", store.Current())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The oldest entry is the value the feed replaced first.
	entries := hist.Snapshot()
	if len(entries) == 0 || entries[len(entries)-1] != "initial" {
		t.Errorf("expected 'initial' as oldest history entry, got %v", entries)
	}
}
