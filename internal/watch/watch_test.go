package watch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	w, err := New(root, nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, root
}

// waitForEvent drains the channel until an event matches or the deadline hits.
func waitForEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed before match")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestFileCreateEvent(t *testing.T) {
	w, root := newTestWatcher(t)
	events, cancel := w.Subscribe()
	defer cancel()

	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0640); err != nil {
		t.Fatal(err)
	}

	ev := waitForEvent(t, events, func(ev Event) bool {
		return ev.Path == "hello.txt" && ev.Op == "create"
	})
	if ev.At.IsZero() {
		t.Error("event timestamp should be set")
	}
}

func TestFileRemoveEvent(t *testing.T) {
	w, root := newTestWatcher(t)
	path := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(path, []byte("x"), 0640); err != nil {
		t.Fatal(err)
	}

	events, cancel := w.Subscribe()
	defer cancel()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	waitForEvent(t, events, func(ev Event) bool {
		return ev.Path == "gone.txt" && ev.Op == "remove"
	})
}

func TestNewDirectoryIsWatched(t *testing.T) {
	w, root := newTestWatcher(t)
	events, cancel := w.Subscribe()
	defer cancel()

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0750); err != nil {
		t.Fatal(err)
	}

	// Wait until the directory's own create event confirms the watch is live.
	waitForEvent(t, events, func(ev Event) bool {
		return ev.Path == "sub" && ev.Op == "create"
	})

	if err := os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("y"), 0640); err != nil {
		t.Fatal(err)
	}

	waitForEvent(t, events, func(ev Event) bool {
		return ev.Path == "sub/inner.txt"
	})
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	w, _ := newTestWatcher(t)
	events, cancel := w.Subscribe()
	cancel()
	cancel() // idempotent

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	events, _ := w.Subscribe()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Drain until close.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel not closed after Close()")
		}
	}
}

func TestWriteEvent(t *testing.T) {
	w, root := newTestWatcher(t)
	events, cancel := w.Subscribe()
	defer cancel()

	path := filepath.Join(root, "w.txt")
	if err := os.WriteFile(path, []byte("1"), 0640); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, events, func(ev Event) bool { return ev.Path == "w.txt" && ev.Op == "create" })

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("2"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	waitForEvent(t, events, func(ev Event) bool { return ev.Path == "w.txt" && ev.Op == "write" })
}
