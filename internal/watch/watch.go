// Package watch streams workspace change events to WebSocket clients.
// An fsnotify watcher covers the workspace root and every directory under
// it; directories created later are added as their create events arrive.
// Delivery is best-effort: a subscriber that falls behind loses events
// rather than stalling the rest.
package watch

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/fsnotify/fsnotify"

	"github.com/jkaninda/kazi/internal/observability"
)

const subscriberBuffer = 64

// Event is one observed workspace change, as sent to clients.
type Event struct {
	Op   string    `json:"op"`   // create, write, remove, rename, chmod
	Path string    `json:"path"` // workspace-relative, forward slashes
	At   time.Time `json:"at"`
}

// Watcher fans workspace filesystem events out to subscribers.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	metrics *observability.MetricsCollector
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}

	done chan struct{}
}

// New creates a Watcher over root and starts its event loop.
func New(root string, metrics *observability.MetricsCollector, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		fsw:     fsw,
		metrics: metrics,
		logger:  logger,
		subs:    make(map[chan Event]struct{}),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	w.logger.Info("workspace watcher started", slog.String("root", root))
	return w, nil
}

// Close stops the watcher and closes all subscriber channels.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done

	w.mu.Lock()
	for ch := range w.subs {
		close(ch)
	}
	w.subs = make(map[chan Event]struct{})
	w.mu.Unlock()
	return err
}

// Subscribe registers a new event channel. The returned cancel function
// must be called when the subscriber is done.
func (w *Watcher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
		w.mu.Unlock()
	}
	return ch, cancel
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// New directories need their own watch before anything inside them moves.
	if ev.Op.Has(fsnotify.Create) {
		if err := w.addRecursive(ev.Name); err != nil {
			w.logger.Debug("watch add failed",
				slog.String("path", ev.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}

	event := Event{
		Op:   opString(ev.Op),
		Path: filepath.ToSlash(rel),
		At:   time.Now().UTC(),
	}

	w.mu.Lock()
	for ch := range w.subs {
		select {
		case ch <- event:
		default:
			// Slow consumer, drop.
		}
	}
	w.mu.Unlock()
}

func opString(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return strings.ToLower(op.String())
	}
}

// Handler returns an http.Handler that upgrades the connection to
// WebSocket and streams events until the client disconnects.
func (w *Watcher) Handler() http.Handler {
	return http.HandlerFunc(w.handleUpgrade)
}

func (w *Watcher) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		Subprotocols: []string{"kazi-watch-v1"},
	})
	if err != nil {
		w.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	w.metrics.WatchClientConnected()
	defer w.metrics.WatchClientDisconnected()

	events, cancel := w.Subscribe()
	defer cancel()

	ctx := r.Context()

	// Reads are discarded; their failure is how we notice the client left.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
