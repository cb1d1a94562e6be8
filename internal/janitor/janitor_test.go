package janitor

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/kazi/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJanitor(t *testing.T, root string, maxAge time.Duration) *Janitor {
	t.Helper()
	cfg := &config.JanitorConfig{
		Enabled:       true,
		Schedule:      "@hourly",
		MaxAgeSeconds: int(maxAge / time.Second),
	}
	j, err := New(root, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return j
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0640); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

func TestSweepRemovesStaleFiles(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "stale.txt"), 2*time.Hour)
	writeAged(t, filepath.Join(root, "fresh.txt"), time.Minute)

	j := newTestJanitor(t, root, time.Hour)
	removed, err := j.Sweep(time.Now())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d files, want 1", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "stale.txt")); !os.IsNotExist(err) {
		t.Error("stale.txt should be removed")
	}
	if _, err := os.Stat(filepath.Join(root, "fresh.txt")); err != nil {
		t.Errorf("fresh.txt should survive: %v", err)
	}
}

func TestSweepPrunesEmptiedDirectories(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "a", "b", "old.txt"), 2*time.Hour)
	writeAged(t, filepath.Join(root, "keep", "new.txt"), time.Minute)

	j := newTestJanitor(t, root, time.Hour)
	if _, err := j.Sweep(time.Now()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a")); !os.IsNotExist(err) {
		t.Error("emptied directory tree a/ should be pruned")
	}
	if _, err := os.Stat(filepath.Join(root, "keep")); err != nil {
		t.Errorf("non-empty directory keep/ should survive: %v", err)
	}
}

func TestSweepNeverRemovesRoot(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(root, old, old); err != nil {
		t.Fatal(err)
	}

	j := newTestJanitor(t, root, time.Hour)
	if _, err := j.Sweep(time.Now()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should survive sweep: %v", err)
	}
}

func TestSweepEmptyWorkspace(t *testing.T) {
	j := newTestJanitor(t, t.TempDir(), time.Hour)
	removed, err := j.Sweep(time.Now())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Sweep() removed %d files, want 0", removed)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := &config.JanitorConfig{Enabled: true, Schedule: "not a schedule"}
	if _, err := New(t.TempDir(), cfg, nil, testLogger()); err == nil {
		t.Error("New() with invalid cron expression should fail")
	}
}

type fakePruner struct{ called int }

func (f *fakePruner) Prune(time.Duration) int {
	f.called++
	return 3
}

func TestRunPrunesLimiter(t *testing.T) {
	root := t.TempDir()
	pruner := &fakePruner{}
	cfg := &config.JanitorConfig{Enabled: true, MaxAgeSeconds: 3600}
	j, err := New(root, cfg, pruner, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	j.run()
	if pruner.called != 1 {
		t.Errorf("limiter Prune called %d times, want 1", pruner.called)
	}
}
