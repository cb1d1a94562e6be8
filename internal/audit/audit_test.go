package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/kazi/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := Open(Config{Path: path}, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, tool := range []string{"create_file", "read_file", "execute_python"} {
		store.Append(ctx, Record{
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			Tool:       tool,
			Path:       "notes/a.txt",
			Success:    true,
			DurationMS: int64(i + 1),
		})
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Recent() returned %d records, want 3", len(records))
	}
	// Newest first.
	if records[0].Tool != "execute_python" {
		t.Errorf("records[0].Tool = %q, want execute_python", records[0].Tool)
	}
	if records[2].Tool != "create_file" {
		t.Errorf("records[2].Tool = %q, want create_file", records[2].Tool)
	}
	if records[0].ID == "" {
		t.Error("expected generated record ID")
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Append(ctx, Record{Tool: "read_file", Success: true})
	}

	records, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Recent(2) returned %d records, want 2", len(records))
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	store := openTestStore(t)

	records, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Recent() on empty store returned %d records", len(records))
	}
}

func TestCorrelationIDPersisted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Append(ctx, Record{Tool: "delete_file", CorrelationID: "corr-42", Success: false, Detail: "not found"})

	records, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(records))
	}
	if records[0].CorrelationID != "corr-42" {
		t.Errorf("CorrelationID = %q, want corr-42", records[0].CorrelationID)
	}
	if records[0].Success {
		t.Error("Success = true, want false")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *Store
	ctx := context.Background()

	store.Append(ctx, Record{Tool: "read_file"})
	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Errorf("Recent() on nil store error = %v", err)
	}
	if records != nil {
		t.Errorf("Recent() on nil store = %v, want nil", records)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() on nil store error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close() on nil store error = %v", err)
	}
}

func TestPing(t *testing.T) {
	store := openTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}, testLogger()); err == nil {
		t.Error("Open() with empty path should fail")
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.db")
	store, err := Open(Config{Path: path}, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	store.Append(context.Background(), Record{Tool: "list_files", Success: true})
	records, err := store.Recent(context.Background(), 1)
	if err != nil || len(records) != 1 {
		t.Errorf("Recent() = %v records, err %v", len(records), err)
	}
}

type stubTool struct {
	result *tools.Result
	err    error
}

func (s *stubTool) Name() string                  { return "create_file" }
func (s *stubTool) Description() string           { return "stub" }
func (s *stubTool) InputSchema() map[string]any   { return map[string]any{"type": "object"} }
func (s *stubTool) Validate(map[string]any) error { return nil }
func (s *stubTool) Execute(context.Context, map[string]any) (*tools.Result, error) {
	return s.result, s.err
}

func TestRecordingToolSuccess(t *testing.T) {
	store := openTestStore(t)
	ctx := tools.ContextWithCorrelationID(context.Background(), "corr-1")

	wrapped := NewRecordingTool(&stubTool{result: &tools.Result{Output: "ok", Success: true}}, store)
	if _, err := wrapped.Execute(ctx, map[string]any{"path": "a.txt"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	records, err := store.Recent(ctx, 1)
	if err != nil || len(records) != 1 {
		t.Fatalf("Recent() = %d records, err %v", len(records), err)
	}
	rec := records[0]
	if rec.Tool != "create_file" || rec.Path != "a.txt" || !rec.Success {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want corr-1", rec.CorrelationID)
	}
}

func TestRecordingToolFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	wrapped := NewRecordingTool(&stubTool{err: errors.New("file not found")}, store)
	if _, err := wrapped.Execute(ctx, map[string]any{"path": "missing.txt"}); err == nil {
		t.Fatal("Execute() should propagate the tool error")
	}

	records, err := store.Recent(ctx, 1)
	if err != nil || len(records) != 1 {
		t.Fatalf("Recent() = %d records, err %v", len(records), err)
	}
	if records[0].Success {
		t.Error("Success = true, want false")
	}
	if records[0].Detail != "file not found" {
		t.Errorf("Detail = %q", records[0].Detail)
	}
}

func TestRecordingToolNilStore(t *testing.T) {
	wrapped := NewRecordingTool(&stubTool{result: &tools.Result{Success: true}}, nil)
	if _, err := wrapped.Execute(context.Background(), map[string]any{"path": "x"}); err != nil {
		t.Errorf("Execute() with nil store error = %v", err)
	}
}
