package tools

import (
	"context"
	"strings"
	"testing"
)

type fakeTool struct{ name string }

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Description() string         { return "fake" }
func (f *fakeTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (f *fakeTool) Validate(map[string]any) error {
	return nil
}
func (f *fakeTool) Execute(context.Context, map[string]any) (*Result, error) {
	return &Result{Output: f.name, Success: true}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "read_file"})
	r.Register(&fakeTool{name: "create_file"})

	if got := r.Get("read_file"); got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got := r.Get("nope"); got != nil {
		t.Fatalf("Get(nope) = %v, want nil", got)
	}

	names := r.List()
	if len(names) != 2 || names[0] != "create_file" || names[1] != "read_file" {
		t.Errorf("List = %v, want sorted [create_file read_file]", names)
	}

	all := r.All()
	if len(all) != 2 || all[0].Name() != "create_file" {
		t.Errorf("All not in name order: %v", all)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "x"})

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	r.Register(&fakeTool{name: "x"})
}

func TestTruncateOutput(t *testing.T) {
	if got := TruncateOutput("short", 100); got != "short" {
		t.Errorf("TruncateOutput = %q, want unchanged", got)
	}

	long := strings.Repeat("a", 200)
	got := TruncateOutput(long, 100)
	if len(got) != 100 {
		t.Errorf("len = %d, want 100", len(got))
	}
	if !strings.HasSuffix(got, "[output truncated]") {
		t.Errorf("missing truncation notice: %q", got)
	}
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := context.Background()
	if got := CorrelationIDFromContext(ctx); got != "" {
		t.Errorf("empty context returned %q", got)
	}
	ctx = ContextWithCorrelationID(ctx, "req-1")
	if got := CorrelationIDFromContext(ctx); got != "req-1" {
		t.Errorf("CorrelationIDFromContext = %q, want req-1", got)
	}
}
