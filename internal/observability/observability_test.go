package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/sandbox"
	"github.com/jkaninda/kazi/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counterValue reads a counter with the given label values from the registry.
func counterValue(t *testing.T, m *MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
		}
	}
	return 0
}

func TestNewDisabled(t *testing.T) {
	obs, err := New(nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs != nil {
		t.Fatalf("nil config must disable observability, got %+v", obs)
	}
	// All facade accessors must be nil-safe on a nil receiver.
	if obs.MetricsOrNil() != nil || obs.TracerOrNil() != nil || obs.HealthOrNil() != nil {
		t.Error("nil facade accessors returned non-nil")
	}
	obs.Shutdown(context.Background())
}

func TestNewWithMetrics(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs.Metrics == nil {
		t.Fatal("metrics not created")
	}
	if obs.Health == nil {
		t.Fatal("health checker not created")
	}
	if obs.Tracer != nil {
		t.Error("tracer created without tracing config")
	}
}

func TestRecordHelpersNilSafe(t *testing.T) {
	var m *MetricsCollector
	m.RecordFileOp("read", "success", 0.01)
	m.RecordScript("timeout", 1.0)
}

func TestRecordFileOp(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordFileOp("create", "success", 0.002)
	m.RecordFileOp("create", "error", 0.001)

	got := counterValue(t, m, "kazi_file_operations_total",
		map[string]string{"operation": "create", "status": "success"})
	if got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
	got = counterValue(t, m, "kazi_file_operations_total",
		map[string]string{"operation": "create", "status": "error"})
	if got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

type stubSandbox struct {
	result *sandbox.ExecutionResult
	err    error
}

func (s *stubSandbox) Execute(context.Context, sandbox.ExecutionRequest) (*sandbox.ExecutionResult, error) {
	return s.result, s.err
}

func TestInstrumentedSandboxStatuses(t *testing.T) {
	tests := []struct {
		name   string
		stub   stubSandbox
		status string
	}{
		{"success", stubSandbox{result: &sandbox.ExecutionResult{}}, "success"},
		{"timeout", stubSandbox{result: &sandbox.ExecutionResult{TimedOut: true, ExitCode: -1}}, "timeout"},
		{"nonzero", stubSandbox{result: &sandbox.ExecutionResult{ExitCode: 3}}, "nonzero_exit"},
		{"error", stubSandbox{err: errors.New("spawn failed")}, "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMetricsCollector()
			s := NewInstrumentedSandbox(&tc.stub, m, nil, nil)

			_, _ = s.Execute(context.Background(), sandbox.ExecutionRequest{Command: []string{"true"}})

			got := counterValue(t, m, "kazi_sandbox_executions_total", map[string]string{"status": tc.status})
			if got != 1 {
				t.Errorf("status %q counter = %v, want 1", tc.status, got)
			}
		})
	}
}

type stubTool struct {
	result *tools.Result
	err    error
}

func (s *stubTool) Name() string                  { return "read_file" }
func (s *stubTool) Description() string           { return "stub" }
func (s *stubTool) InputSchema() map[string]any   { return map[string]any{"type": "object"} }
func (s *stubTool) Validate(map[string]any) error { return nil }
func (s *stubTool) Execute(context.Context, map[string]any) (*tools.Result, error) {
	return s.result, s.err
}

func TestInstrumentedToolRecords(t *testing.T) {
	m := NewMetricsCollector()
	tool := NewInstrumentedTool(&stubTool{result: &tools.Result{Success: true}}, m, nil, nil)

	if tool.Name() != "read_file" {
		t.Errorf("Name = %q", tool.Name())
	}
	if _, err := tool.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := counterValue(t, m, "kazi_file_operations_total",
		map[string]string{"operation": "read_file", "status": "success"})
	if got != 1 {
		t.Errorf("counter = %v, want 1", got)
	}
}

func TestInstrumentedToolError(t *testing.T) {
	m := NewMetricsCollector()
	wantErr := errors.New("boom")
	tool := NewInstrumentedTool(&stubTool{err: wantErr}, m, nil, nil)

	_, err := tool.Execute(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	got := counterValue(t, m, "kazi_file_operations_total",
		map[string]string{"operation": "read_file", "status": "error"})
	if got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

type namedStubTool struct {
	stubTool
	name string
}

func (s *namedStubTool) Name() string { return s.name }

func TestInstrumentedToolRecordsScript(t *testing.T) {
	m := NewMetricsCollector()
	tool := NewInstrumentedTool(&namedStubTool{
		stubTool: stubTool{result: &tools.Result{Success: true}},
		name:     "execute_python",
	}, m, nil, nil)

	if _, err := tool.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := counterValue(t, m, "kazi_script_executions_total",
		map[string]string{"status": "success"})
	if got != 1 {
		t.Errorf("script counter = %v, want 1", got)
	}
}

func TestInstrumentedToolNilMetrics(t *testing.T) {
	tool := NewInstrumentedTool(&namedStubTool{
		stubTool: stubTool{result: &tools.Result{Success: true}},
		name:     "execute_python",
	}, nil, nil, nil)

	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Error("Success = false")
	}
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker(testLogger())

	if got := h.CheckHealth(); got.Status != "ok" {
		t.Errorf("CheckHealth = %+v", got)
	}
	if got := h.CheckReady(context.Background()); got.Status != "ok" {
		t.Errorf("CheckReady with no checks = %+v", got)
	}

	h.AddCheck("workspace", func(context.Context) error { return nil })
	h.AddCheck("audit", func(context.Context) error { return errors.New("db closed") })

	got := h.CheckReady(context.Background())
	if got.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", got.Status)
	}
	if got.Checks["workspace"].Status != "ok" {
		t.Errorf("workspace check = %+v", got.Checks["workspace"])
	}
	if got.Checks["audit"].Status != "fail" || got.Checks["audit"].Message == "" {
		t.Errorf("audit check = %+v", got.Checks["audit"])
	}
}

func TestAnomalyDetectorWindows(t *testing.T) {
	a := NewAnomalyDetector(&config.AnomalyConfig{
		Enabled:            true,
		ErrorRateThreshold: 0.5,
		WindowSeconds:      300,
	}, testLogger())

	for i := 0; i < 6; i++ {
		a.RecordError("create_file")
	}
	a.RecordSuccess("create_file")

	a.mu.Lock()
	errs := a.errorCounts["create_file"].sum()
	succ := a.successCounts["create_file"].sum()
	a.mu.Unlock()
	if errs != 6 || succ != 1 {
		t.Errorf("window sums = %v/%v, want 6/1", errs, succ)
	}
}

func TestSlidingWindowPrune(t *testing.T) {
	w := &slidingWindow{window: 10 * time.Millisecond}
	w.add(1)
	time.Sleep(20 * time.Millisecond)
	if got := w.sum(); got != 0 {
		t.Errorf("sum after expiry = %v, want 0", got)
	}
}
