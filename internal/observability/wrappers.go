package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/kazi/internal/sandbox"
	"github.com/jkaninda/kazi/internal/tools"
)

// --- InstrumentedSandbox ---

// InstrumentedSandbox wraps a sandbox.Sandbox with metrics, tracing, and
// anomaly detection.
type InstrumentedSandbox struct {
	inner   sandbox.Sandbox
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedSandbox wraps a sandbox with observability.
func NewInstrumentedSandbox(inner sandbox.Sandbox, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedSandbox {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedSandbox{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

func (s *InstrumentedSandbox) Execute(ctx context.Context, req sandbox.ExecutionRequest) (*sandbox.ExecutionResult, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "sandbox.execute")
		defer span.End()
	}

	start := time.Now()
	result, err := s.inner.Execute(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	switch {
	case err != nil:
		status = "error"
		if s.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	case result != nil && result.TimedOut:
		status = "timeout"
	case result != nil && result.ExitCode != 0:
		status = "nonzero_exit"
		if s.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.SetAttributes(attribute.Int("sandbox.exit_code", result.ExitCode))
		}
	}

	if s.metrics != nil {
		s.metrics.SandboxExecutionsTotal.WithLabelValues(status).Inc()
		s.metrics.SandboxExecutionDuration.Observe(duration)
	}

	if s.anomaly != nil {
		if err != nil {
			s.anomaly.RecordError("sandbox")
		} else {
			s.anomaly.RecordSuccess("sandbox")
		}
	}

	return result, err
}

// --- InstrumentedTool ---

// InstrumentedTool wraps a tools.Tool with metrics, tracing, and anomaly
// detection. Both the MCP server and the HTTP gateway dispatch through
// wrapped tools, so every operation is counted once regardless of transport.
type InstrumentedTool struct {
	inner   tools.Tool
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedTool wraps a tool with observability.
func NewInstrumentedTool(inner tools.Tool, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedTool {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedTool{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

func (t *InstrumentedTool) Name() string                    { return t.inner.Name() }
func (t *InstrumentedTool) Description() string             { return t.inner.Description() }
func (t *InstrumentedTool) InputSchema() map[string]any     { return t.inner.InputSchema() }
func (t *InstrumentedTool) Validate(p map[string]any) error { return t.inner.Validate(p) }

func (t *InstrumentedTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	name := t.inner.Name()

	if t.tracer != nil {
		var span trace.Span
		ctx, span = t.tracer.Start(ctx, "tool.execute",
			trace.WithAttributes(
				attribute.String("tool.name", name),
			))
		defer span.End()
	}

	start := time.Now()
	result, err := t.inner.Execute(ctx, params)
	duration := time.Since(start).Seconds()

	status := "success"
	switch {
	case err != nil:
		status = "error"
		if t.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	case result != nil && !result.Success:
		status = "failed"
	}

	t.metrics.RecordFileOp(name, status, duration)
	if name == "execute_python" {
		t.metrics.RecordScript(status, duration)
	}

	if t.anomaly != nil {
		if err != nil {
			t.anomaly.RecordError(name)
		} else {
			t.anomaly.RecordSuccess(name)
		}
	}

	return result, err
}

// --- Compile-time interface checks ---

var (
	_ sandbox.Sandbox = (*InstrumentedSandbox)(nil)
	_ tools.Tool      = (*InstrumentedTool)(nil)
)
