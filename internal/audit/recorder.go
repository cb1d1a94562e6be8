package audit

import (
	"context"
	"time"

	"github.com/jkaninda/kazi/internal/tools"
)

// RecordingTool wraps a tools.Tool and appends an audit record for every
// execution. Wrapping at the tool layer means each operation is recorded
// once no matter which transport dispatched it.
type RecordingTool struct {
	inner tools.Tool
	store *Store
}

var _ tools.Tool = (*RecordingTool)(nil)

// NewRecordingTool wraps a tool with audit recording. A nil store makes
// the wrapper a pass-through.
func NewRecordingTool(inner tools.Tool, store *Store) *RecordingTool {
	return &RecordingTool{inner: inner, store: store}
}

func (t *RecordingTool) Name() string                         { return t.inner.Name() }
func (t *RecordingTool) Description() string                  { return t.inner.Description() }
func (t *RecordingTool) InputSchema() map[string]any          { return t.inner.InputSchema() }
func (t *RecordingTool) Validate(params map[string]any) error { return t.inner.Validate(params) }

func (t *RecordingTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	result, err := t.inner.Execute(ctx, params)

	rec := Record{
		CorrelationID: tools.CorrelationIDFromContext(ctx),
		Tool:          t.inner.Name(),
		Path:          pathParam(params),
		DurationMS:    time.Since(start).Milliseconds(),
	}
	switch {
	case err != nil:
		rec.Success = false
		rec.Detail = err.Error()
	default:
		rec.Success = result.Success
		if !result.Success {
			rec.Detail = tools.TruncateOutput(result.Output, 512)
		}
	}
	t.store.Append(ctx, rec)

	return result, err
}

func pathParam(params map[string]any) string {
	if p, ok := params["path"].(string); ok {
		return p
	}
	if d, ok := params["directory"].(string); ok {
		return d
	}
	return ""
}
