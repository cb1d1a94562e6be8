// Package tools defines the tool interface and registry for Kazi.
// Every workspace operation exposed to clients — file management and script
// execution — is a Tool; the MCP server and the HTTP gateway both dispatch
// through the registry.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Tool is the interface all Kazi tools must implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "create_file").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's parameters.
	// This is published to MCP clients as the tool's input schema.
	InputSchema() map[string]any

	// Validate checks that params are well-formed before execution so
	// invalid requests fail fast without touching the workspace.
	Validate(params map[string]any) error

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Success  bool           `json:"success"`
}

// MaxOutputBytes is the default cap for tool output to prevent OOM.
const MaxOutputBytes = 1 << 20 // 1 MB

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const correlationIDKey contextKey = iota

// ContextWithCorrelationID returns a new context carrying a request
// correlation ID. The gateway sets it so tool logs and audit records can
// be tied back to the originating request.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID, or "" if not set.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// TruncateOutput caps a string at maxBytes, appending a truncation notice if cut.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const suffix = "\n... [output truncated]"
	if maxBytes <= len(suffix) {
		return s[:maxBytes]
	}
	return s[:maxBytes-len(suffix)] + suffix
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (startup config error, not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered tools in name order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]Tool, 0, len(names))
	for _, name := range names {
		result = append(result, r.tools[name])
	}
	return result
}
