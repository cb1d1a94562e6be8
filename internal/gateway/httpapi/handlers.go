package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/jkaninda/kazi/internal/fsops"
	"github.com/jkaninda/kazi/internal/tools"
)

// --- Request / response bodies ---

// FileWriteRequest is the JSON body for POST and PUT /v1/files.
type FileWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileWriteResponse is the JSON response for file create/update.
type FileWriteResponse struct {
	Path          string `json:"path"`
	SizeBytes     int    `json:"size_bytes"`
	CorrelationID string `json:"correlation_id"`
}

// FileContentResponse is the JSON response for GET /v1/files/content.
type FileContentResponse struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	SizeBytes int    `json:"size_bytes"`
}

// StatusResponse is the JSON response for delete and mkdir operations.
type StatusResponse struct {
	Path          string `json:"path"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
}

// ListResponse is the JSON response for GET /v1/files.
type ListResponse struct {
	Directory string        `json:"directory"`
	Entries   []fsops.Entry `json:"entries"`
	Count     int           `json:"count"`
}

// ExecuteRequest is the JSON body for POST /v1/execute.
type ExecuteRequest struct {
	Path           string   `json:"path"`
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds float64  `json:"timeout_seconds,omitempty"`
}

// ExecuteResponse is the JSON response for POST /v1/execute. Non-zero
// exits and timeouts are reported here with a 200 status; only taxonomy
// failures (missing script, bad path) map to error codes.
type ExecuteResponse struct {
	Success       bool   `json:"success"`
	Output        string `json:"output"`
	ExitCode      *int   `json:"exit_code,omitempty"`
	TimedOut      bool   `json:"timed_out"`
	DurationMS    int64  `json:"duration_ms"`
	CorrelationID string `json:"correlation_id"`
}

// AuditResponse is the JSON response for GET /v1/audit.
type AuditResponse struct {
	Records []auditRecordBody `json:"records"`
	Count   int               `json:"count"`
}

type auditRecordBody struct {
	ID            string `json:"id"`
	CreatedAt     string `json:"created_at"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Tool          string `json:"tool"`
	Path          string `json:"path,omitempty"`
	Success       bool   `json:"success"`
	Detail        string `json:"detail,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// InfoResponse is the JSON response of the root endpoint.
type InfoResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Tools     []string          `json:"tools"`
	Endpoints map[string]string `json:"endpoints"`
}

// --- File handlers ---

func (g *Gateway) handleFileCreate(c *okapi.Context) error {
	var req FileWriteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	return g.dispatch(c, "create_file", http.StatusCreated,
		map[string]any{"path": req.Path, "content": req.Content},
		func(result *tools.Result, correlationID string) any {
			return FileWriteResponse{
				Path:          req.Path,
				SizeBytes:     metaInt(result.Metadata, "size_bytes"),
				CorrelationID: correlationID,
			}
		})
}

func (g *Gateway) handleFileRead(c *okapi.Context) error {
	path := c.Request().URL.Query().Get("path")
	return g.dispatch(c, "read_file", http.StatusOK,
		map[string]any{"path": path},
		func(result *tools.Result, _ string) any {
			return FileContentResponse{
				Path:      path,
				Content:   result.Output,
				SizeBytes: metaInt(result.Metadata, "size_bytes"),
			}
		})
}

func (g *Gateway) handleFileUpdate(c *okapi.Context) error {
	var req FileWriteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	return g.dispatch(c, "update_file", http.StatusOK,
		map[string]any{"path": req.Path, "content": req.Content},
		func(result *tools.Result, correlationID string) any {
			return FileWriteResponse{
				Path:          req.Path,
				SizeBytes:     metaInt(result.Metadata, "size_bytes"),
				CorrelationID: correlationID,
			}
		})
}

func (g *Gateway) handleFileDelete(c *okapi.Context) error {
	path := c.Request().URL.Query().Get("path")
	return g.dispatch(c, "delete_file", http.StatusOK,
		map[string]any{"path": path},
		func(_ *tools.Result, correlationID string) any {
			return StatusResponse{Path: path, Status: "deleted", CorrelationID: correlationID}
		})
}

func (g *Gateway) handleFileList(c *okapi.Context) error {
	dir := c.Request().URL.Query().Get("directory")
	params := map[string]any{}
	if dir != "" {
		params["directory"] = dir
	} else {
		dir = "."
	}
	return g.dispatch(c, "list_files", http.StatusOK, params,
		func(result *tools.Result, _ string) any {
			entries, _ := result.Metadata["entries"].([]fsops.Entry)
			if entries == nil {
				entries = []fsops.Entry{}
			}
			return ListResponse{Directory: dir, Entries: entries, Count: len(entries)}
		})
}

// --- Directory handlers ---

func (g *Gateway) handleDirCreate(c *okapi.Context) error {
	var req MkdirRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	return g.dispatch(c, "create_directory", http.StatusCreated,
		map[string]any{"path": req.Path},
		func(_ *tools.Result, correlationID string) any {
			return StatusResponse{Path: req.Path, Status: "created", CorrelationID: correlationID}
		})
}

// MkdirRequest is the JSON body for POST /v1/directories.
type MkdirRequest struct {
	Path string `json:"path"`
}

func (g *Gateway) handleDirDelete(c *okapi.Context) error {
	query := c.Request().URL.Query()
	path := query.Get("path")
	recursive := query.Get("recursive") == "true"
	return g.dispatch(c, "delete_directory", http.StatusOK,
		map[string]any{"path": path, "recursive": recursive},
		func(_ *tools.Result, correlationID string) any {
			return StatusResponse{Path: path, Status: "deleted", CorrelationID: correlationID}
		})
}

// --- Script execution ---

func (g *Gateway) handleExecute(c *okapi.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	params := map[string]any{"path": req.Path}
	if len(req.Args) > 0 {
		params["args"] = req.Args
	}
	if req.TimeoutSeconds > 0 {
		params["timeout_seconds"] = req.TimeoutSeconds
	}
	return g.dispatch(c, "execute_python", http.StatusOK, params,
		func(result *tools.Result, correlationID string) any {
			resp := ExecuteResponse{
				Success:       result.Success,
				Output:        result.Output,
				TimedOut:      metaBool(result.Metadata, "timed_out"),
				DurationMS:    int64(metaInt(result.Metadata, "duration_ms")),
				CorrelationID: correlationID,
			}
			if code, ok := result.Metadata["exit_code"]; ok {
				if n, ok := code.(int); ok {
					resp.ExitCode = &n
				}
			}
			return resp
		})
}

// --- Audit ---

func (g *Gateway) handleAuditRecent(c *okapi.Context) error {
	limit := 100
	if v := c.Request().URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.AbortBadRequest("limit must be an integer")
		}
		limit = n
	}

	records, err := g.auditStore.Recent(c.Context(), limit)
	if err != nil {
		g.logger.Error("audit query failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("audit query failed")
	}

	body := AuditResponse{Records: make([]auditRecordBody, len(records)), Count: len(records)}
	for i, r := range records {
		body.Records[i] = auditRecordBody{
			ID:            r.ID,
			CreatedAt:     r.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			CorrelationID: r.CorrelationID,
			Tool:          r.Tool,
			Path:          r.Path,
			Success:       r.Success,
			Detail:        r.Detail,
			DurationMS:    r.DurationMS,
		}
	}
	return c.OK(body)
}

// --- Info and health ---

func (g *Gateway) handleInfo(c *okapi.Context) error {
	return c.OK(InfoResponse{
		Service: "kazi",
		Version: g.config.Version,
		Tools:   g.registry.List(),
		Endpoints: map[string]string{
			"files":       "/v1/files",
			"directories": "/v1/directories",
			"execute":     "/v1/execute",
			"watch":       "/v1/watch",
			"mcp":         "/mcp",
			"health":      "/healthz",
			"readiness":   "/readyz",
			"metrics":     "/metrics",
		},
	})
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Dispatch ---

// dispatch runs one registry tool for an HTTP request: rate limit, validate,
// execute, then shape the response. Taxonomy errors from the tool map to
// status codes; anything else is a 500.
func (g *Gateway) dispatch(
	c *okapi.Context,
	toolName string,
	successCode int,
	params map[string]any,
	shape func(result *tools.Result, correlationID string) any,
) error {
	clientID := c.GetString("clientID")
	if g.limiter != nil {
		if err := g.limiter.Allow(clientID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	t := g.registry.Get(toolName)
	if t == nil {
		return c.AbortInternalServerError("tool not registered: " + toolName)
	}

	correlationID := uuid.NewString()
	ctx := tools.ContextWithCorrelationID(c.Context(), correlationID)

	if err := t.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error(), CorrelationID: correlationID})
	}

	g.logger.Info("http tool dispatch",
		slog.String("tool", toolName),
		slog.String("client_id", clientID),
		slog.String("correlation_id", correlationID),
	)

	result, err := t.Execute(ctx, params)
	if err != nil {
		return g.taxonomyError(c, correlationID, toolName, err)
	}
	return c.JSON(successCode, shape(result, correlationID))
}

// taxonomyError maps a tool execution error to an HTTP response.
func (g *Gateway) taxonomyError(c *okapi.Context, correlationID, toolName string, err error) error {
	code := http.StatusInternalServerError
	var opErr *fsops.Error
	if errors.As(err, &opErr) {
		code = kindStatus(opErr.Kind)
	}

	if code == http.StatusInternalServerError {
		g.logger.Error("tool execution failed",
			slog.String("tool", toolName),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
	return c.JSON(code, ErrorBody{Error: err.Error(), CorrelationID: correlationID})
}

func kindStatus(kind fsops.Kind) int {
	switch kind {
	case fsops.KindInvalidArgument:
		return http.StatusBadRequest
	case fsops.KindPathViolation:
		return http.StatusForbidden
	case fsops.KindNotFound:
		return http.StatusNotFound
	case fsops.KindAlreadyExists, fsops.KindNotAFile, fsops.KindNotADirectory:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metaBool(meta map[string]any, key string) bool {
	b, _ := meta[key].(bool)
	return b
}
