// Package httpapi implements the HTTP API gateway for Kazi.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 12 MB, sized to the file content cap)
//   - Per-client rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
//
// Every file and script operation dispatches through the tool registry, so
// HTTP calls hit the same validation, metrics, and audit pipeline as MCP
// calls.
package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/kazi/internal/audit"
	"github.com/jkaninda/kazi/internal/observability"
	"github.com/jkaninda/kazi/internal/ratelimit"
	"github.com/jkaninda/kazi/internal/tools"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	Version        string // Reported by the root info endpoint.
	EnableDocs     bool
	APIKeys        []string // Accepted Bearer keys. Empty = auth disabled.
	MaxRequestSize int64    // Maximum request body in bytes.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config   Config
	registry *tools.Registry
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	server   *http.Server

	auditStore *audit.Store // nil = audit endpoint disabled.

	// Extra handlers mounted on the HTTP mux (WebSocket watch, MCP transports).
	extraRoutes []extraRoute

	okapi *okapi.Okapi
	group *okapi.Group
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	methods []string
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway dispatching through the given
// tool registry.
func NewGateway(cfg Config, registry *tools.Registry, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	maxBody := cfg.MaxRequestSize
	if maxBody <= 0 {
		maxBody = 12 << 20
	}
	cfg.MaxRequestSize = maxBody
	return &Gateway{
		config:   cfg,
		registry: registry,
		limiter:  rl,
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(maxBody)),
	}
}

// WithAudit enables the GET /v1/audit endpoint backed by the given store.
func (g *Gateway) WithAudit(store *audit.Store) *Gateway {
	g.auditStore = store
	return g
}

// WithHandler mounts an additional handler on the HTTP mux at the given
// pattern for the given methods. Used for the WebSocket watch endpoint and
// the MCP transports.
func (g *Gateway) WithHandler(pattern string, handler http.Handler, methods ...string) *Gateway {
	if len(methods) == 0 {
		methods = []string{"GET"}
	}
	g.extraRoutes = append(g.extraRoutes, extraRoute{methods: methods, pattern: pattern, handler: handler})
	return g
}

// WithOpenAPIDocs enables the OpenAPI documentation endpoint.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Kazi",
			Version: g.config.Version,
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Authenticated /v1 group. Request metrics and spans cover the API
	// surface; probe and scrape endpoints stay uncounted.
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.group = g.okapi.Group("/v1",
			observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer),
			g.authenticate,
		)
	} else {
		g.group = g.okapi.Group("/v1", g.authenticate)
	}

	// File endpoints.
	g.group.Post("/files", g.handleFileCreate,
		okapi.DocSummary("Create a new file in the workspace"),
		okapi.DocTags("Files"),
		okapi.DocRequestBody(FileWriteRequest{}),
		okapi.DocResponse(http.StatusCreated, FileWriteResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Get("/files/content", g.handleFileRead,
		okapi.DocSummary("Read file contents"),
		okapi.DocTags("Files"),
		okapi.DocResponse(FileContentResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/files", g.handleFileUpdate,
		okapi.DocSummary("Replace the contents of an existing file"),
		okapi.DocTags("Files"),
		okapi.DocRequestBody(FileWriteRequest{}),
		okapi.DocResponse(FileWriteResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/files", g.handleFileDelete,
		okapi.DocSummary("Delete a file"),
		okapi.DocTags("Files"),
		okapi.DocResponse(StatusResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/files", g.handleFileList,
		okapi.DocSummary("List files and directories"),
		okapi.DocTags("Files"),
		okapi.DocResponse(ListResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Directory endpoints.
	g.group.Post("/directories", g.handleDirCreate,
		okapi.DocSummary("Create a directory, including missing parents"),
		okapi.DocTags("Directories"),
		okapi.DocRequestBody(MkdirRequest{}),
		okapi.DocResponse(http.StatusCreated, StatusResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Delete("/directories", g.handleDirDelete,
		okapi.DocSummary("Delete a directory"),
		okapi.DocTags("Directories"),
		okapi.DocResponse(StatusResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Script execution.
	g.group.Post("/execute", g.handleExecute,
		okapi.DocSummary("Run a workspace script under the sandbox"),
		okapi.DocTags("Execute"),
		okapi.DocRequestBody(ExecuteRequest{}),
		okapi.DocResponse(ExecuteResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Audit trail (only when the store is configured).
	if g.auditStore != nil {
		g.group.Get("/audit", g.handleAuditRecent,
			okapi.DocSummary("List recent audited operations"),
			okapi.DocTags("Audit"),
			okapi.DocResponse(AuditResponse{}),
		)
	}

	// Extra handlers (WebSocket watch endpoint, MCP transports).
	for _, er := range g.extraRoutes {
		for _, method := range er.methods {
			g.okapi.HandleStd(method, er.pattern, er.handler.ServeHTTP)
		}
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/", g.handleInfo)
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // Script executions can run long.
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Authentication ---

// authenticate validates the Bearer API key. With no keys configured,
// authentication is disabled and every caller shares one rate limit bucket.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("clientID", "anonymous")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		matched := -1
		for i, key := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				matched = i
			}
		}
		if matched < 0 {
			return c.AbortUnauthorized("invalid API key")
		}
		// Keys are identities; rate limiting is per key.
		c.Set("clientID", "key-"+strconv.Itoa(matched))
		return next(c)
	}
}
