package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/kazi/internal/audit"
	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/fsops"
	"github.com/jkaninda/kazi/internal/gateway/httpapi"
	"github.com/jkaninda/kazi/internal/janitor"
	"github.com/jkaninda/kazi/internal/mcpserver"
	"github.com/jkaninda/kazi/internal/observability"
	"github.com/jkaninda/kazi/internal/ratelimit"
	"github.com/jkaninda/kazi/internal/sandbox"
	"github.com/jkaninda/kazi/internal/script"
	"github.com/jkaninda/kazi/internal/tools"
	filetool "github.com/jkaninda/kazi/internal/tools/file"
	scripttool "github.com/jkaninda/kazi/internal/tools/script"
	"github.com/jkaninda/kazi/internal/watch"
	"github.com/jkaninda/kazi/internal/workspace"
)

var (
	serveConfigPath string
	serveAddr       string
	serveWorkspace  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and MCP server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `kazi --config path` and `kazi serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serveAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
		cmd.Flags().StringVar(&serveWorkspace, "workspace", "", "override workspace root directory")
	}
}

// runServe wires every component and blocks until shutdown.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfgPath := goutils.Env("KAZI_CONFIG", serveConfigPath)
	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.ListenAddr = serveAddr
	}
	if serveWorkspace != "" {
		cfg.Workspace = serveWorkspace
	}

	ws, err := workspace.New(cfg.ResolvedWorkspace())
	if err != nil {
		return err
	}
	logger.Info("workspace ready", slog.String("root", ws.Root))

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}

	// Sandbox and script engine.
	proc := sandbox.NewProcessSandbox(sandbox.ProcessConfig{
		DefaultTimeout: cfg.Execution.Timeout(),
		KillGrace:      cfg.Sandbox.KillGrace(),
		DefaultLimits: sandbox.ResourceLimits{
			MaxCPUSeconds: cfg.Sandbox.MaxCPUSeconds,
			MaxMemoryMB:   cfg.Sandbox.MaxMemoryMB,
		},
	}, logger)
	var sb sandbox.Sandbox = proc
	if obs != nil {
		sb = observability.NewInstrumentedSandbox(proc, obs.Metrics, obs.Tracer, obs.Anomaly)
	}
	engine := script.New(ws, sb, cfg.Execution.Timeout(), cfg.Execution.MaxTimeout(), logger)

	fs := fsops.New(ws, logger)

	// Audit store (optional).
	var auditStore *audit.Store
	if cfg.Audit != nil && cfg.Audit.Enabled {
		auditStore, err = audit.Open(audit.Config{Path: cfg.AuditDBPath()}, logger)
		if err != nil {
			return err
		}
		defer auditStore.Close()
	}

	// Tool registry. Every tool carries audit recording and instrumentation,
	// so both transports share one pipeline.
	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		filetool.NewCreateTool(fs, logger),
		filetool.NewReadTool(fs, logger),
		filetool.NewUpdateTool(fs, logger),
		filetool.NewDeleteTool(fs, logger),
		filetool.NewDeleteDirTool(fs, logger),
		filetool.NewListTool(fs, logger),
		filetool.NewMkdirTool(fs, logger),
		scripttool.NewExecuteTool(engine, logger),
	} {
		if auditStore != nil {
			t = audit.NewRecordingTool(t, auditStore)
		}
		if obs != nil {
			t = observability.NewInstrumentedTool(t, obs.Metrics, obs.Tracer, obs.Anomaly)
		}
		registry.Register(t)
	}
	logger.Info("tools registered", slog.Any("tools", registry.List()))

	// MCP server over the same registry.
	mcpSrv, err := mcpserver.New("kazi", version, registry, logger)
	if err != nil {
		return err
	}

	// Rate limiter (unlimited when not configured).
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
	})

	// Health checks.
	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("workspace", func(_ context.Context) error {
			_, statErr := os.Stat(ws.Root)
			return statErr
		})
		if auditStore != nil {
			obs.Health.AddCheck("audit", auditStore.Ping)
		}
	}

	// HTTP gateway.
	gwCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		Version:        version,
		EnableDocs:     cfg.Server.EnableDocs,
		APIKeys:        cfg.Server.APIKeys,
		MaxRequestSize: cfg.Server.MaxRequestSize(),
		HealthChecker:  obs.HealthOrNil(),
		Metrics:        obs.MetricsOrNil(),
	}
	if m := obs.MetricsOrNil(); m != nil {
		gwCfg.MetricsRegistry = m.Registry
	}
	if t := obs.TracerOrNil(); t != nil {
		gwCfg.Tracer = t.Tracer()
	}

	gw := httpapi.NewGateway(gwCfg, registry, limiter, logger)
	if auditStore != nil {
		gw.WithAudit(auditStore)
	}

	// MCP transports.
	basePath := cfg.Server.MCP.MCPBasePath()
	if !cfg.Server.MCP.DisableStreamable {
		gw.WithHandler(basePath, mcpSrv.StreamableHandler(basePath), "POST", "GET", "DELETE")
	}
	if !cfg.Server.MCP.DisableSSE {
		sse := mcpSrv.SSEHandler(basePath)
		gw.WithHandler(basePath+"/sse", sse, "GET")
		gw.WithHandler(basePath+"/message", sse, "POST")
	}

	// Workspace watch (optional).
	var watcher *watch.Watcher
	if cfg.Watch != nil && cfg.Watch.Enabled {
		watcher, err = watch.New(ws.Root, obs.MetricsOrNil(), logger)
		if err != nil {
			return err
		}
		gw.WithHandler("/v1/watch", bearerAuth(cfg.Server.APIKeys, watcher.Handler()), "GET")
	}

	// Retention janitor (optional).
	if cfg.Janitor != nil && cfg.Janitor.Enabled {
		jan, jerr := janitor.New(ws.Root, cfg.Janitor, limiter, logger)
		if jerr != nil {
			return jerr
		}
		jan.Start()
		defer jan.Stop()
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			logger.Error("stopping watcher", slog.String("error", err.Error()))
		}
	}
	obs.Shutdown(shutdownCtx)

	return nil
}

// loadConfig reads the config file, falling back to built-in defaults when
// the file does not exist.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file found, using defaults", slog.String("path", path))
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

// bearerAuth guards a raw HTTP handler with the same API keys the /v1 group
// uses. WebSocket clients may pass the key as a "token" query parameter.
func bearerAuth(keys []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		for _, key := range keys {
			if token == key {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}
