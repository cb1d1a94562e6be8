// Package config handles loading and validating Kazi configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Kazi.
type Config struct {
	Workspace     string               `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Workspace root. Default: <tmp>/kazi-workspace. Override: KAZI_WORKSPACE env var.
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`   // Persistent data directory. Default: ~/.kazi/data. Override: KAZI_DATA_DIR env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	Execution     ExecutionConfig      `json:"execution" yaml:"execution"`
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Audit         *AuditConfig         `json:"audit,omitempty" yaml:"audit,omitempty"`                 // nil = audit log disabled
	Janitor       *JanitorConfig       `json:"janitor,omitempty" yaml:"janitor,omitempty"`             // nil = retention sweeps disabled
	Watch         *WatchConfig         `json:"watch,omitempty" yaml:"watch,omitempty"`                 // nil = workspace watch disabled
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 12 MB.
	APIKeys             []string        `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`         // Override: KAZI_API_KEYS env var (comma-separated). Empty = auth disabled.
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	MCP                 MCPConfig       `json:"mcp" yaml:"mcp"`
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s != nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request size cap with a default of 12 MB,
// comfortably above the 10 MB file size limit plus JSON overhead.
func (s *ServerConfig) MaxRequestSize() int64 {
	if s != nil && s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 12 << 20
}

// MCPConfig controls which MCP transports the server mounts.
type MCPConfig struct {
	DisableSSE        bool   `json:"disable_sse" yaml:"disable_sse"`               // SSE transport at <base>/sse. Enabled by default.
	DisableStreamable bool   `json:"disable_streamable" yaml:"disable_streamable"` // Streamable HTTP transport at <base>. Enabled by default.
	BasePath          string `json:"base_path" yaml:"base_path"`                   // Default: "/mcp".
}

// MCPBasePath returns the MCP mount path with a default of "/mcp".
func (m *MCPConfig) MCPBasePath() string {
	if m != nil && m.BasePath != "" {
		return m.BasePath
	}
	return "/mcp"
}

// RateLimitConfig configures per-client rate limiting for the gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// ExecutionConfig bounds script execution.
type ExecutionConfig struct {
	TimeoutSeconds    int `json:"timeout_seconds" yaml:"timeout_seconds"`         // Default: 30.
	MaxTimeoutSeconds int `json:"max_timeout_seconds" yaml:"max_timeout_seconds"` // Cap on per-request overrides. Default: 300.
}

// Timeout returns the default script timeout with a default of 30s.
func (e *ExecutionConfig) Timeout() time.Duration {
	if e != nil && e.TimeoutSeconds > 0 {
		return time.Duration(e.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// MaxTimeout returns the per-request timeout ceiling with a default of 5m.
func (e *ExecutionConfig) MaxTimeout() time.Duration {
	if e != nil && e.MaxTimeoutSeconds > 0 {
		return time.Duration(e.MaxTimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// SandboxConfig constrains the processes that run scripts.
type SandboxConfig struct {
	MaxCPUSeconds    int `json:"max_cpu_seconds" yaml:"max_cpu_seconds"`       // ulimit -t. Default: 60.
	MaxMemoryMB      int `json:"max_memory_mb" yaml:"max_memory_mb"`           // ulimit -v. Default: 512.
	KillGraceSeconds int `json:"kill_grace_seconds" yaml:"kill_grace_seconds"` // SIGTERM to SIGKILL gap. Default: 2.
}

// KillGrace returns the termination grace period with a default of 2s.
func (s *SandboxConfig) KillGrace() time.Duration {
	if s != nil && s.KillGraceSeconds > 0 {
		return time.Duration(s.KillGraceSeconds) * time.Second
	}
	return 2 * time.Second
}

// ObservabilityConfig configures metrics, tracing, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "kazi"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// AnomalyConfig configures threshold-based anomaly detection.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// AuditConfig configures the SQLite operation log.
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // Database file. Default: <data_dir>/audit.db.
}

// JanitorConfig configures periodic workspace retention sweeps.
type JanitorConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Schedule      string `json:"schedule" yaml:"schedule"`               // Cron expression. Default: "@hourly".
	MaxAgeSeconds int    `json:"max_age_seconds" yaml:"max_age_seconds"` // Files untouched longer are removed. Default: 86400.
}

// CronSchedule returns the sweep schedule with a default of "@hourly".
func (j *JanitorConfig) CronSchedule() string {
	if j != nil && j.Schedule != "" {
		return j.Schedule
	}
	return "@hourly"
}

// MaxAge returns the retention age with a default of 24h.
func (j *JanitorConfig) MaxAge() time.Duration {
	if j != nil && j.MaxAgeSeconds > 0 {
		return time.Duration(j.MaxAgeSeconds) * time.Second
	}
	return 24 * time.Hour
}

// WatchConfig configures the workspace change feed.
type WatchConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfigPath returns the default config file path (~/.kazi/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/kazi.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".kazi", "config.json")
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Workspace, data dir, and API keys can be set in the file or
// overridden by environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of file values.
func applyEnvOverrides(cfg *Config) {
	if envWS := os.Getenv("KAZI_WORKSPACE"); envWS != "" {
		cfg.Workspace = envWS
	}
	if envDD := os.Getenv("KAZI_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if envKeys := os.Getenv("KAZI_API_KEYS"); envKeys != "" {
		keys := make([]string, 0, 4)
		for _, k := range strings.Split(envKeys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Server.APIKeys = keys
	}
	if envAddr := os.Getenv("KAZI_LISTEN_ADDR"); envAddr != "" {
		cfg.Server.ListenAddr = envAddr
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedWorkspace returns the workspace root, resolving ~ if needed.
// Empty falls back to a directory under the system temp dir, matching the
// ephemeral-workspace model.
func (c *Config) ResolvedWorkspace() string {
	if c.Workspace == "" {
		return filepath.Join(os.TempDir(), "kazi-workspace")
	}
	resolved, err := resolvePath(c.Workspace)
	if err != nil {
		return c.Workspace
	}
	return resolved
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".kazi", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// AuditDBPath returns the audit database path, defaulting under the data dir.
func (c *Config) AuditDBPath() string {
	if c.Audit != nil && c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.db")
}

func (c *Config) validate() error {
	if c.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("execution.timeout_seconds must not be negative")
	}
	if c.Execution.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("execution.max_timeout_seconds must not be negative")
	}
	if c.Execution.MaxTimeoutSeconds > 0 && c.Execution.TimeoutSeconds > c.Execution.MaxTimeoutSeconds {
		return fmt.Errorf("execution.timeout_seconds %d exceeds max_timeout_seconds %d",
			c.Execution.TimeoutSeconds, c.Execution.MaxTimeoutSeconds)
	}
	if c.Sandbox.MaxMemoryMB < 0 {
		return fmt.Errorf("sandbox.max_memory_mb must not be negative")
	}
	if c.Sandbox.MaxCPUSeconds < 0 {
		return fmt.Errorf("sandbox.max_cpu_seconds must not be negative")
	}
	if c.Server.MaxRequestSizeBytes < 0 {
		return fmt.Errorf("server.max_request_size_bytes must not be negative")
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must not be negative")
	}
	for i, key := range c.Server.APIKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("server.api_keys[%d] is empty", i)
		}
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		if c.Observability.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch p := c.Observability.Tracing.Protocol; p {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", p)
		}
	}
	if c.Janitor != nil && c.Janitor.Enabled && c.Janitor.MaxAgeSeconds < 0 {
		return fmt.Errorf("janitor.max_age_seconds must not be negative")
	}
	return nil
}
