package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Batch       BatchConfig     `toml:"batch"`
	LLM         LLMConfig       `toml:"llm"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig selects and configures the persistent job store backend
type StorageConfig struct {
	Type   string       `toml:"type"` // "sqlite" or "badger"
	Sqlite SqliteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SqliteConfig represents SQLite-specific configuration
type SqliteConfig struct {
	Path          string `toml:"path"`            // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // Page cache size in MB
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Lock wait timeout in milliseconds
	WALMode       bool   `toml:"wal_mode"`        // Enable write-ahead logging
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	MaxWorkers   int    `toml:"max_workers"`   // Number of concurrent workers claiming jobs
	PollInterval string `toml:"poll_interval"` // e.g., "500ms" - idle wait between claim attempts
	ErrorBackoff string `toml:"error_backoff"` // e.g., "1s" - wait after a claim/storage error
}

// BatchConfig contains settings shared by the batch processors
type BatchConfig struct {
	CommandTimeout string `toml:"command_timeout"` // Per-command timeout for validation/test/tool runs
	ToolRoot       string `toml:"tool_root"`       // Root directory filesystem tools are confined to
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig contains unified configuration for the agent runner providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude" or "gemini" (default: "claude")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (or ANTHROPIC_API_KEY)
	Model       string  `toml:"model"`       // Model for agent tasks
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
	Timeout     string  `toml:"timeout"`     // Per-task timeout as duration string (default: "5m")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Gemini API key (or GEMINI_API_KEY)
	Model       string  `toml:"model"`       // Model for agent tasks
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
	Timeout     string  `toml:"timeout"`     // Per-task timeout as duration string (default: "5m")
}

// WebSocketConfig contains configuration for the event stream
type WebSocketConfig struct {
	ProgressInterval string   `toml:"progress_interval"` // Min interval between job_progress broadcasts per stream
	MinLevel         string   `toml:"min_level"`         // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns  []string `toml:"exclude_patterns"`  // Log message patterns excluded from broadcasting
}

// SchedulerConfig contains the maintenance scheduler configuration
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`        // Run the purge scheduler
	PurgeSchedule string `toml:"purge_schedule"` // Cron schedule for purging old terminal jobs
	Retention     string `toml:"retention"`      // Keep terminal jobs younger than this (duration string)
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "stdout", "file"
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level republished as events ("debug", "info", "warn", "error")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here; only user-facing settings belong in opero.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8591,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Sqlite: SqliteConfig{
				Path:          "./data/opero.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
		},
		Queue: QueueConfig{
			MaxWorkers:   5,       // Outer concurrency bound; processors clamp their own inner bound
			PollInterval: "500ms", // Idle wait between claim attempts
			ErrorBackoff: "1s",    // Wait after a storage error before retrying the loop
		},
		Batch: BatchConfig{
			CommandTimeout: "120s",
			ToolRoot:       ".",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			Temperature: 0.2,
			Timeout:     "5m",
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (GEMINI_API_KEY or config)
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			Timeout:     "5m",
		},
		WebSocket: WebSocketConfig{
			ProgressInterval: "500ms", // Throttle job_progress broadcasts; terminal events are never throttled
			MinLevel:         "warn",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			PurgeSchedule: "0 * * * *", // Hourly
			Retention:     "168h",      // 7 days
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "warn",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env -> CLI flags
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("OPERO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("OPERO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("OPERO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if storageType := os.Getenv("OPERO_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if sqlitePath := os.Getenv("OPERO_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.Sqlite.Path = sqlitePath
	}
	if badgerPath := os.Getenv("OPERO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Queue configuration
	if maxWorkers := os.Getenv("OPERO_QUEUE_MAX_WORKERS"); maxWorkers != "" {
		if mw, err := strconv.Atoi(maxWorkers); err == nil {
			config.Queue.MaxWorkers = mw
		}
	}
	if pollInterval := os.Getenv("OPERO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if errorBackoff := os.Getenv("OPERO_QUEUE_ERROR_BACKOFF"); errorBackoff != "" {
		config.Queue.ErrorBackoff = errorBackoff
	}

	// Batch configuration
	if commandTimeout := os.Getenv("OPERO_BATCH_COMMAND_TIMEOUT"); commandTimeout != "" {
		config.Batch.CommandTimeout = commandTimeout
	}
	if toolRoot := os.Getenv("OPERO_BATCH_TOOL_ROOT"); toolRoot != "" {
		config.Batch.ToolRoot = toolRoot
	}

	// Claude configuration (standard env var first, OPERO_ prefix takes priority)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPERO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("OPERO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Gemini configuration
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPERO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("OPERO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// LLM provider configuration
	if provider := os.Getenv("OPERO_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Logging configuration
	if level := os.Getenv("OPERO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if minEventLevel := os.Getenv("OPERO_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration values that would otherwise fail deep inside startup
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "badger":
	default:
		return fmt.Errorf("invalid storage type %q: must be \"sqlite\" or \"badger\"", c.Storage.Type)
	}
	if c.Queue.MaxWorkers < 1 {
		return fmt.Errorf("queue max_workers must be at least 1, got %d", c.Queue.MaxWorkers)
	}
	if _, err := time.ParseDuration(c.Queue.PollInterval); err != nil {
		return fmt.Errorf("invalid queue poll_interval %q: %w", c.Queue.PollInterval, err)
	}
	if _, err := time.ParseDuration(c.Queue.ErrorBackoff); err != nil {
		return fmt.Errorf("invalid queue error_backoff %q: %w", c.Queue.ErrorBackoff, err)
	}
	if _, err := time.ParseDuration(c.Batch.CommandTimeout); err != nil {
		return fmt.Errorf("invalid batch command_timeout %q: %w", c.Batch.CommandTimeout, err)
	}
	if c.Scheduler.Enabled {
		if _, err := time.ParseDuration(c.Scheduler.Retention); err != nil {
			return fmt.Errorf("invalid scheduler retention %q: %w", c.Scheduler.Retention, err)
		}
	}
	return nil
}

// GetPollInterval returns the parsed worker poll interval
func (q *QueueConfig) GetPollInterval() time.Duration {
	return parseDurationOr(q.PollInterval, 500*time.Millisecond)
}

// GetErrorBackoff returns the parsed worker error backoff
func (q *QueueConfig) GetErrorBackoff() time.Duration {
	return parseDurationOr(q.ErrorBackoff, time.Second)
}

// GetCommandTimeout returns the parsed per-command timeout
func (b *BatchConfig) GetCommandTimeout() time.Duration {
	return parseDurationOr(b.CommandTimeout, 120*time.Second)
}

// GetProgressInterval returns the parsed progress broadcast interval
func (w *WebSocketConfig) GetProgressInterval() time.Duration {
	return parseDurationOr(w.ProgressInterval, 500*time.Millisecond)
}

// GetRetention returns the parsed terminal-job retention window
func (s *SchedulerConfig) GetRetention() time.Duration {
	return parseDurationOr(s.Retention, 168*time.Hour)
}

// GetTimeout returns the parsed per-task timeout for Claude calls
func (c *ClaudeConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 5*time.Minute)
}

// GetTimeout returns the parsed per-task timeout for Gemini calls
func (g *GeminiConfig) GetTimeout() time.Duration {
	return parseDurationOr(g.Timeout, 5*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
