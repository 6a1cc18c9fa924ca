package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the engine's top-level configuration structure.
type Config struct {
	Version int           `yaml:"version"`
	Store   StoreConfig   `yaml:"store"`
	Lock    LockConfig    `yaml:"lock"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Chat    ChatConfig    `yaml:"chat"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// StoreConfig selects and configures the ScriptStore/SessionStore/SessionIndexStore
// backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path, used only when Backend is "sqlite".
	Path string `yaml:"path"`
}

// LockConfig configures the session lock provider.
type LockConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig configures defaults for the session service.
type SessionConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures OTLP span export. An empty endpoint disables
// export entirely (spans become no-ops).
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment"`
	Insecure    bool    `yaml:"insecure"`
}

// ChatConfig configures the reference chat collaborator.
type ChatConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ToolsConfig configures the reference tool registry.
type ToolsConfig struct {
	PerToolTimeout time.Duration `yaml:"per_tool_timeout"`
}

// Load reads, merges $include directives, expands environment variables and
// parses path into a validated, defaulted Config.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Lock.Timeout == 0 {
		cfg.Lock.Timeout = 30 * time.Second
	}
	if cfg.Session.DefaultPageSize == 0 {
		cfg.Session.DefaultPageSize = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "anthropic"
	}
	if cfg.Chat.MaxRetries == 0 {
		cfg.Chat.MaxRetries = 3
	}
	if cfg.Chat.RetryDelay == 0 {
		cfg.Chat.RetryDelay = time.Second
	}
	if cfg.Tools.PerToolTimeout == 0 {
		cfg.Tools.PerToolTimeout = 30 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("HARMONIX_STORE_BACKEND")); value != "" {
		cfg.Store.Backend = value
	}
	if value := strings.TrimSpace(os.Getenv("HARMONIX_STORE_PATH")); value != "" {
		cfg.Store.Path = value
	}
	if value := strings.TrimSpace(os.Getenv("HARMONIX_LOCK_TIMEOUT")); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			cfg.Lock.Timeout = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("HARMONIX_PAGE_SIZE")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Session.DefaultPageSize = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("HARMONIX_OTLP_ENDPOINT")); value != "" {
		cfg.Tracing.Endpoint = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" && cfg.Chat.Provider == "anthropic" {
		cfg.Chat.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" && cfg.Chat.Provider == "openai" {
		cfg.Chat.APIKey = value
	}
}

// ConfigValidationError reports one or more invalid field values found
// while validating a loaded Config.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	switch cfg.Store.Backend {
	case "memory", "sqlite":
	default:
		issues = append(issues, `store.backend must be "memory" or "sqlite"`)
	}
	if cfg.Store.Backend == "sqlite" && strings.TrimSpace(cfg.Store.Path) == "" {
		issues = append(issues, "store.path is required when store.backend is \"sqlite\"")
	}
	if cfg.Lock.Timeout <= 0 {
		issues = append(issues, "lock.timeout must be > 0")
	}
	if cfg.Session.DefaultPageSize <= 0 {
		issues = append(issues, "session.default_page_size must be > 0")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, `logging.level must be "debug", "info", "warn", or "error"`)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, `logging.format must be "json" or "text"`)
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be between 0 and 1")
	}
	switch cfg.Chat.Provider {
	case "anthropic", "openai":
	default:
		issues = append(issues, `chat.provider must be "anthropic" or "openai"`)
	}
	if cfg.Chat.MaxRetries < 0 {
		issues = append(issues, "chat.max_retries must be >= 0")
	}
	if cfg.Tools.PerToolTimeout < 0 {
		issues = append(issues, "tools.per_tool_timeout must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// String renders a short human summary, useful for `harmonix doctor` output.
func (c *Config) String() string {
	return fmt.Sprintf("store=%s lock_timeout=%s page_size=%d chat=%s/%s",
		c.Store.Backend, c.Lock.Timeout, c.Session.DefaultPageSize, c.Chat.Provider, c.Chat.Model)
}
