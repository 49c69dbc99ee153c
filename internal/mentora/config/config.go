// Package config loads and validates the Mentora configuration file.
//
// Configuration is a single YAML document decoded into typed structs.
// Secrets (classifier API key, database URL) may be supplied via environment
// variables so they never have to live in the file itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the Mentora service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Rules      RulesConfig      `yaml:"rules"`
	Memory     MemoryConfig     `yaml:"memory"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Reminder   ReminderConfig   `yaml:"reminder"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the gateway.
	Addr string `yaml:"addr"`

	// Token, when non-empty, is the bearer token required on every request
	// except /health. Empty disables authentication.
	Token string `yaml:"token"`
}

// LoggingConfig configures the global slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig selects and configures the durable document store.
type DatabaseConfig struct {
	// Driver is "sqlite", "postgres", or "memory".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file (driver=sqlite).
	Path string `yaml:"path"`
	// URL is the Postgres connection string (driver=postgres).
	// Overridable via MENTORA_DATABASE_URL.
	URL string `yaml:"url"`
}

// ClassifierConfig configures the external natural-language classifier.
type ClassifierConfig struct {
	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure, or any other OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey is the bearer token. Overridable via MENTORA_CLASSIFIER_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the chat model used for classification.
	Model string `yaml:"model"`
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `yaml:"timeout"`
	// CallsPerMinute is the per-user rate limit on classifier calls.
	// Zero applies the default; negative disables limiting.
	CallsPerMinute int `yaml:"calls_per_minute"`
}

// RulesConfig locates the pattern-classifier rule table.
type RulesConfig struct {
	// Path is the rules YAML file. Empty uses the embedded default table.
	Path string `yaml:"path"`
	// Watch enables hot reload of the rule table on file change.
	Watch bool `yaml:"watch"`
}

// MemoryConfig bounds the memory tiers.
type MemoryConfig struct {
	// ContextTTL is the lifetime of a short-term context record.
	ContextTTL time.Duration `yaml:"context_ttl"`
	// MaxRecords bounds the long-term records kept per user.
	MaxRecords int `yaml:"max_records"`
	// CacheCapacity is the LRU entry bound of the memory cache.
	CacheCapacity int `yaml:"cache_capacity"`
	// CacheTTL is the lifetime of a cache entry.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// CacheMaxBytes is the approximate total-size ceiling of the cache.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
	// FlushInterval is the debounce window for batched durable writes.
	FlushInterval time.Duration `yaml:"flush_interval"`
	// MaxFlushDelay caps how long a pending snapshot may wait while the
	// debounce timer keeps being reset by new updates.
	MaxFlushDelay time.Duration `yaml:"max_flush_delay"`
	// ImmediateWrites disables batching: every update writes through.
	ImmediateWrites bool `yaml:"immediate_writes"`
}

// ResolverConfig tunes the orchestration pipeline.
type ResolverConfig struct {
	// ClassifyTimeout bounds the external classifier call; on expiry the
	// resolver falls back to the rule-only result.
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	// ContextTriggers are the intents that refresh short-term context.
	ContextTriggers []string `yaml:"context_triggers"`
	// DurableIntents are the intents that write through to long-term memory.
	DurableIntents []string `yaml:"durable_intents"`
}

// ReminderConfig configures the scheduled reminder dispatcher.
type ReminderConfig struct {
	// Enabled starts the cron-driven reminder scan.
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression for the scan, e.g. "*/5 * * * *".
	Schedule string `yaml:"schedule"`
	// Lookahead is how far ahead of a scheduled course a reminder fires.
	Lookahead time.Duration `yaml:"lookahead"`
}

// Load reads, decodes, and validates the configuration file at path.
// When path is empty a default configuration is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyEnvOverrides layers environment variables over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MENTORA_CLASSIFIER_API_KEY"); v != "" {
		cfg.Classifier.APIKey = v
	}
	if v := os.Getenv("MENTORA_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MENTORA_SERVER_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
}

// applyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./mentora.db"
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = 30 * time.Second
	}
	if c.Memory.ContextTTL <= 0 {
		c.Memory.ContextTTL = 10 * time.Minute
	}
	if c.Memory.MaxRecords <= 0 {
		c.Memory.MaxRecords = 20
	}
	if c.Memory.CacheCapacity <= 0 {
		c.Memory.CacheCapacity = 256
	}
	if c.Memory.CacheTTL <= 0 {
		c.Memory.CacheTTL = 5 * time.Minute
	}
	if c.Memory.CacheMaxBytes <= 0 {
		c.Memory.CacheMaxBytes = 8 << 20 // 8 MiB
	}
	if c.Memory.FlushInterval <= 0 {
		c.Memory.FlushInterval = 2 * time.Second
	}
	if c.Memory.MaxFlushDelay <= 0 {
		c.Memory.MaxFlushDelay = 30 * time.Second
	}
	if c.Resolver.ClassifyTimeout <= 0 {
		c.Resolver.ClassifyTimeout = 10 * time.Second
	}
	if len(c.Resolver.ContextTriggers) == 0 {
		c.Resolver.ContextTriggers = []string{"add_course", "cancel_course", "reschedule_course"}
	}
	if len(c.Resolver.DurableIntents) == 0 {
		c.Resolver.DurableIntents = []string{"add_course", "reschedule_course", "set_recurring"}
	}
	if c.Reminder.Schedule == "" {
		c.Reminder.Schedule = "*/5 * * * *"
	}
	if c.Reminder.Lookahead <= 0 {
		c.Reminder.Lookahead = time.Hour
	}
}

// Validate rejects configurations that cannot be started.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("config: database.url is required for driver=postgres (or set MENTORA_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	if c.Memory.MaxFlushDelay < c.Memory.FlushInterval {
		return fmt.Errorf("config: memory.max_flush_delay (%s) must not be shorter than memory.flush_interval (%s)",
			c.Memory.MaxFlushDelay, c.Memory.FlushInterval)
	}
	return nil
}
