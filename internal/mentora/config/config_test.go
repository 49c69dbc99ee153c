package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Memory.MaxRecords != 20 {
		t.Errorf("Memory.MaxRecords = %d", cfg.Memory.MaxRecords)
	}
	if cfg.Memory.CacheCapacity != 256 {
		t.Errorf("Memory.CacheCapacity = %d", cfg.Memory.CacheCapacity)
	}
	if cfg.Memory.ContextTTL != 10*time.Minute {
		t.Errorf("Memory.ContextTTL = %v", cfg.Memory.ContextTTL)
	}
	if cfg.Resolver.ClassifyTimeout != 10*time.Second {
		t.Errorf("Resolver.ClassifyTimeout = %v", cfg.Resolver.ClassifyTimeout)
	}
	if len(cfg.Resolver.ContextTriggers) != 3 {
		t.Errorf("Resolver.ContextTriggers = %v", cfg.Resolver.ContextTriggers)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9999"
database:
  driver: memory
memory:
  max_records: 5
  cache_capacity: 10
resolver:
  context_triggers: [add_course]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Memory.MaxRecords != 5 {
		t.Errorf("Memory.MaxRecords = %d", cfg.Memory.MaxRecords)
	}
	if len(cfg.Resolver.ContextTriggers) != 1 || cfg.Resolver.ContextTriggers[0] != "add_course" {
		t.Errorf("Resolver.ContextTriggers = %v", cfg.Resolver.ContextTriggers)
	}
	// Unset fields still get defaults.
	if cfg.Memory.CacheTTL != 5*time.Minute {
		t.Errorf("Memory.CacheTTL = %v", cfg.Memory.CacheTTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load on a missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mongodb" },
			wantErr: "unknown database driver",
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database.url is required",
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "flush delay shorter than interval",
			mutate: func(c *Config) {
				c.Memory.FlushInterval = time.Minute
				c.Memory.MaxFlushDelay = time.Second
			},
			wantErr: "max_flush_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MENTORA_CLASSIFIER_API_KEY", "sk-test")
	t.Setenv("MENTORA_DATABASE_URL", "postgres://db/mentora")
	t.Setenv("MENTORA_SERVER_TOKEN", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Classifier.APIKey != "sk-test" {
		t.Errorf("Classifier.APIKey = %q", cfg.Classifier.APIKey)
	}
	if cfg.Database.URL != "postgres://db/mentora" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Server.Token != "secret" {
		t.Errorf("Server.Token = %q", cfg.Server.Token)
	}
}
