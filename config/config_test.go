package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "missing api key",
			mutate: func(cfg *Config) {
				cfg.APIKey = ""
			},
			wantErr: "api key",
		},
		{
			name: "zero concurrency",
			mutate: func(cfg *Config) {
				cfg.Concurrency = 0
			},
			wantErr: "concurrency",
		},
		{
			name: "concurrency above limit",
			mutate: func(cfg *Config) {
				cfg.Concurrency = MaxConcurrency + 1
			},
			wantErr: "concurrency",
		},
		{
			name: "endpoint without host",
			mutate: func(cfg *Config) {
				cfg.Endpoint = "http://"
			},
			wantErr: "endpoint",
		},
		{
			name: "negative retries",
			mutate: func(cfg *Config) {
				cfg.MaxRetries = -1
			},
			wantErr: "max retries",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero cache ttl",
			mutate: func(cfg *Config) {
				cfg.CacheTTL = 0
			},
			wantErr: "cache ttl",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config with api key should validate, got %v", err)
	}
}

func TestInitialDelay(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.InitialDelay(); got != DefaultInitialDelay {
		t.Fatalf("initial delay = %v, want %v", got, DefaultInitialDelay)
	}
	cfg.UseInitialDelay = false
	if got := cfg.InitialDelay(); got != 0 {
		t.Fatalf("initial delay = %v, want 0", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_API_KEY", " env-key ")
	t.Setenv("SCRAPER_CONCURRENCY", "4")
	t.Setenv("SCRAPER_INITIAL_DELAY", "false")
	t.Setenv("SCRAPER_TASK_TIMEOUT", "30s")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("api key = %q, want %q", cfg.APIKey, "env-key")
	}
	if cfg.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.UseInitialDelay {
		t.Errorf("initial delay should be disabled")
	}
	if cfg.TaskTimeout != 30*time.Second {
		t.Errorf("task timeout = %v, want 30s", cfg.TaskTimeout)
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("SCRAPER_CONCURRENCY", "many")
	if err := DefaultConfig().ApplyEnv(); err == nil || !strings.Contains(err.Error(), "SCRAPER_CONCURRENCY") {
		t.Fatalf("expected SCRAPER_CONCURRENCY error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SCRAPER_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SCRAPER_DOTENV_PROBE", "")
	os.Unsetenv("SCRAPER_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got, _ := EnvString("SCRAPER_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("SCRAPER_DOTENV_PROBE = %q, want %q", got, "from-file")
	}
}

func TestConfigValidateOutputFormats(t *testing.T) {
	for _, format := range []string{"csv", "json", "xlsx", "dual", "all"} {
		cfg := validConfig()
		cfg.OutputFormat = format
		if err := cfg.Validate(); err != nil {
			t.Fatalf("format %q should be valid: %v", format, err)
		}
	}
}
