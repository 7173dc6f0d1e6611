package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/pdp-auditor/internal/keys"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Capture.Driver != DriverHeadless || !cfg.Capture.BlockResources {
		t.Fatalf("expected headless capture with blocking, got %+v", cfg.Capture)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.DB.Backend != BackendMemory {
		t.Fatalf("expected memory backends, got %s/%s", cfg.Storage.Backend, cfg.DB.Backend)
	}
	if !cfg.Synthesis.AllowInsufficientEvidence {
		t.Fatal("expected insufficient evidence to be allowed by default")
	}
	if cfg.Versions != keys.DefaultVersions() {
		t.Fatalf("expected default versions, got %+v", cfg.Versions)
	}
	if got := cfg.CaptureTimeout(); got != 45*time.Second {
		t.Fatalf("expected 45s capture timeout, got %v", got)
	}
	if cfg.Capture.PromotionThreshold != 2048 {
		t.Fatalf("expected 2048 byte promotion threshold, got %d", cfg.Capture.PromotionThreshold)
	}
	if !cfg.Progress.Enabled || cfg.Progress.LogEvents {
		t.Fatalf("expected progress metrics without event logs, got %+v", cfg.Progress)
	}
	if cfg.Worker.MaxAttempts != 1 {
		t.Fatalf("expected single attempt by default, got %d", cfg.Worker.MaxAttempts)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
worker:
  count: 6
  queue_depth: 128
  max_attempts: 3
  retry_backoff_ms: 500
capture:
  driver: static
  timeout_seconds: 20
  block_resources: false
storage:
  backend: gcs
  gcs_bucket: audits
  public_base_url: https://cdn.example.com
db:
  backend: postgres
  dsn: postgres://localhost/audits
pubsub:
  project_id: proj
  topic: audit-runs
synthesis:
  allow_insufficient_evidence: false
  max_tickets: 5
versions:
  scoring: s2
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Worker.Count != 6 || cfg.Worker.MaxAttempts != 3 {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Worker)
	}
	if got := cfg.RetryBackoff(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms backoff, got %v", got)
	}
	if cfg.Capture.Driver != DriverStatic || cfg.Capture.BlockResources {
		t.Fatalf("expected capture overrides to apply: %+v", cfg.Capture)
	}
	if cfg.Storage.GCSBucket != "audits" || cfg.DB.DSN != "postgres://localhost/audits" {
		t.Fatalf("expected storage/db overrides to apply")
	}
	if cfg.Synthesis.AllowInsufficientEvidence || cfg.Synthesis.MaxTickets != 5 {
		t.Fatalf("expected synthesis overrides to apply: %+v", cfg.Synthesis)
	}
	if cfg.Versions.Scoring != "s2" || cfg.Versions.Detectors != keys.DefaultVersions().Detectors {
		t.Fatalf("expected partial version override, got %+v", cfg.Versions)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected anthropic provider, got %q", cfg.LLM.Provider)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Worker:  WorkerConfig{Count: 1, QueueDepth: 1},
		Capture: CaptureConfig{Driver: DriverHeadless, TimeoutSeconds: 45, MaxSessions: 1},
		Storage: StorageConfig{Backend: BackendMemory},
		DB:      DBConfig{Backend: BackendMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid worker count", func(c *Config) { c.Worker.Count = 0 }, "worker.count"},
		{"invalid queue depth", func(c *Config) { c.Worker.QueueDepth = 0 }, "worker.queue_depth"},
		{"invalid capture timeout", func(c *Config) { c.Capture.TimeoutSeconds = 0 }, "capture.timeout_seconds"},
		{"headless without sessions", func(c *Config) { c.Capture.MaxSessions = 0 }, "capture.max_sessions"},
		{"auto without sessions", func(c *Config) {
			c.Capture.Driver = DriverAuto
			c.Capture.MaxSessions = 0
		}, "capture.max_sessions"},
		{"unknown driver", func(c *Config) { c.Capture.Driver = "selenium" }, "capture.driver"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.gcs_bucket"},
		{"local without dir", func(c *Config) { c.Storage.Backend = BackendLocal }, "storage.local_dir"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.DB.Backend = BackendPostgres }, "db.dsn"},
		{"unknown db", func(c *Config) { c.DB.Backend = "mysql" }, "db.backend"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "runs" }, "pubsub.project_id"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"sample ratio out of range", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDurationHelpersFallBack(t *testing.T) {
	t.Parallel()

	var c Config
	if c.RequestTimeout() != 30*time.Second || c.ShutdownTimeout() != 15*time.Second {
		t.Fatalf("expected fallback timeouts, got %v/%v", c.RequestTimeout(), c.ShutdownTimeout())
	}
	if c.ModelTimeout() != 60*time.Second {
		t.Fatalf("expected fallback model timeout, got %v", c.ModelTimeout())
	}
	if c.RunTimeout() != 0 {
		t.Fatalf("expected unbounded run timeout, got %v", c.RunTimeout())
	}
}
