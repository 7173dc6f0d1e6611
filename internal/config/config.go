// Package config loads and validates auditor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pdp-auditor/internal/keys"
)

// Backends accepted by the storage and db sections.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Capture drivers.
const (
	DriverHeadless = "headless"
	DriverStatic   = "static"
	DriverAuto     = "auto"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Versions  keys.Versions   `mapstructure:"versions"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WorkerConfig sizes the job queue and worker pool.
type WorkerConfig struct {
	Count             int `mapstructure:"count"`
	QueueDepth        int `mapstructure:"queue_depth"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	RetryBackoffMs    int `mapstructure:"retry_backoff_ms"`
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds"`
}

// AuditConfig tunes the pipeline.
type AuditConfig struct {
	DefaultLocale      string `mapstructure:"default_locale"`
	SkipCache          bool   `mapstructure:"skip_cache"`
	UploadConcurrency  int    `mapstructure:"upload_concurrency"`
	OverwriteArtifacts bool   `mapstructure:"overwrite_artifacts"`
	// BlockedHosts rejects submissions for these hosts ("*.example.com" for
	// a suffix).
	BlockedHosts      []string `mapstructure:"blocked_hosts"`
	AllowPrivateHosts bool     `mapstructure:"allow_private_hosts"`
}

// ProgressConfig controls run progress events.
type ProgressConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	LogEvents  bool `mapstructure:"log_events"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// CaptureConfig configures the capture adapters.
type CaptureConfig struct {
	Driver         string  `mapstructure:"driver"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	BlockResources bool    `mapstructure:"block_resources"`
	MaxSessions    int     `mapstructure:"max_sessions"`
	ReadyTimeoutMs int     `mapstructure:"ready_timeout_ms"`
	SettleDelayMs  int     `mapstructure:"settle_delay_ms"`
	ExecPath       string  `mapstructure:"exec_path"`
	HostQPS        float64 `mapstructure:"host_qps"`
	HostBurst      int     `mapstructure:"host_burst"`
	// PromotionThreshold is the body size below which the auto driver
	// inspects a static fetch for a client-rendered shell.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// StorageConfig selects where artifacts and reports are written.
type StorageConfig struct {
	Backend        string `mapstructure:"backend"`
	LocalDir       string `mapstructure:"local_dir"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	ArtifactPrefix string `mapstructure:"artifact_prefix"`
	ReportPrefix   string `mapstructure:"report_prefix"`
}

// DBConfig controls access to the record store.
type DBConfig struct {
	Backend                string `mapstructure:"backend"`
	DSN                    string `mapstructure:"dsn"`
	TablePrefix            string `mapstructure:"table_prefix"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// SynthesisConfig tunes ticket synthesis.
type SynthesisConfig struct {
	AllowInsufficientEvidence bool `mapstructure:"allow_insufficient_evidence"`
	ModelTimeoutSeconds       int  `mapstructure:"model_timeout_seconds"`
	MaxTickets                int  `mapstructure:"max_tickets"`
	MaxLargeEffort            int  `mapstructure:"max_large_effort"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", true)
	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.max_attempts", 1)
	v.SetDefault("worker.retry_backoff_ms", 2000)
	v.SetDefault("worker.run_timeout_seconds", 300)
	v.SetDefault("audit.default_locale", "en")
	v.SetDefault("audit.upload_concurrency", 4)
	v.SetDefault("audit.allow_private_hosts", false)
	v.SetDefault("capture.driver", DriverHeadless)
	v.SetDefault("capture.timeout_seconds", 45)
	v.SetDefault("capture.block_resources", true)
	v.SetDefault("capture.max_sessions", 2)
	v.SetDefault("capture.ready_timeout_ms", 5000)
	v.SetDefault("capture.settle_delay_ms", 750)
	v.SetDefault("capture.host_qps", 1.0)
	v.SetDefault("capture.host_burst", 2)
	v.SetDefault("capture.promotion_threshold", 2048)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.local_dir", "data/blobs")
	v.SetDefault("storage.artifact_prefix", "artifacts")
	v.SetDefault("storage.report_prefix", "reports")
	v.SetDefault("db.backend", BackendMemory)
	v.SetDefault("db.table_prefix", "audit_")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("synthesis.allow_insufficient_evidence", true)
	v.SetDefault("synthesis.model_timeout_seconds", 60)
	v.SetDefault("synthesis.max_tickets", 10)
	v.SetDefault("synthesis.max_large_effort", 2)
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("telemetry.service_name", "pdp-auditor")
	v.SetDefault("telemetry.sample_ratio", 0.1)

	d := keys.DefaultVersions()
	v.SetDefault("versions.normalize", d.Normalize)
	v.SetDefault("versions.engine", d.Engine)
	v.SetDefault("versions.detectors", d.Detectors)
	v.SetDefault("versions.scoring", d.Scoring)
	v.SetDefault("versions.report_outline", d.ReportOutline)
	v.SetDefault("versions.render", d.Render)
	v.SetDefault("versions.csv_export", d.CSVExport)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if c.Capture.TimeoutSeconds <= 0 {
		return fmt.Errorf("capture.timeout_seconds must be > 0")
	}
	switch c.Capture.Driver {
	case DriverHeadless, DriverAuto:
		if c.Capture.MaxSessions <= 0 {
			return fmt.Errorf("capture.max_sessions must be > 0 for the %s driver", c.Capture.Driver)
		}
	case DriverStatic:
	default:
		return fmt.Errorf("capture.driver must be one of %q, %q or %q", DriverHeadless, DriverStatic, DriverAuto)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.DB.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("db.backend %q is not supported", c.DB.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// CaptureTimeout is the hard per-viewport capture bound.
func (c Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSeconds, 30)
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return seconds(c.Server.ShutdownTimeoutSeconds, 15)
}

// ModelTimeout bounds one language model call.
func (c Config) ModelTimeout() time.Duration {
	return seconds(c.Synthesis.ModelTimeoutSeconds, 60)
}

// RunTimeout bounds one pipeline run. Zero disables the bound.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Worker.RunTimeoutSeconds) * time.Second
}

// RetryBackoff is the base delay between worker retries.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Worker.RetryBackoffMs) * time.Millisecond
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
