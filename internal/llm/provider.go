// Package llm adapts hosted language models to audit.LanguageModel.
package llm

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
)

// Provider names accepted by New.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const defaultMaxTokens = 4096

// ErrMissingAPIKey is returned when no key is configured or found in the environment.
var ErrMissingAPIKey = errors.New("llm: api key required")

// Config selects and configures a provider.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	// MaxRetries is passed to SDKs that retry on their own. Zero keeps the SDK default.
	MaxRetries int
}

// New builds the configured model. An empty or "none" provider returns a nil
// model so callers fall back to rule-based synthesis.
func New(cfg Config, logger *zap.Logger) (audit.LanguageModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderAnthropic, "claude":
		if cfg.APIKey == "" {
			cfg.APIKey = envKey("AUDITOR_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: set AUDITOR_ANTHROPIC_KEY or ANTHROPIC_API_KEY", ErrMissingAPIKey)
		}
		return NewClaude(cfg, logger), nil
	case ProviderOpenAI, "gpt":
		if cfg.APIKey == "" {
			cfg.APIKey = envKey("AUDITOR_OPENAI_KEY", "OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: set AUDITOR_OPENAI_KEY or OPENAI_API_KEY", ErrMissingAPIKey)
		}
		return NewOpenAI(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: anthropic, openai, none)", cfg.Provider)
	}
}

func envKey(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func observe(provider string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveModelRequest(provider, outcome, time.Since(start))
}
