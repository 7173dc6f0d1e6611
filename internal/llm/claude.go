package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// Claude implements audit.LanguageModel using Anthropic's Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewClaude creates a Claude model. cfg.APIKey must already be resolved.
func NewClaude(cfg Config, logger *zap.Logger) *Claude {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Claude{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger.Named("claude"),
	}
}

// GenerateStructured sends one user turn at temperature zero and returns the
// JSON object found in the reply.
func (c *Claude) GenerateStructured(
	ctx context.Context,
	systemPrompt, userPrompt string,
	schema map[string]any,
) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() { observe(ProviderAnthropic, start, err) }()

	instruction, err := schemaInstruction(schema)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt + "\n\n" + instruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	c.logger.Debug("model reply received",
		zap.String("model", c.model),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("chars", text.Len()),
	)
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content in response")
	}
	return extractObject(text.String())
}
