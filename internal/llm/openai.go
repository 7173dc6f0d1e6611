package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAI implements audit.LanguageModel using the chat completions API in
// JSON object mode.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAI creates an OpenAI model. cfg.APIKey must already be resolved.
func NewOpenAI(cfg Config, logger *zap.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.Named("openai"),
	}
}

// GenerateStructured requests a JSON object reply shaped by schema.
func (o *OpenAI) GenerateStructured(
	ctx context.Context,
	systemPrompt, userPrompt string,
	schema map[string]any,
) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() { observe(ProviderOpenAI, start, err) }()

	instruction, err := schemaInstruction(schema)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt + "\n\n" + instruction},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: o.maxTokens,
		// Zero is dropped by omitempty and would mean the server default.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	o.logger.Debug("model reply received",
		zap.String("model", o.model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("chars", len(content)),
	)
	return extractObject(content)
}
