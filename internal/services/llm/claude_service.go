package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

const defaultClaudeMaxTokens = 16384

// ClaudeService streams messages from the Anthropic Claude API.
// Claude has no JSON response mode; the system template asks for a JSON object.
type ClaudeService struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
	logger      arbor.ILogger
}

// NewClaudeService creates a Claude-backed generator
func NewClaudeService(cfg *common.ClaudeConfig, gen *common.GenerationConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key)")
	}

	maxTokens := int64(gen.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	logger.Debug().
		Str("model", cfg.Model).
		Float64("temperature", gen.Temperature).
		Int64("max_tokens", maxTokens).
		Msg("Claude generator initialized")

	return &ClaudeService{
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(0),
		),
		model:       cfg.Model,
		temperature: gen.Temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}, nil
}

// Generate streams one message and returns the concatenated text deltas
func (s *ClaudeService) Generate(ctx context.Context, mode models.Mode, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   s.maxTokens,
		Temperature: anthropic.Float(s.temperature),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt(mode)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	stream := s.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var buf strings.Builder
	for stream.Next() {
		ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
			buf.WriteString(delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return "", &GenerationError{Provider: "claude", Model: s.model, Err: err}
	}
	if buf.Len() == 0 {
		return "", &GenerationError{Provider: "claude", Model: s.model, Err: ErrEmptyResponse}
	}

	s.logger.Debug().
		Str("model", s.model).
		Int("bytes", buf.Len()).
		Msg("Claude stream completed")

	return buf.String(), nil
}

// Model returns the configured model identifier
func (s *ClaudeService) Model() string {
	return s.model
}

// Close is a no-op; the HTTP client has no resources to release
func (s *ClaudeService) Close() error {
	return nil
}
