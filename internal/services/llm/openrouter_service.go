package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

// OpenRouterService streams chat completions from OpenRouter's OpenAI-compatible API
type OpenRouterService struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	logger      arbor.ILogger
}

// NewOpenRouterService creates an OpenRouter-backed generator
func NewOpenRouterService(cfg *common.OpenRouterConfig, gen *common.GenerationConfig, logger arbor.ILogger) (*OpenRouterService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required (set OPENROUTER_API_KEY or openrouter.api_key)")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}

	logger.Debug().
		Str("model", cfg.Model).
		Str("base_url", cfg.BaseURL).
		Float64("temperature", gen.Temperature).
		Msg("OpenRouter generator initialized")

	return &OpenRouterService{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: gen.Temperature,
		maxTokens:   gen.MaxTokens,
		logger:      logger,
	}, nil
}

// Generate streams one completion and returns the concatenated content
func (s *OpenRouterService) Generate(ctx context.Context, mode models.Mode, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(mode)),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(s.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}
	if s.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.maxTokens))
	}

	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var buf strings.Builder
	chunks := 0
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			buf.WriteString(chunk.Choices[0].Delta.Content)
		}
		chunks++
	}
	if err := stream.Err(); err != nil {
		return "", &GenerationError{Provider: "openrouter", Model: s.model, Err: err}
	}
	if buf.Len() == 0 {
		return "", &GenerationError{Provider: "openrouter", Model: s.model, Err: ErrEmptyResponse}
	}

	s.logger.Debug().
		Str("model", s.model).
		Int("chunks", chunks).
		Int("bytes", buf.Len()).
		Msg("OpenRouter stream completed")

	return buf.String(), nil
}

// Model returns the configured model identifier
func (s *OpenRouterService) Model() string {
	return s.model
}

// Close is a no-op; the HTTP client has no resources to release
func (s *OpenRouterService) Close() error {
	return nil
}
