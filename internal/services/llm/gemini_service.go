package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

// GeminiService streams content from the Google Gemini API
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	logger      arbor.ILogger
}

// NewGeminiService creates a Gemini-backed generator
func NewGeminiService(ctx context.Context, cfg *common.GeminiConfig, gen *common.GenerationConfig, logger arbor.ILogger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Debug().
		Str("model", cfg.Model).
		Float64("temperature", gen.Temperature).
		Msg("Gemini generator initialized")

	return &GeminiService{
		client:      client,
		model:       cfg.Model,
		temperature: float32(gen.Temperature),
		maxTokens:   int32(gen.MaxTokens),
		logger:      logger,
	}, nil
}

// Generate streams one response and returns the concatenated text
func (s *GeminiService) Generate(ctx context.Context, mode models.Mode, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(s.temperature),
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(SystemPrompt(mode), genai.RoleUser),
	}
	if s.maxTokens > 0 {
		config.MaxOutputTokens = s.maxTokens
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	var buf strings.Builder
	chunks := 0
	for resp, err := range s.client.Models.GenerateContentStream(ctx, s.model, contents, config) {
		if err != nil {
			return "", &GenerationError{Provider: "gemini", Model: s.model, Err: err}
		}
		buf.WriteString(resp.Text())
		chunks++
	}
	if buf.Len() == 0 {
		return "", &GenerationError{Provider: "gemini", Model: s.model, Err: ErrEmptyResponse}
	}

	s.logger.Debug().
		Str("model", s.model).
		Int("chunks", chunks).
		Int("bytes", buf.Len()).
		Msg("Gemini stream completed")

	return buf.String(), nil
}

// Model returns the configured model identifier
func (s *GeminiService) Model() string {
	return s.model
}

// Close is a no-op; genai clients hold no long-lived connections
func (s *GeminiService) Close() error {
	return nil
}
