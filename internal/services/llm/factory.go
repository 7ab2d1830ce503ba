// Package llm wraps the streaming generation providers behind interfaces.Generator.
package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/interfaces"
)

// NewGenerator creates the generator selected by generation.provider
func NewGenerator(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (interfaces.Generator, error) {
	logger.Info().Str("provider", string(cfg.Generation.Provider)).Msg("Initializing generator")

	var (
		generator interfaces.Generator
		err       error
	)

	switch cfg.Generation.Provider {
	case common.LLMProviderOpenRouter, "":
		generator, err = NewOpenRouterService(&cfg.OpenRouter, &cfg.Generation, logger)
	case common.LLMProviderGemini:
		generator, err = NewGeminiService(ctx, &cfg.Gemini, &cfg.Generation, logger)
	case common.LLMProviderClaude:
		generator, err = NewClaudeService(&cfg.Claude, &cfg.Generation, logger)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Generation.Provider)
	}
	if err != nil {
		return nil, err
	}

	return generator, nil
}
