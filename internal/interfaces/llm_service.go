package interfaces

import (
	"context"

	"github.com/ternarybob/playforge/internal/models"
)

// Generator produces the raw model output for one prompt.
//
// Generate makes exactly one streaming call, concatenates every chunk and
// returns only when the upstream stream ends. It never retries; a failed call
// or an empty accumulation is returned as an error.
type Generator interface {
	Generate(ctx context.Context, mode models.Mode, prompt string) (string, error)

	// Model returns the upstream model identifier used for generation
	Model() string

	// Close releases provider resources
	Close() error
}
