package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/ternarybob/playforge/internal/services/document"
	"github.com/ternarybob/playforge/internal/services/llm"
	"github.com/ternarybob/playforge/internal/services/parser"
)

// outcome is what the pipeline goroutine reports back to the actor
type outcome struct {
	jobID    string
	result   models.GenerationResult
	parsed   parser.Outcome
	document string
	elapsed  time.Duration
	err      error
}

// runPipeline generates, parses and assembles one job. It never touches scheduler state.
func runPipeline(ctx context.Context, generator interfaces.Generator, job models.Job) outcome {
	start := time.Now()
	out := outcome{jobID: job.ID}

	raw, err := generator.Generate(ctx, job.Mode, job.Prompt)
	if err != nil {
		out.err = err
		out.elapsed = time.Since(start)
		return out
	}

	result, parsed, err := parser.Parse(raw)
	out.parsed = parsed
	if err != nil {
		out.err = err
		out.elapsed = time.Since(start)
		return out
	}

	out.result = result
	out.document = document.Assemble(result)
	out.elapsed = time.Since(start)
	return out
}

// errorType classifies a failure for narration
func (o outcome) errorType() string {
	var genErr *llm.GenerationError
	var parseErr *parser.ParseError

	switch {
	case errors.As(o.err, &parseErr):
		return "ParseError"
	case errors.Is(o.err, context.Canceled), errors.Is(o.err, context.DeadlineExceeded):
		return "Cancelled"
	case errors.As(o.err, &genErr):
		return "GenerationError"
	default:
		return "Error"
	}
}

// message is the error text shown to observers
func (o outcome) message() string {
	var genErr *llm.GenerationError
	if errors.As(o.err, &genErr) {
		return genErr.Message()
	}
	if o.err != nil {
		return o.err.Error()
	}
	return ""
}
