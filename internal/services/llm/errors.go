package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a stream finishes without any content
var ErrEmptyResponse = errors.New("model returned no content")

// GenerationError wraps a failed upstream generation call
type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation with %s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Message returns the upstream message without provider decoration, for observers
func (e *GenerationError) Message() string {
	if e.Err == nil {
		return "Failed to generate code"
	}
	return e.Err.Error()
}
