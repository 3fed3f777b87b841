package answer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when request validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVectorStore is returned when the vector search backend is unavailable.
	ErrVectorStore = errors.New("vector store unavailable")
	// ErrEmbedding is returned when the embedding provider call fails.
	ErrEmbedding = errors.New("embedding provider error")
	// ErrGeneration is returned when the answer generator call fails.
	ErrGeneration = errors.New("generator error")
)

// ValidationError reports which request field failed validation. It unwraps
// to ErrInvalidInput so handlers can map it without inspecting the message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
