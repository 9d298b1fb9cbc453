package analyzer

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the provider did not answer within the configured timeout.
	ErrTimeout = errors.New("ai provider timed out")
	// ErrUnparseable means no repair could turn the answer into a schema.
	ErrUnparseable = errors.New("ai response could not be parsed into a schema")
)

// ProviderError is a non-success answer from the AI provider.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ai provider error (%d): %s", e.Status, e.Message)
	}
	return "ai provider error: " + e.Message
}
