package llm

import (
	"context"
	"fmt"
)

// Image is an optional binary payload attached to a completion request,
// e.g. a wireframe screenshot the task refers to.
type Image struct {
	Data   []byte `json:"data"`
	Format string `json:"format"` // png, jpeg, ...
}

// Request is a single completion request against the AI collaborator.
type Request struct {
	System      string
	Prompt      string
	Model       string // overrides the connector default when set
	MaxTokens   int
	Temperature float64
	Image       *Image
}

// Response carries the completion text plus the finish-reason-derived
// truncation flag. Callers must surface Truncated as a warning: the tail of
// the response may be cut mid-file.
type Response struct {
	Text      string
	Truncated bool
}

// Client is the boundary to the AI completion collaborator. Implementations
// are expected to be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ExternalServiceError marks a collaborator-boundary failure (completion
// service or source-control host). It is surfaced to the user with a retry
// suggestion and never corrupts conversation state.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
