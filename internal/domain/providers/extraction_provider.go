package providers

import (
	"context"
	"errors"
)

// ErrLLMUnauthorized is returned when the LLM API rejects the credentials
var ErrLLMUnauthorized = errors.New("llm provider rejected credentials")

// PDFTextExtractor turns PDF bytes into plain text. An empty string means nothing was found.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// ResponseFormat selects the completion output mode
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = "text"
	ResponseFormatJSON ResponseFormat = "json_object"
)

// CompletionRequest is a single chat completion call
type CompletionRequest struct {
	Model          string
	SystemPrompt   string
	UserPrompt     string
	Temperature    float64
	MaxTokens      int
	ResponseFormat ResponseFormat
}

// LLMProvider is the hosted completion API. Replies come back with any
// markdown code fence already removed.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
