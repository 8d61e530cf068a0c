// Package providers defines the unified AI backend interface, the HTTP
// adapters implementing it, and the registry that holds the configured
// backend set with its capability metadata and fallback chain.
package providers

import (
	"context"
	"time"
)

// ID identifies one of the configured AI backends
type ID string

const (
	OpenAI     ID = "openai"
	Anthropic  ID = "anthropic"
	Gemini     ID = "gemini"
	Perplexity ID = "perplexity"
	Grok       ID = "grok"
)

// String implements fmt.Stringer for log fields
func (id ID) String() string {
	return string(id)
}

// Provider is the single capability every backend exposes. The router and
// orchestrator depend only on this interface; new backends are added by
// registering an implementation, never by extending a switch statement.
type Provider interface {
	// ID returns the backend identity
	ID() ID

	// Name returns the human-readable display name
	Name() string

	// Complete performs a completion request
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// IsAvailable reports whether the backend credential is configured
	IsAvailable() bool

	// CostPer1KTokens returns the uniform USD cost per thousand tokens
	CostPer1KTokens() float64
}

// Message represents a single message in a conversation
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest represents a unified completion request
type CompletionRequest struct {
	// Prompt is the user text. When Messages is non-empty it takes
	// precedence and Prompt is ignored.
	Prompt string

	// System is an optional system instruction
	System string

	// Messages is the full conversation, newest last
	Messages []Message

	// MaxTokens limits the response length (0 means provider default)
	MaxTokens int

	// Temperature controls randomness
	Temperature float64
}

// CompletionResponse represents a unified completion response
type CompletionResponse struct {
	// Text is the completion content
	Text string

	// PromptTokens and CompletionTokens are the billed token counts
	PromptTokens     int
	CompletionTokens int

	// TokensUsed is the billed total
	TokensUsed int

	// Provider that produced the response
	Provider ID

	// Latency of the backend call
	Latency time.Duration
}

// CostUSD returns the billed cost of a response at the given per-1K rate
func (r *CompletionResponse) CostUSD(per1K float64) float64 {
	return float64(r.TokensUsed) / 1000.0 * per1K
}

// ProviderError represents an error from a backend call
type ProviderError struct {
	// Provider that generated the error
	Provider ID

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider ID, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Retryable
	}
	return false
}
