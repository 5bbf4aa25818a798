// Package llm defines the vendor-neutral interface between the
// orchestration core and whatever language-model backend drives it.
// Concrete providers live outside this repository; the pipeline only
// ever sees [Client].
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client is the capability the conversation engine consumes. A provider
// adapter translates these calls into its own wire format.
type Client interface {
	// Generate sends one chat-completion request. The system prompt is
	// carried separately from the alternating message transcript. tools
	// may be nil to force a plain text response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single generation request.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSchema
	Model       string
	MaxTokens   int
	Temperature float64
}

// Response is the unified result of a generation call. Wire-format
// conversion happens inside provider adapters, never here.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// ToolSchema describes one callable tool to the model, in the
// JSON-schema shape every current provider understands.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TransportError wraps a failure of the generation call itself —
// network, auth, rate limit. It is the only error class that unwinds a
// conversation loop; everything else is folded into guidance.
type TransportError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("llm transport: %v", e.Err)
	}
	return fmt.Sprintf("llm transport (%s): %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
