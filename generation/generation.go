// Package generation defines the contract with the text generation
// collaborator. The service is opaque and fallible: callers must treat
// every failure as recoverable and fall back to deterministic text.
package generation

import (
	"context"

	"github.com/recallhq/recall-go-sdk/core"
)

// Message is a role-tagged input line for a generation call.
type Message struct {
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

// Service produces text from a list of role-tagged messages.
//
// Implementations:
//   - anthropic.Client: Claude-backed (production)
//   - test stubs: scripted responses
type Service interface {
	// Generate returns the model's text response. A transport failure
	// or an empty response is reported as an error; it is never fatal
	// to the caller.
	Generate(ctx context.Context, model string, msgs []Message) (string, error)
}
