// Package anthropic implements generation.Service on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
)

// DefaultModel is used when a caller passes an empty model name.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 1024

// Client wraps the Anthropic SDK client.
type Client struct {
	api       *anthropic.Client
	maxTokens int64
}

// Option configures the client.
type Option func(*Client)

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// New creates a generation client authenticated with the given API key.
func New(apiKey string, opts ...Option) *Client {
	api := anthropic.NewClient(option.WithAPIKey(apiKey))
	c := &Client{
		api:       &api,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends the role-tagged messages to the model and returns the
// concatenated text blocks of the response.
func (c *Client) Generate(ctx context.Context, model string, msgs []generation.Message) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case core.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: c.maxTokens,
		Messages:  turns,
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", &core.GenerationError{Reason: "response contained no text blocks"}
	}
	return text, nil
}
