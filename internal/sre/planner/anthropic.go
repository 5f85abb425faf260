package planner

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is a Planner backed directly by anthropic-sdk-go, with no
// tool-calling, no multi-turn state, and no vendor-agnostic request/response
// conversion layer — the orchestration loop owns the prompt text and the
// schema; this client's only job is to get one JSON object back.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
	maxTok int64
}

// NewAnthropicClient builds a client for model using apiKey.
func NewAnthropicClient(apiKey string, model anthropic.Model, maxTokens int64) *AnthropicClient {
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		maxTok: maxTokens,
	}
}

// GenerateJSON sends prompt as a single user message and extracts the
// outermost JSON object from the reply's text content.
func (c *AnthropicClient) GenerateJSON(ctx context.Context, prompt string, temperature float64) (map[string]any, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTok,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("planner: anthropic request: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("planner: anthropic response had no text content")
	}

	return ExtractJSONObject(text)
}
