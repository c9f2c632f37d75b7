// Package anthropic adapts the Anthropic Messages API to
// modelrouter.Client.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/contractforge/forge/pkg/modelrouter"
)

// Client wraps the official Anthropic SDK client.
type Client struct {
	sdk *anthropic.Client
}

// New builds a Client authenticated with apiKey.
func New(apiKey string) *Client {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{sdk: &c}
}

// GenerateResponse implements modelrouter.Client.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *modelrouter.Options) (*modelrouter.Response, error) {
	maxTokens := int64(options.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if options.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: options.SystemPrompt}}
	}
	if options.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(options.Temperature))
	}

	message, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var content string
	for _, block := range message.Content {
		if text := block.Text; text != "" {
			content += text
		}
	}
	if content == "" {
		return nil, fmt.Errorf("anthropic: empty response content")
	}

	return &modelrouter.Response{
		Content: content,
		Model:   options.Model,
		Usage: modelrouter.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}
