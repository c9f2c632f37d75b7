// Package mock provides a deterministic modelrouter.Client for tests
// and local development without network access.
package mock

import (
	"context"
	"fmt"

	"github.com/contractforge/forge/pkg/modelrouter"
)

// Client echoes a canned response, optionally failing a fixed number
// of times before succeeding, to exercise Router's rotation path.
type Client struct {
	Response    string
	FailTimes   int
	callCount   int
}

// GenerateResponse implements modelrouter.Client.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *modelrouter.Options) (*modelrouter.Response, error) {
	c.callCount++
	if c.callCount <= c.FailTimes {
		return nil, fmt.Errorf("mock: simulated failure %d/%d", c.callCount, c.FailTimes)
	}

	content := c.Response
	if content == "" {
		content = prompt
	}
	return &modelrouter.Response{
		Content: content,
		Model:   options.Model,
		Usage:   modelrouter.TokenUsage{PromptTokens: len(prompt) / 4, CompletionTokens: len(content) / 4, TotalTokens: (len(prompt) + len(content)) / 4},
	}, nil
}
