// Package modelrouter selects an LLM provider/model for a request, tracks
// per-model performance, and rotates rotation away from models that keep
// failing. It deliberately mirrors the shape of core.AIClient from the
// broader framework so any of the provider adapters under
// modelrouter/providers/ can be swapped in behind the same interface.
package modelrouter

import "context"

// Options configures a single generation request.
type Options struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// Response is a single generation result.
type Response struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// TokenUsage reports token accounting for a single call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the interface every provider adapter implements.
type Client interface {
	GenerateResponse(ctx context.Context, prompt string, options *Options) (*Response, error)
}
