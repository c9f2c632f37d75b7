// Package openai adapts any OpenAI-chat-completions-compatible HTTP API
// (OpenAI itself, or a compatible gateway) to modelrouter.Client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/contractforge/forge/pkg/modelrouter"
)

// Client is a minimal chat-completions client. It deliberately avoids a
// vendor SDK since the OpenAI-compatible surface (used by several
// self-hosted gateways) is a single JSON-over-HTTP endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New builds a Client. An empty baseURL defaults to the public OpenAI
// API.
func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateResponse implements modelrouter.Client. Transient HTTP
// failures (5xx, connection errors) are retried with exponential
// backoff; 4xx errors are returned immediately.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *modelrouter.Options) (*modelrouter.Response, error) {
	messages := []chatMessage{}
	if options.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: options.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:       options.Model,
		Messages:    messages,
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	operation := func() (*chatResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("openai: build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("openai: send request: %w", err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("openai: read response: %w", err)
		}

		if httpResp.StatusCode >= 500 {
			return nil, fmt.Errorf("openai: server error %d: %s", httpResp.StatusCode, body)
		}

		var decoded chatResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("openai: decode response: %w", err))
		}
		if httpResp.StatusCode != http.StatusOK {
			msg := "unknown error"
			if decoded.Error != nil {
				msg = decoded.Error.Message
			}
			return nil, backoff.Permanent(fmt.Errorf("openai: request failed (%d): %s", httpResp.StatusCode, msg))
		}
		return &decoded, nil
	}

	decoded, err := backoff.Retry(ctx, operation, backoff.WithMaxTries(3))
	if err != nil {
		return nil, err
	}

	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	return &modelrouter.Response{
		Content: decoded.Choices[0].Message.Content,
		Model:   options.Model,
		Usage: modelrouter.TokenUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}, nil
}
