// Package bedrock adapts AWS Bedrock's Converse API to
// modelrouter.Client.
package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/contractforge/forge/pkg/modelrouter"
)

// Client wraps bedrockruntime.Client for generation requests that
// target a Claude model hosted on Bedrock.
type Client struct {
	runtime *bedrockruntime.Client
}

// New builds a Client using the default AWS config chain (environment,
// shared config file, EC2/ECS role) scoped to region.
func New(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &Client{runtime: bedrockruntime.NewFromConfig(cfg)}, nil
}

// GenerateResponse implements modelrouter.Client.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *modelrouter.Options) (*modelrouter.Response, error) {
	messages := []types.Message{
		{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		},
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(options.Model),
		Messages: messages,
	}

	if options.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: options.SystemPrompt}}
	}

	inference := &types.InferenceConfiguration{}
	configured := false
	if options.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(options.MaxTokens))
		configured = true
	}
	if options.Temperature > 0 {
		inference.Temperature = aws.Float32(options.Temperature)
		configured = true
	}
	if configured {
		input.InferenceConfig = inference
	}

	start := time.Now()
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	_ = start

	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected output type")
	}

	var content string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			content += text.Value
		}
	}
	if content == "" {
		return nil, fmt.Errorf("bedrock: empty response content")
	}

	resp := &modelrouter.Response{Content: content, Model: options.Model}
	if output.Usage != nil {
		resp.Usage = modelrouter.TokenUsage{
			PromptTokens:     int(*output.Usage.InputTokens),
			CompletionTokens: int(*output.Usage.OutputTokens),
			TotalTokens:      int(*output.Usage.TotalTokens),
		}
	}
	return resp, nil
}
