package modelrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type echoClient struct{}

func (echoClient) GenerateResponse(ctx context.Context, prompt string, options *Options) (*Response, error) {
	return &Response{Content: prompt, Model: options.Model}, nil
}

func TestClientInterfaceIsSatisfiedByEcho(t *testing.T) {
	var c Client = echoClient{}
	resp, err := c.GenerateResponse(context.Background(), "hi", &Options{Model: "test-model"})
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Content)
	require.Equal(t, "test-model", resp.Model)
}
