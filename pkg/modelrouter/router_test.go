package modelrouter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubClient struct {
	fail bool
}

func (s *stubClient) GenerateResponse(ctx context.Context, prompt string, options *Options) (*Response, error) {
	if s.fail {
		return nil, errors.New("stub failure")
	}
	return &Response{Content: "ok", Model: options.Model}, nil
}

func newTestRouter(t *testing.T, factories map[string]ClientFactory) *Router {
	t.Helper()
	catalog := testCatalog()
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "tracker.json"))
	require.NoError(t, err)

	router, err := NewRouter(RouterConfig{Catalog: catalog, Tracker: tracker, Factories: factories})
	require.NoError(t, err)
	return router
}

func TestRouterGenerateSucceedsOnFirstCandidate(t *testing.T) {
	router := newTestRouter(t, map[string]ClientFactory{
		"anthropic": func(model ModelEntry) (Client, error) { return &stubClient{}, nil },
	})

	resp, err := router.Generate(context.Background(), "hello", SelectionRequest{EstimatedInputTokens: 100, EstimatedOutputTokens: 100, PreferCheap: true})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
}

func TestRouterGenerateRotatesAwayFromFailingModel(t *testing.T) {
	calls := 0
	router := newTestRouter(t, map[string]ClientFactory{
		"anthropic": func(model ModelEntry) (Client, error) {
			calls++
			if model.Name == "claude-haiku" {
				return &stubClient{fail: true}, nil
			}
			return &stubClient{}, nil
		},
	})

	resp, err := router.Generate(context.Background(), "hello", SelectionRequest{EstimatedInputTokens: 100, EstimatedOutputTokens: 100, PreferCheap: true})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.GreaterOrEqual(t, calls, 2)
}

func TestRouterGenerateErrorsWhenNoFactoryRegistered(t *testing.T) {
	router := newTestRouter(t, map[string]ClientFactory{})

	_, err := router.Generate(context.Background(), "hello", SelectionRequest{EstimatedInputTokens: 100, EstimatedOutputTokens: 100})
	require.Error(t, err)
}
