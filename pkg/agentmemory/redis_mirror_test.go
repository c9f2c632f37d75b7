package agentmemory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisMirrorPublishesStatisticsUnderNamespace(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	mirror, err := NewRedisMirror("redis://"+server.Addr(), "forge-test")
	require.NoError(t, err)
	defer mirror.Close()

	err = mirror.Publish(context.Background(), Statistics{TotalEntries: 5, SuccessRate: 0.8})
	require.NoError(t, err)

	require.True(t, server.Exists("forge-test:agent_memory:statistics"))
}
