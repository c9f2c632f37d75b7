package corelog

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductionLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})

	l.Info("stage completed", map[string]interface{}{"stage": "compilation", "attempt": 2})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "stage completed", entry["message"])
	require.Equal(t, "compilation", entry["stage"])
	require.EqualValues(t, 2, entry["attempt"])
}

func TestProductionLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text", Output: &buf})

	l.Debug("should not appear", nil)
	l.Info("should not appear either", nil)
	l.Warn("should appear", nil)

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}

func TestWithComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "text", Output: &buf})
	scoped := l.WithComponent("orchestrator")

	scoped.Info("hello", nil)
	require.True(t, strings.Contains(buf.String(), "[orchestrator]"))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "wf-123")
	require.Equal(t, "wf-123", RequestIDFromContext(ctx))
	require.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestNoOpDoesNotPanic(t *testing.T) {
	var l Logger = NoOp{}
	l.Info("x", nil)
	l.WarnContext(context.Background(), "x", nil)
}
