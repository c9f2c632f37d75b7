package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/contractforge/forge/internal/atomicfile"
	"github.com/contractforge/forge/internal/corelog"
	"github.com/contractforge/forge/internal/workflowcontext"
)

// WebhookTimeout bounds the escalation webhook POST; failure is swallowed
// so a flaky notification endpoint never blocks the workflow.
const WebhookTimeout = 5 * time.Second

// promptTruncateChars matches the 200-character cap on webhook payloads.
const promptTruncateChars = 200

// Escalation is the on-disk and webhook payload written when a stage
// exhausts its retries.
type Escalation struct {
	WorkflowID      string    `json:"workflow_id"`
	Stage           workflowcontext.StageName `json:"stage"`
	Error           string    `json:"error"`
	RetryCount      int       `json:"retry_count"`
	DiagnosticPath  string    `json:"diagnostic_path,omitempty"`
	TruncatedPrompt string    `json:"truncated_prompt"`
	Timestamp       time.Time `json:"timestamp"`
}

// Escalator writes escalation records to disk and, if configured,
// best-effort POSTs them to a webhook.
type Escalator struct {
	EscalationsDir string
	WebhookURL     string
	HTTPClient     *http.Client
	Logger         corelog.Logger
}

// NewEscalator builds an Escalator rooted at escalationsDir
// (<workspace>/logs/escalations). webhookURL may be empty to disable the
// notification.
func NewEscalator(escalationsDir, webhookURL string, logger corelog.Logger) *Escalator {
	if logger == nil {
		logger = corelog.NoOp{}
	}
	return &Escalator{
		EscalationsDir: escalationsDir,
		WebhookURL:     webhookURL,
		HTTPClient: &http.Client{
			Timeout:   WebhookTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: logger,
	}
}

// Escalate writes the escalation JSON file and, if a webhook is configured,
// POSTs the same payload with a 5-second timeout. Webhook failures are
// logged and swallowed — escalation always succeeds once the file is
// written.
func (e *Escalator) Escalate(ctx context.Context, workflowID string, stage workflowcontext.StageName, errMessage string, retryCount int, diagnosticPath, prompt string) error {
	esc := Escalation{
		WorkflowID:      workflowID,
		Stage:           stage,
		Error:           errMessage,
		RetryCount:      retryCount,
		DiagnosticPath:  diagnosticPath,
		TruncatedPrompt: truncatePrompt(prompt),
		Timestamp:       time.Now().UTC(),
	}

	data, err := json.MarshalIndent(esc, "", "  ")
	if err != nil {
		return fmt.Errorf("guardrails: marshal escalation: %w", err)
	}

	filename := fmt.Sprintf("escalation_%s.json", esc.Timestamp.Format("20060102T150405.000000000Z"))
	path := filepath.Join(e.EscalationsDir, filename)
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("guardrails: write escalation log: %w", err)
	}

	if e.WebhookURL != "" {
		e.postWebhook(ctx, data)
	}
	return nil
}

func (e *Escalator) postWebhook(ctx context.Context, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, WebhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		e.Logger.Warn("escalation webhook request build failed", map[string]interface{}{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.Logger.Warn("escalation webhook post failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		e.Logger.Warn("escalation webhook returned non-2xx", map[string]interface{}{"status": resp.StatusCode})
	}
}

func truncatePrompt(prompt string) string {
	if len(prompt) <= promptTruncateChars {
		return prompt
	}
	return strings.TrimSpace(prompt[:promptTruncateChars]) + "..."
}
