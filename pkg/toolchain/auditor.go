package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/contractforge/forge/internal/corelog"
)

// SlitherAuditor runs Slither's static analyzer against a source file and
// maps its impact levels onto the bridge layer's closed Severity set.
type SlitherAuditor struct {
	Logger corelog.Logger
}

// NewSlitherAuditor builds a SlitherAuditor.
func NewSlitherAuditor(logger corelog.Logger) *SlitherAuditor {
	if logger == nil {
		logger = corelog.NoOp{}
	}
	return &SlitherAuditor{Logger: logger}
}

type slitherReport struct {
	Results struct {
		Detectors []struct {
			Check       string `json:"check"`
			Impact      string `json:"impact"`
			Description string `json:"description"`
			Elements    []struct {
				SourceMapping struct {
					Lines []int `json:"lines"`
				} `json:"source_mapping"`
			} `json:"elements"`
		} `json:"detectors"`
	} `json:"results"`
}

var slitherImpactToSeverity = map[string]Severity{
	"High":           SeverityHigh,
	"Medium":         SeverityMedium,
	"Low":            SeverityLow,
	"Informational":  SeverityNone,
	"Optimization":   SeverityNone,
}

// Audit writes source to a temp file and runs `slither --json -`, reading
// findings back from stdout. Slither exits non-zero whenever it finds
// anything, so a non-nil process error is not itself a bridge failure —
// only a failure to parse its JSON output is.
func (a *SlitherAuditor) Audit(ctx context.Context, source string) (AuditResult, error) {
	tmp, err := os.CreateTemp("", "forge-audit-*.sol")
	if err != nil {
		return AuditResult{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(source); err != nil {
		tmp.Close()
		return AuditResult{}, err
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, "slither", tmp.Name(), "--json", "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	_ = cmd.Run() // non-zero exit is expected when findings exist

	var report slitherReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return AuditResult{}, err
	}

	result := AuditResult{Severity: SeverityNone}
	for _, d := range report.Results.Detectors {
		severity, ok := slitherImpactToSeverity[d.Impact]
		if !ok {
			severity = SeverityLow
		}
		line := 0
		if len(d.Elements) > 0 && len(d.Elements[0].SourceMapping.Lines) > 0 {
			line = d.Elements[0].SourceMapping.Lines[0]
		}
		result.Findings = append(result.Findings, Finding{
			Severity:    severity,
			Title:       d.Check,
			Description: d.Description,
			Line:        line,
		})
		if severityRank(severity) > severityRank(result.Severity) {
			result.Severity = severity
		}
	}
	return result, nil
}

var severityOrder = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func severityRank(s Severity) int { return severityOrder[s] }
