// Package corelog provides the structured logging interface shared by every
// component of the pipeline. It follows the layered-observability shape used
// throughout the rest of the codebase: a small interface, a production
// implementation over encoding/json, and a no-op for tests.
package corelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal logging interface consumed by every package in this
// module. Structured fields are passed as a map rather than variadic
// key-value pairs so call sites read the same whether they log one field or
// ten.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAware loggers can scope themselves to a named component, so a
// single process can attribute log lines to "orchestrator", "modelrouter",
// "artifactstore", and so on without threading a prefix through every call.
type ComponentAware interface {
	Logger
	WithComponent(component string) Logger
}

// Config controls the ProductionLogger's behavior.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
	Output io.Writer
}

// ProductionLogger is the default Logger: one structured line per event,
// JSON or human-readable depending on Format, with optional component
// attribution for filtering (`component=orchestrator`).
type ProductionLogger struct {
	mu        sync.Mutex
	level     string
	format    string
	output    io.Writer
	component string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// New creates a ProductionLogger from Config, defaulting to info/text/stdout.
func New(cfg Config) *ProductionLogger {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if _, ok := levelRank[level]; !ok {
		level = "info"
	}
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	return &ProductionLogger{level: level, format: format, output: output}
}

// WithComponent returns a logger that tags every line with component.
func (p *ProductionLogger) WithComponent(component string) Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &ProductionLogger{
		level:     p.level,
		format:    p.format,
		output:    p.output,
		component: component,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.emit("info", msg, fields, nil)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.emit("warn", msg, fields, nil)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.emit("error", msg, fields, nil)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.emit("debug", msg, fields, nil)
}

func (p *ProductionLogger) InfoContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.emit("info", msg, fields, ctx)
}
func (p *ProductionLogger) WarnContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.emit("warn", msg, fields, ctx)
}
func (p *ProductionLogger) ErrorContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.emit("error", msg, fields, ctx)
}
func (p *ProductionLogger) DebugContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.emit("debug", msg, fields, ctx)
}

func (p *ProductionLogger) emit(level, msg string, fields map[string]interface{}, ctx context.Context) {
	if levelRank[level] < levelRank[p.level] {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ts := time.Now().UTC().Format(time.RFC3339Nano)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"message":   msg,
		}
		if p.component != "" {
			entry["component"] = p.component
		}
		if reqID := RequestIDFromContext(ctx); reqID != "" {
			entry["request_id"] = reqID
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var b strings.Builder
	b.WriteString(ts)
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(level))
	b.WriteString("]")
	if p.component != "" {
		fmt.Fprintf(&b, " [%s]", p.component)
	}
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		fmt.Fprintf(&b, " [req=%s]", reqID)
	}
	fmt.Fprintf(&b, " %s", msg)
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintln(p.output, b.String())
}

type requestIDKey struct{}

// WithRequestID attaches a request/workflow ID to ctx so every log line and
// span emitted underneath it can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the ID attached by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// NoOp is a Logger that discards everything; useful in tests.
type NoOp struct{}

func (NoOp) Info(string, map[string]interface{})                                   {}
func (NoOp) Warn(string, map[string]interface{})                                   {}
func (NoOp) Error(string, map[string]interface{})                                  {}
func (NoOp) Debug(string, map[string]interface{})                                  {}
func (NoOp) InfoContext(context.Context, string, map[string]interface{})           {}
func (NoOp) WarnContext(context.Context, string, map[string]interface{})           {}
func (NoOp) ErrorContext(context.Context, string, map[string]interface{})          {}
func (NoOp) DebugContext(context.Context, string, map[string]interface{})          {}
func (NoOp) WithComponent(component string) Logger                                 { return NoOp{} }

var _ ComponentAware = (*ProductionLogger)(nil)
var _ ComponentAware = NoOp{}
