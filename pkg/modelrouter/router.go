package modelrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/contractforge/forge/internal/corelog"
	"github.com/contractforge/forge/internal/obs"
)

// ClientFactory builds the Client for a given provider name. Router
// dispatches to whichever factory matches the catalogue entry chosen by
// Select, the same provider-keyed registry pattern used for AI clients
// elsewhere in the framework.
type ClientFactory func(model ModelEntry) (Client, error)

// RouterConfig configures a Router.
type RouterConfig struct {
	Catalog   *Catalog
	Tracker   *Tracker
	Factories map[string]ClientFactory // keyed by ModelEntry.Provider
	Logger    corelog.Logger
}

// Router selects a model for each request, dispatches the call through
// the matching provider Client, and feeds the outcome back into the
// Tracker so future selections rotate away from failing models.
type Router struct {
	catalog   *Catalog
	tracker   *Tracker
	factories map[string]ClientFactory
	logger    corelog.Logger
}

// NewRouter builds a Router from cfg. A nil Logger falls back to a
// no-op logger.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("modelrouter: catalog is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("modelrouter: tracker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = corelog.NoOp{}
	}
	if ca, ok := logger.(corelog.ComponentAware); ok {
		logger = ca.WithComponent("modelrouter")
	}
	return &Router{
		catalog:   cfg.Catalog,
		tracker:   cfg.Tracker,
		factories: cfg.Factories,
		logger:    logger,
	}, nil
}

// Generate selects a model for req, invokes the matching provider
// client, and records success/failure for rotation purposes. On
// failure it moves on to the next-ranked eligible model, trying each
// candidate in turn before giving up, matching the "rotate away from a tripped model"
// behavior described for stage retries elsewhere in the pipeline.
func (r *Router) Generate(ctx context.Context, prompt string, req SelectionRequest) (*Response, error) {
	candidates := r.rankedCandidates(req)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("modelrouter: no enabled model satisfies request")
	}

	var lastErr error
	for i, model := range candidates {
		client, err := r.clientFor(model)
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		ctx, span := obs.StartSpan(ctx, "modelrouter.generate")
		resp, err := client.GenerateResponse(ctx, prompt, &Options{
			Model:        model.Name,
			MaxTokens:    req.EstimatedOutputTokens,
			SystemPrompt: req.TaskType,
		})
		span.End()
		elapsedMs := float64(time.Since(start).Milliseconds())

		if err != nil {
			lastErr = fmt.Errorf("modelrouter: %s: %w", model.Name, err)
			_ = r.tracker.RecordFailure(model.Name, req.EstimatedInputTokens)
			obs.Counter(ctx, "modelrouter.generate.failure", "model", model.Name)
			r.logger.Warn("model call failed, rotating", map[string]interface{}{
				"model":   model.Name,
				"attempt": i + 1,
				"error":   err.Error(),
			})
			continue
		}

		_ = r.tracker.RecordSuccess(model.Name, resp.Usage.TotalTokens, elapsedMs)
		obs.Counter(ctx, "modelrouter.generate.success", "model", model.Name)
		obs.Histogram(ctx, "modelrouter.generate.latency_ms", elapsedMs, "model", model.Name)
		return resp, nil
	}

	return nil, fmt.Errorf("modelrouter: all candidates exhausted: %w", lastErr)
}

// rankedCandidates narrows the catalogue to req's capacity window, then
// orders by performance score, falling back to Select's single best
// guess if capacity filtering leaves nothing.
func (r *Router) rankedCandidates(req SelectionRequest) []ModelEntry {
	var inWindow []ModelEntry
	for _, e := range r.catalog.All() {
		if !e.Enabled {
			continue
		}
		if e.MaxInputTokens < req.EstimatedInputTokens || e.MaxOutputTokens < req.EstimatedOutputTokens {
			continue
		}
		inWindow = append(inWindow, e)
	}
	if len(inWindow) == 0 {
		if res, ok := r.catalog.Select(req); ok {
			return []ModelEntry{res.Model}
		}
		return nil
	}
	return r.tracker.Rank(inWindow)
}

func (r *Router) clientFor(model ModelEntry) (Client, error) {
	factory, ok := r.factories[model.Provider]
	if !ok {
		return nil, fmt.Errorf("modelrouter: no client factory registered for provider %q", model.Provider)
	}
	return factory(model)
}
