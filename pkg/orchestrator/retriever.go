package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/contractforge/forge/pkg/artifactstore"
)

// defaultRetrievalMatches bounds how many reference artifacts Retrieve
// folds into RAG context, keeping the generation prompt from growing
// unbounded as a registry accumulates entries.
const defaultRetrievalMatches = 3

// ArtifactRetriever implements RAGRetriever against the Dual-Scope
// Artifact Store's registries. Scope controls which registries are ever
// consulted: RAGScopeOfficialOnly never reads the community registry,
// so a community-registered candidate can't leak into an official-only
// workflow no matter how well it matches the prompt.
type ArtifactRetriever struct {
	Store      *artifactstore.Store
	MaxMatches int
}

// NewArtifactRetriever builds an ArtifactRetriever over store.
func NewArtifactRetriever(store *artifactstore.Store) *ArtifactRetriever {
	return &ArtifactRetriever{Store: store, MaxMatches: defaultRetrievalMatches}
}

// Retrieve ranks registered contract-source artifacts by keyword overlap
// against prompt and concatenates the top matches into retrieval context.
// The registries it draws from are populated out-of-band (an import tool
// seeding vetted exemplars into the team registry, or community uploads
// accumulating from prior workflows) — Retrieve only ever reads.
func (a *ArtifactRetriever) Retrieve(ctx context.Context, prompt string, scope RAGScope) (string, []string, error) {
	if a.Store == nil {
		return "", nil, fmt.Errorf("orchestrator: no artifact store configured for retrieval")
	}
	if ctx.Err() != nil {
		return "", nil, ctx.Err()
	}

	entries := a.Store.List(artifactstore.ScopeTeam)
	if scope == RAGScopeCommunityAllowed {
		entries = append(entries, a.Store.List(artifactstore.ScopeCommunity)...)
	}

	matches := rankArtifactsByPromptOverlap(prompt, entries, a.maxMatches())
	if len(matches) == 0 {
		return "", nil, nil
	}

	var b strings.Builder
	sources := make([]string, 0, len(matches))
	for _, e := range matches {
		fmt.Fprintf(&b, "// reference artifact %s (%s, %s scope)\n", e.ArtifactID, e.ArtifactType, strings.ToLower(string(e.Scope)))
		sources = append(sources, e.ArtifactID)
	}
	return b.String(), sources, nil
}

func (a *ArtifactRetriever) maxMatches() int {
	if a.MaxMatches <= 0 {
		return defaultRetrievalMatches
	}
	return a.MaxMatches
}

const retrievableArtifactType = "contract_source"

// rankArtifactsByPromptOverlap scores each contract_source entry by how
// many of the prompt's lowercased words appear in its recorded
// contract_category metadata, returning the top-scoring entries (ties
// broken by upload recency, newest first).
func rankArtifactsByPromptOverlap(prompt string, entries []artifactstore.RegistryEntry, limit int) []artifactstore.RegistryEntry {
	keywords := strings.Fields(strings.ToLower(prompt))

	type scored struct {
		entry artifactstore.RegistryEntry
		score int
	}
	var candidates []scored
	for _, e := range entries {
		if e.ArtifactType != retrievableArtifactType {
			continue
		}
		category := strings.ToLower(e.Metadata["contract_category"])
		if category == "" {
			continue
		}
		score := 0
		for _, kw := range keywords {
			if strings.Contains(category, kw) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{entry: e, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.UploadedAt.After(candidates[j].entry.UploadedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]artifactstore.RegistryEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}
