// Package agentmemory records distilled outcomes of past workflows and
// answers similarity queries against them, so Adaptive Prompt Repair
// and the Orchestrator can learn from prior runs. The store is a
// single JSON file with a bounded entry count, written by exactly one
// owner (the Orchestrator) and read freely by everyone else.
package agentmemory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/contractforge/forge/internal/atomicfile"
	"github.com/contractforge/forge/internal/workflowcontext"
)

// DefaultMaxEntries bounds retention: the oldest entry is dropped once
// the store would exceed this count.
const DefaultMaxEntries = 100

// Fix is one successful repair recorded against an error.
type Fix struct {
	ErrorType  workflowcontext.ErrorType  `json:"error_type"`
	Stage      workflowcontext.StageName  `json:"stage"`
	FixMessage string                     `json:"fix_message"`
}

// Entry is one distilled workflow outcome.
type Entry struct {
	WorkflowID     string                      `json:"workflow_id"`
	Timestamp      time.Time                   `json:"timestamp"`
	Prompt         string                      `json:"prompt"`
	TruncatedWords []string                    `json:"truncated_words"`
	Status         workflowcontext.Status      `json:"status"`
	ContractType   workflowcontext.ContractCategory `json:"contract_type,omitempty"`
	ErrorTypes     []workflowcontext.ErrorType `json:"error_types"`
	SuccessfulFixes []Fix                      `json:"successful_fixes"`
}

// promptTruncationWords caps how many words of a prompt are retained
// for Jaccard similarity, keeping entries small.
const promptTruncationWords = 40

// Memory is the bounded, atomically-persisted workflow memory store.
type Memory struct {
	mu         sync.RWMutex
	path       string
	maxEntries int
	entries    []Entry
}

// New creates a Memory backed by path. A missing file is treated as an
// empty store. maxEntries <= 0 falls back to DefaultMaxEntries.
func New(path string, maxEntries int) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	m := &Memory{path: path, maxEntries: maxEntries}

	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return m, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("agentmemory: decode %s: %w", path, err)
	}
	m.entries = entries
	return m, nil
}

// Add distills snapshot into an Entry and appends it, dropping the
// oldest entry if the store would exceed maxEntries.
func (m *Memory) Add(snapshot workflowcontext.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := distill(snapshot)
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.maxEntries {
		m.entries = m.entries[len(m.entries)-m.maxEntries:]
	}
	return m.persistLocked()
}

func distill(snapshot workflowcontext.Snapshot) Entry {
	var errorTypes []workflowcontext.ErrorType
	var fixes []Fix
	seen := make(map[workflowcontext.ErrorType]bool)
	for _, e := range snapshot.ErrorHistory {
		if !seen[e.ErrorType] {
			errorTypes = append(errorTypes, e.ErrorType)
			seen[e.ErrorType] = true
		}
		if e.FixSuccessful {
			fixes = append(fixes, Fix{ErrorType: e.ErrorType, Stage: e.Stage, FixMessage: e.FixMessage})
		}
	}

	var category workflowcontext.ContractCategory
	if snapshot.ContractInfo != nil {
		category = snapshot.ContractInfo.Category
	}

	return Entry{
		WorkflowID:      snapshot.WorkflowID,
		Timestamp:       snapshot.UpdatedAt,
		Prompt:          snapshot.UserPrompt,
		TruncatedWords:  truncateWords(snapshot.UserPrompt, promptTruncationWords),
		Status:          snapshot.Status,
		ContractType:    category,
		ErrorTypes:      errorTypes,
		SuccessfulFixes: fixes,
	}
}

func truncateWords(text string, limit int) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

func (m *Memory) persistLocked() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("agentmemory: marshal: %w", err)
	}
	if err := atomicfile.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("agentmemory: persist %s: %w", m.path, err)
	}
	return nil
}

// QuerySimilarErrors returns, most-recent first, entries matching
// errorType and stage that also have a recorded successful fix.
func (m *Memory) QuerySimilarErrors(errorType workflowcontext.ErrorType, stage workflowcontext.StageName, limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		entry := m.entries[i]
		if !hasErrorType(entry, errorType) {
			continue
		}
		if !hasSuccessfulFix(entry, errorType, stage) {
			continue
		}
		matches = append(matches, entry)
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches
}

func hasErrorType(e Entry, errorType workflowcontext.ErrorType) bool {
	for _, t := range e.ErrorTypes {
		if t == errorType {
			return true
		}
	}
	return false
}

func hasSuccessfulFix(e Entry, errorType workflowcontext.ErrorType, stage workflowcontext.StageName) bool {
	for _, f := range e.SuccessfulFixes {
		if f.ErrorType == errorType && f.Stage == stage {
			return true
		}
	}
	return false
}

// jaccardThreshold is the minimum similarity for QuerySimilarPrompts to
// consider two prompts related.
const jaccardThreshold = 0.3

// QuerySimilarPrompts returns entries whose truncated prompt has
// Jaccard word-set similarity >= 0.3 against prompt, ordered by
// similarity descending, ties broken by recency.
func (m *Memory) QuerySimilarPrompts(prompt string, limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	querySet := wordSet(truncateWords(prompt, promptTruncationWords))

	type scored struct {
		entry Entry
		index int
		score float64
	}
	var candidates []scored
	for i, entry := range m.entries {
		score := jaccardSimilarity(querySet, wordSet(entry.TruncatedWords))
		if score >= jaccardThreshold {
			candidates = append(candidates, scored{entry: entry, index: i, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].index > candidates[j].index
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// GetSuccessfulFixesForError implements repair.SuccessfulFixLookup:
// the most recent matching fix message first.
func (m *Memory) GetSuccessfulFixesForError(errorType workflowcontext.ErrorType, stage workflowcontext.StageName) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var messages []string
	for i := len(m.entries) - 1; i >= 0; i-- {
		for _, f := range m.entries[i].SuccessfulFixes {
			if f.ErrorType == errorType && f.Stage == stage {
				messages = append(messages, f.FixMessage)
			}
		}
	}
	return messages
}

// Statistics summarizes the current store.
type Statistics struct {
	TotalEntries       int
	SuccessRate        float64
	MostCommonErrors   []workflowcontext.ErrorType
	MostCommonContracts []workflowcontext.ContractCategory
}

// Statistics computes success rate and the most frequent error/contract
// types across the whole store.
func (m *Memory) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return Statistics{}
	}

	successCount := 0
	errorCounts := make(map[workflowcontext.ErrorType]int)
	contractCounts := make(map[workflowcontext.ContractCategory]int)

	for _, e := range m.entries {
		if e.Status == workflowcontext.StatusSuccess {
			successCount++
		}
		for _, t := range e.ErrorTypes {
			errorCounts[t]++
		}
		if e.ContractType != "" {
			contractCounts[e.ContractType]++
		}
	}

	return Statistics{
		TotalEntries:        len(m.entries),
		SuccessRate:         float64(successCount) / float64(len(m.entries)),
		MostCommonErrors:    rankByCount(errorCounts),
		MostCommonContracts: rankContractsByCount(contractCounts),
	}
}

func rankByCount(counts map[workflowcontext.ErrorType]int) []workflowcontext.ErrorType {
	type kv struct {
		key   workflowcontext.ErrorType
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.SliceStable(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })

	out := make([]workflowcontext.ErrorType, len(kvs))
	for i, e := range kvs {
		out[i] = e.key
	}
	return out
}

func rankContractsByCount(counts map[workflowcontext.ContractCategory]int) []workflowcontext.ContractCategory {
	type kv struct {
		key   workflowcontext.ContractCategory
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.SliceStable(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })

	out := make([]workflowcontext.ContractCategory, len(kvs))
	for i, e := range kvs {
		out[i] = e.key
	}
	return out
}
