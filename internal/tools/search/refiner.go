package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// QueryRefiner proposes alternative queries when results are poor. LLM-first
// with a deterministic heuristic fallback; it never returns a query that was
// already tried.
type QueryRefiner struct {
	llmClient types.LLMClient
}

// NewQueryRefiner creates a refiner. A nil client means heuristics only.
func NewQueryRefiner(client types.LLMClient) *QueryRefiner {
	return &QueryRefiner{llmClient: client}
}

const refinerSystemPrompt = `You improve academic search queries that returned poor results.
Respond with a JSON array of 2-3 alternative query strings. Keep each query short and specific.
Never repeat a query from the already-tried list.`

// Refine returns up to three alternative queries not present in tried.
func (r *QueryRefiner) Refine(ctx context.Context, query string, tried []string) []string {
	triedSet := make(map[string]bool, len(tried))
	for _, t := range tried {
		triedSet[strings.ToLower(strings.TrimSpace(t))] = true
	}

	var suggestions []string
	if r.llmClient != nil {
		suggestions = r.refineLLM(ctx, query, tried)
	}
	if len(suggestions) == 0 {
		suggestions = RefineHeuristic(query)
	}

	out := make([]string, 0, 3)
	for _, s := range suggestions {
		s = strings.TrimSpace(s)
		if s == "" || triedSet[strings.ToLower(s)] {
			continue
		}
		triedSet[strings.ToLower(s)] = true
		out = append(out, s)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func (r *QueryRefiner) refineLLM(ctx context.Context, query string, tried []string) []string {
	prompt := fmt.Sprintf("Original query: %s\nAlready tried: %s\nSuggest alternatives.",
		query, strings.Join(tried, "; "))

	resp, err := r.llmClient.CompleteJSON(ctx, refinerSystemPrompt, prompt)
	if err != nil {
		logging.SearchWarn("refiner LLM failed, falling back to heuristics: %v", err)
		return nil
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &suggestions); err != nil {
		logging.SearchWarn("refiner returned unparseable JSON: %v", err)
		return nil
	}
	return suggestions
}

var versionPattern = regexp.MustCompile(`\b[vV]?\d+(\.\d+)+\b`)

// RefineHeuristic derives alternatives without an LLM: strip version
// numbers, drop to significant terms, and append "survey" as a broadening
// variant. Single-word suggestions are discarded.
func RefineHeuristic(query string) []string {
	var out []string

	stripped := strings.Join(strings.Fields(versionPattern.ReplaceAllString(query, "")), " ")
	if stripped != "" && stripped != query && strings.Contains(stripped, " ") {
		out = append(out, stripped)
	}

	var significant []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) >= 3 && !IsStopword(word) {
			significant = append(significant, word)
		}
	}
	if len(significant) >= 2 {
		condensed := strings.Join(significant, " ")
		if condensed != strings.ToLower(query) {
			out = append(out, condensed)
		}
		out = append(out, condensed+" survey")
	}

	// Drop single-word suggestions.
	filtered := out[:0]
	for _, s := range out {
		if strings.Contains(s, " ") {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
