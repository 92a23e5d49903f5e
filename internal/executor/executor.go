// Package executor runs an approved plan step by step, feeding tool results
// through a plan-scoped deduplicator into the paper registry.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"deepscholar/internal/dedup"
	"deepscholar/internal/logging"
	"deepscholar/internal/tools"
	"deepscholar/internal/types"
)

// StepMetrics records one step's outcome.
type StepMetrics struct {
	StepID     int    `json:"step_id"`
	Tool       string `json:"tool,omitempty"`
	Unique     int    `json:"unique"`
	Duplicates int    `json:"duplicates"`
	DurationMs int64  `json:"duration_ms"`
	CacheHit   bool   `json:"cache_hit"`
	Failed     bool   `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// Progress aggregates plan-wide counters, including relevance score bands
// filled in after screening.
type Progress struct {
	TotalCollected int   `json:"total_collected"`
	Unique         int   `json:"unique"`
	Duplicates     int   `json:"duplicates"`
	CacheHits      int   `json:"cache_hits"`
	CacheMisses    int   `json:"cache_misses"`
	BandLow        int   `json:"band_3_5"`
	BandMid        int   `json:"band_6_7"`
	BandHigh       int   `json:"band_8_10"`
	HighRelevance  int   `json:"high_relevance"`
	DurationMs     int64 `json:"duration_ms"`
}

// StepCallback fires after each step with its metrics.
type StepCallback func(step *types.ResearchStep, metrics StepMetrics)

// Result is what a completed plan run yields.
type Result struct {
	Papers      []*types.Paper `json:"papers"`
	Steps       []StepMetrics  `json:"steps"`
	Progress    Progress       `json:"progress"`
	SuccessRate float64        `json:"success_rate"`
}

// Executor drives one plan. Not safe for concurrent runs; create one per
// plan.
type Executor struct {
	registry *tools.Registry
	cache    *tools.Cache

	onStepComplete StepCallback
}

// New builds an executor. cache may be nil to bypass memoization.
func New(registry *tools.Registry, cache *tools.Cache, onStep StepCallback) *Executor {
	return &Executor{registry: registry, cache: cache, onStepComplete: onStep}
}

// Run executes the plan's steps in id order. A failed step records its
// error and the run continues.
func (e *Executor) Run(ctx context.Context, plan *types.ResearchPlan) (*Result, error) {
	started := time.Now()
	dd := dedup.New()
	result := &Result{}

	completed, failed := 0, 0
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if step.Tool == "" {
			// Analyze and synthesize steps run in downstream phases.
			continue
		}

		metrics := e.runStep(ctx, plan, step, dd, result)
		result.Steps = append(result.Steps, metrics)
		if metrics.Failed {
			failed++
		} else {
			completed++
			step.Completed = true
		}
		if e.onStepComplete != nil {
			e.onStepComplete(step, metrics)
		}
	}

	if completed+failed > 0 {
		result.SuccessRate = float64(completed) / float64(completed+failed)
	}
	_, dropped := dd.Stats()
	result.Progress.Unique = len(result.Papers)
	result.Progress.Duplicates = dropped
	result.Progress.TotalCollected = len(result.Papers) + dropped
	result.Progress.DurationMs = time.Since(started).Milliseconds()
	if e.cache != nil {
		m := e.cache.Metrics()
		result.Progress.CacheHits = int(m.Hits)
		result.Progress.CacheMisses = int(m.Misses)
	}
	logging.Pipeline("plan %s executed: %d unique, %d duplicates, success rate %.2f",
		plan.ID, result.Progress.Unique, dropped, result.SuccessRate)
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, plan *types.ResearchPlan, step *types.ResearchStep, dd *dedup.Deduplicator, result *Result) StepMetrics {
	metrics := StepMetrics{StepID: step.ID, Tool: step.Tool}
	started := time.Now()

	args := step.ToolArgs
	if args == nil {
		args = map[string]any{}
	}

	var toolResult *tools.Result
	var err error
	if e.cache != nil {
		toolResult, err = e.cache.Execute(ctx, e.registry, step.Tool, args)
	} else {
		toolResult, err = e.registry.Execute(ctx, step.Tool, args)
	}
	metrics.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		metrics.Failed = true
		metrics.Error = err.Error()
		logging.PipelineError("step %d (%s) failed: %v", step.ID, step.Tool, err)
		return metrics
	}
	metrics.CacheHit = toolResult.CacheHit

	papers := NormalizePapers(toolResult.Value)
	for _, p := range papers {
		if dd.Add(p) {
			p.PlanID = plan.ID
			p.StepID = step.ID
			result.Papers = append(result.Papers, p)
			metrics.Unique++
		} else {
			metrics.Duplicates++
		}
	}
	return metrics
}

// UpdateBands fills the relevance bands from scored papers.
func (p *Progress) UpdateBands(papers []*types.Paper) {
	p.BandLow, p.BandMid, p.BandHigh, p.HighRelevance = 0, 0, 0, 0
	for _, paper := range papers {
		if paper.RelevanceScore == nil {
			continue
		}
		score := *paper.RelevanceScore
		switch {
		case score >= 8:
			p.BandHigh++
			p.HighRelevance++
		case score >= 6:
			p.BandMid++
		case score >= 3:
			p.BandLow++
		}
	}
}

// NormalizePapers converts a tool result to a paper slice. Cached results
// come back as generic JSON, so the decoded shapes are handled alongside
// the native ones.
func NormalizePapers(value any) []*types.Paper {
	switch v := value.(type) {
	case nil:
		return nil
	case []*types.Paper:
		return v
	case *types.Paper:
		return []*types.Paper{v}
	case []types.Paper:
		out := make([]*types.Paper, len(v))
		for i := range v {
			out[i] = &v[i]
		}
		return out
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var papers []*types.Paper
		if err := json.Unmarshal(raw, &papers); err != nil {
			var single types.Paper
			if json.Unmarshal(raw, &single) == nil && single.Title != "" {
				return []*types.Paper{&single}
			}
			return nil
		}
		out := papers[:0]
		for _, p := range papers {
			if p != nil && p.Title != "" {
				out = append(out, p)
			}
		}
		return out
	}
}
