package planner

import (
	"context"

	"deepscholar/internal/query"
	"deepscholar/internal/types"
)

// Phase templates keyed on query type. Quick runs collect-and-score only;
// full runs the complete synthesis pipeline.
var (
	quickPhases = []string{
		types.PhasePlanning,
		types.PhaseExecution,
		types.PhasePersistence,
		types.PhaseAnalysis,
	}

	fullPhases = []string{
		types.PhasePlanning,
		types.PhaseExecution,
		types.PhasePersistence,
		types.PhaseScreening,
		types.PhasePDFLoading,
		types.PhaseEvidence,
		types.PhaseClustering,
		types.PhaseClaims,
		types.PhaseGapMining,
		types.PhaseWriting,
		types.PhaseAudit,
		types.PhasePublish,
	}
)

// PhasesFor returns the phase template for a query type.
func PhasesFor(t types.QueryType) types.PhaseConfig {
	if t == types.QueryQuick {
		return types.PhaseConfig{ActivePhases: append([]string(nil), quickPhases...)}
	}
	return types.PhaseConfig{ActivePhases: append([]string(nil), fullPhases...)}
}

// Adaptive wraps the planner with query routing.
type Adaptive struct {
	planner *Planner
}

// NewAdaptive builds the adaptive wrapper.
func NewAdaptive(p *Planner) *Adaptive {
	return &Adaptive{planner: p}
}

// Plan parses the raw query, drafts the plan, and attaches the phase
// template. URLs found in the query are merged into the request before
// planning.
func (a *Adaptive) Plan(ctx context.Context, rawQuery string, req *types.ResearchRequest) (*types.AdaptivePlan, error) {
	info := query.Parse(rawQuery)

	if req == nil {
		req = &types.ResearchRequest{Topic: info.MainTopic}
	}
	if req.Topic == "" {
		req.Topic = info.MainTopic
	}
	req.SourceURLs = mergeDistinct(req.SourceURLs, info.URLs)

	plan, err := a.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	return &types.AdaptivePlan{
		Plan:   plan,
		Query:  info,
		Phases: PhasesFor(info.Type),
	}, nil
}

func mergeDistinct(base, extra []string) []string {
	seen := map[string]bool{}
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			base = append(base, s)
		}
	}
	return base
}
