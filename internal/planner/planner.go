// Package planner turns a research request into an ordered, tool-bound
// plan. The LLM drafts the steps; user-supplied keywords, URLs, and
// questions are injected afterwards so they always survive model drift.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/tools"
	"deepscholar/internal/types"
)

const (
	minPlanSteps = 5
	maxPlanSteps = 7
)

// Planner builds research plans.
type Planner struct {
	llm      types.LLMClient
	registry *tools.Registry
}

// NewPlanner creates a planner over the given registry. A nil LLM client
// always yields the deterministic fallback plan.
func NewPlanner(llmClient types.LLMClient, registry *tools.Registry) *Planner {
	return &Planner{llm: llmClient, registry: registry}
}

// Plan produces a complete plan for the request. LLM failure degrades to
// the fallback plan rather than erroring out.
func (p *Planner) Plan(ctx context.Context, req *types.ResearchRequest) (*types.ResearchPlan, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("plan: empty topic")
	}

	plan := p.draftWithLLM(ctx, req)
	if plan == nil {
		plan = p.fallbackPlan(req)
	}

	plan.ID = uuid.NewString()
	plan.Topic = req.Topic
	if req.Language != "" {
		plan.OutputLanguage = req.Language
	}
	p.injectUserData(plan, req)
	plan.Renumber()
	logging.Pipeline("plan %s built with %d steps", plan.ID, len(plan.Steps))
	return plan, nil
}

type rawStep struct {
	Action      string         `json:"action"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Queries     []string       `json:"queries"`
	Sources     []string       `json:"sources"`
	Tool        string         `json:"tool"`
	ToolArgs    map[string]any `json:"tool_args"`
}

type rawPlan struct {
	Summary string    `json:"summary"`
	Steps   []rawStep `json:"steps"`
}

func (p *Planner) draftWithLLM(ctx context.Context, req *types.ResearchRequest) *types.ResearchPlan {
	if p.llm == nil {
		return nil
	}

	reply, err := p.llm.CompleteJSON(ctx, p.systemPrompt(), p.userPrompt(req))
	if err != nil {
		logging.PipelineError("planner llm failed: %v", err)
		return nil
	}

	doc := llm.ExtractJSON(reply)
	var raw rawPlan
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		logging.PipelineError("planner reply unparsable: %v", err)
		return nil
	}
	if len(raw.Steps) == 0 {
		return nil
	}

	plan := &types.ResearchPlan{Summary: raw.Summary}
	for _, rs := range raw.Steps {
		step := types.ResearchStep{
			Action:      types.StepAction(rs.Action),
			Title:       rs.Title,
			Description: rs.Description,
			Queries:     rs.Queries,
			Sources:     rs.Sources,
			Tool:        rs.Tool,
			ToolArgs:    rs.ToolArgs,
		}
		if !validAction(step.Action) {
			step.Action = types.ActionResearch
		}
		if needsTool(step) {
			step.Tool = "search"
		}
		plan.Steps = append(plan.Steps, step)
	}
	if len(plan.Steps) > maxPlanSteps {
		plan.Steps = plan.Steps[:maxPlanSteps]
	}
	return plan
}

func (p *Planner) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a research planning assistant. Produce a JSON plan for collecting and synthesizing academic papers.\n")
	b.WriteString("Respond with a single JSON object: {\"summary\": string, \"steps\": [{\"action\", \"title\", \"description\", \"queries\", \"sources\", \"tool\", \"tool_args\"}]}.\n")
	fmt.Fprintf(&b, "Use between %d and %d steps. Valid actions: research, collect, analyze, synthesize.\n", minPlanSteps, maxPlanSteps)
	b.WriteString("Every research or collect step must name one of the available tools.\n\nAvailable tools:\n")
	if p.registry != nil {
		for _, spec := range p.registry.ForLLM() {
			fmt.Fprintf(&b, "- %s: %s\n", spec.Function.Name, spec.Function.Description)
		}
	}
	return b.String()
}

func (p *Planner) userPrompt(req *types.ResearchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Seed keywords: %s\n", strings.Join(req.Keywords, ", "))
	}
	if len(req.Questions) > 0 {
		fmt.Fprintf(&b, "Research questions: %s\n", strings.Join(req.Questions, "; "))
	}
	if len(req.SourceURLs) > 0 {
		fmt.Fprintf(&b, "User-supplied sources: %s\n", strings.Join(req.SourceURLs, ", "))
	}
	if req.TimeFrom != nil {
		fmt.Fprintf(&b, "Published after: %s\n", req.TimeFrom.Format("2006-01-02"))
	}
	if req.TimeTo != nil {
		fmt.Fprintf(&b, "Published before: %s\n", req.TimeTo.Format("2006-01-02"))
	}
	if req.MaxPapers > 0 {
		fmt.Fprintf(&b, "Paper budget: %d\n", req.MaxPapers)
	}
	return b.String()
}

// injectUserData guarantees user input is represented regardless of what
// the model produced.
func (p *Planner) injectUserData(plan *types.ResearchPlan, req *types.ResearchRequest) {
	if len(req.SourceURLs) > 0 && !hasCollectFor(plan, req.SourceURLs) {
		collect := types.ResearchStep{
			Action:      types.ActionCollect,
			Title:       "Collect user-provided sources",
			Description: "Resolve the URLs supplied with the request into paper records.",
			Sources:     req.SourceURLs,
			Tool:        "collect_urls",
			ToolArgs:    map[string]any{"urls": req.SourceURLs},
		}
		plan.Steps = append([]types.ResearchStep{collect}, plan.Steps...)
	}

	if len(req.Keywords) > 0 {
		for i := range plan.Steps {
			if plan.Steps[i].Action == types.ActionResearch {
				plan.Steps[i].Queries = prependDistinct(plan.Steps[i].Queries, req.Keywords)
				break
			}
		}
	}

	if len(req.Questions) > 0 && !coversQuestions(plan, req.Questions) {
		plan.Steps = append(plan.Steps, types.ResearchStep{
			Action:      types.ActionSynthesize,
			Title:       "Answer research questions",
			Description: "Address the user's explicit questions: " + strings.Join(req.Questions, "; "),
			Queries:     req.Questions,
		})
	}
}

// fallbackPlan is the deterministic plan used when the model is unavailable
// or returns garbage.
func (p *Planner) fallbackPlan(req *types.ResearchRequest) *types.ResearchPlan {
	plan := &types.ResearchPlan{
		Summary: "Collect, screen, and synthesize recent work on " + req.Topic + ".",
	}

	plan.Steps = append(plan.Steps, types.ResearchStep{
		Action:      types.ActionResearch,
		Title:       "Search scholarly sources",
		Description: "Query arXiv and OpenAlex for the topic.",
		Queries:     []string{req.Topic},
		Tool:        "search",
		ToolArgs:    map[string]any{"query": req.Topic},
	})
	plan.Steps = append(plan.Steps, types.ResearchStep{
		Action:      types.ActionResearch,
		Title:       "Search for surveys",
		Description: "Find survey and review articles to anchor the synthesis.",
		Queries:     []string{req.Topic + " survey"},
		Tool:        "search",
		ToolArgs:    map[string]any{"query": req.Topic + " survey"},
	})
	plan.Steps = append(plan.Steps, types.ResearchStep{
		Action:      types.ActionCollect,
		Title:       "Check trending papers",
		Description: "Pick up recent trending work that keyword search misses.",
		Tool:        "hf_trending",
		ToolArgs:    map[string]any{"limit": 10},
	})
	plan.Steps = append(plan.Steps, types.ResearchStep{
		Action:      types.ActionAnalyze,
		Title:       "Screen collected papers",
		Description: "Score relevance and filter the combined result set.",
	})
	plan.Steps = append(plan.Steps, types.ResearchStep{
		Action:      types.ActionSynthesize,
		Title:       "Write synthesis report",
		Description: "Produce the citation-grounded report.",
	})
	return plan
}

func validAction(a types.StepAction) bool {
	switch a {
	case types.ActionResearch, types.ActionCollect, types.ActionAnalyze, types.ActionSynthesize:
		return true
	}
	return false
}

// needsTool reports whether an ingestion step is missing its tool binding.
func needsTool(s types.ResearchStep) bool {
	return (s.Action == types.ActionResearch || s.Action == types.ActionCollect) && s.Tool == ""
}

func hasCollectFor(plan *types.ResearchPlan, urls []string) bool {
	for _, step := range plan.Steps {
		if step.Action != types.ActionCollect {
			continue
		}
		for _, src := range step.Sources {
			for _, u := range urls {
				if src == u {
					return true
				}
			}
		}
	}
	return false
}

func coversQuestions(plan *types.ResearchPlan, questions []string) bool {
	for _, step := range plan.Steps {
		for _, q := range step.Queries {
			for _, want := range questions {
				if strings.EqualFold(q, want) {
					return true
				}
			}
		}
	}
	return false
}

func prependDistinct(existing, extra []string) []string {
	out := make([]string, 0, len(existing)+len(extra))
	seen := map[string]bool{}
	for _, s := range extra {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	for _, s := range existing {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}
