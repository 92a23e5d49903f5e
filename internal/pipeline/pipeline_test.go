package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"deepscholar/internal/config"
	"deepscholar/internal/embedding"
	"deepscholar/internal/planner"
	"deepscholar/internal/store"
	"deepscholar/internal/tools"
	"deepscholar/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockLLMClient struct {
	completeFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.completeFunc(ctx, prompt)
}

func (m *mockLLMClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return m.completeFunc(ctx, user)
}

func (m *mockLLMClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return m.completeFunc(ctx, user)
}

// fullPathLLM answers every synthesis-stage prompt by shape: screening
// batches, per-paper extraction, cluster labels, claim generation, and the
// citation audit.
func fullPathLLM() *mockLLMClient {
	return &mockLLMClient{completeFunc: func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Paper: "):
			parts := strings.SplitN(prompt, "\n\n", 2)
			abstract := strings.TrimSpace(parts[1])
			return fmt.Sprintf(`{"method": %q, "spans": [{"field": "method", "snippet": %q, "confidence": 0.9}]}`,
				abstract, abstract), nil
		case strings.HasPrefix(prompt, "Theme: "):
			var spanID string
			for _, line := range strings.Split(prompt, "\n") {
				if strings.HasPrefix(line, "[") {
					spanID = line[1:strings.Index(line, "]")]
					break
				}
			}
			return fmt.Sprintf(`[{"text": "The surveyed methods reduce attention cost.", "span_ids": [%q], "salience": 0.9}]`, spanID), nil
		case strings.HasPrefix(prompt, "Claim: "):
			return `{"supported": true}`, nil
		case strings.HasPrefix(prompt, "["):
			return `[
				{"index": 0, "tier": "core", "reason": "on_topic", "score": 9},
				{"index": 1, "tier": "core", "reason": "on_topic", "score": 8}
			]`, nil
		case strings.HasPrefix(prompt, "- "):
			return `{"name": "Efficient Attention", "description": "Methods reducing attention cost."}`, nil
		default:
			return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
		}
	}}
}

func testPapers() []*types.Paper {
	return []*types.Paper{
		{ArxivID: "2004.05150", Title: "Longformer", Source: "arxiv", Status: types.StatusRaw,
			Abstract: "Sliding window attention with global tokens scales to long documents."},
		{ArxivID: "2006.04768", Title: "Linformer", Source: "arxiv", Status: types.StatusRaw,
			Abstract: "Low-rank projection of keys and values yields linear attention."},
	}
}

type testEnv struct {
	pipeline  *Pipeline
	kv        *store.MemoryKV
	local     *store.LocalStore
	toolCalls *atomic.Int32
}

func newTestEnv(t *testing.T, llm types.LLMClient, approve types.ApprovalFunc, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Store.DatabasePath = filepath.Join(t.TempDir(), "scholar.db")
	if mutate != nil {
		mutate(cfg)
	}

	local, err := store.NewLocalStore(cfg.Store.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	kv := store.NewMemoryKV()

	var toolCalls atomic.Int32
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&tools.Tool{
		Name:        "paper_search",
		Description: "test search over a fixed corpus",
		Tags:        []string{"ingest"},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			toolCalls.Add(1)
			return testPapers(), nil
		},
	}))

	p := New(Deps{
		Config:   cfg,
		KV:       kv,
		Local:    local,
		Registry: registry,
		Cache:    tools.NewCache(kv),
		LLM:      llm,
		Embedder: embedding.NewHashEngine(64),
		Approval: approve,
	})
	return &testEnv{pipeline: p, kv: kv, local: local, toolCalls: &toolCalls}
}

func approvedPlan(queryType types.QueryType) *types.AdaptivePlan {
	return &types.AdaptivePlan{
		Plan: &types.ResearchPlan{
			ID:    "plan-test",
			Topic: "efficient transformers",
			Steps: []types.ResearchStep{{
				ID:      1,
				Action:  types.ActionResearch,
				Title:   "Search arXiv",
				Tool:    "paper_search",
				Queries: []string{"efficient transformers"},
			}},
		},
		Query:  types.QueryInfo{Original: "efficient transformers", Type: queryType, MainTopic: "efficient transformers"},
		Phases: planner.PhasesFor(queryType),
	}
}

func TestRunQuickPath(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	s := NewSession("user-1", &types.ResearchRequest{Topic: "efficient transformers"})

	err := env.pipeline.Run(context.Background(), s, "quick overview of efficient transformers", approvedPlan(types.QueryQuick))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSuccess, s.Outcome)
	assert.Len(t, s.Papers, 2)
	assert.Empty(t, s.Records, "quick path keeps no screening records")
	assert.Empty(t, s.Report, "quick path writes no report")

	// Papers are persisted with ids and scored (nil LLM defaults to 5).
	stored, err := env.local.GetPaper("arxiv:2004.05150")
	require.NoError(t, err)
	require.NotNil(t, stored.RelevanceScore)
	assert.Equal(t, 5.0, *stored.RelevanceScore)

	// Every quick phase is checkpointed.
	for _, phase := range []string{types.PhaseExecution, types.PhasePersistence, types.PhaseAnalysis} {
		if _, err := env.kv.Get(context.Background(), store.KeyCheckpoint(s.ID, phase)); err != nil {
			t.Errorf("missing checkpoint for %s: %v", phase, err)
		}
	}
}

func TestRunFullPath(t *testing.T) {
	env := newTestEnv(t, fullPathLLM(), nil, nil)
	s := NewSession("user-1", &types.ResearchRequest{Topic: "efficient transformers"})

	err := env.pipeline.Run(context.Background(), s, "comprehensive survey of efficient transformers", approvedPlan(types.QueryFull))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSuccess, s.Outcome)
	require.Len(t, s.Records, 2)
	assert.NotEmpty(t, s.Clusters)
	assert.NotEmpty(t, s.Claims)
	assert.Greater(t, s.Audit.Passed, 0)
	assert.Equal(t, 1.0, s.Audit.PassRate())

	require.NotEmpty(t, s.ReportID)
	report, err := env.local.ReportBySession(s.ID)
	require.NoError(t, err)
	assert.Contains(t, report, "# efficient transformers")
	assert.Contains(t, report, "## References")
	assert.Contains(t, report, "The surveyed methods reduce attention cost.")

	// Screened-and-extracted papers carry the promoted status.
	stored, err := env.local.GetPaper("arxiv:2004.05150")
	require.NoError(t, err)
	assert.Equal(t, types.StatusExtracted, stored.Status)
}

func TestRunResumeSkipsCompletedPhases(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	s := NewSession("user-1", &types.ResearchRequest{Topic: "efficient transformers"})
	s.CompletedPhases = []string{types.PhaseExecution}

	err := env.pipeline.Run(context.Background(), s, "quick overview", approvedPlan(types.QueryQuick))
	require.NoError(t, err)

	assert.Equal(t, int32(0), env.toolCalls.Load(), "completed execution phase must not re-run")
	assert.Equal(t, types.OutcomePartial, s.Outcome, "no papers collected on a skipped execution")
}

func TestRunCancellation(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	s := NewSession("user-1", &types.ResearchRequest{Topic: "efficient transformers"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.pipeline.Run(ctx, s, "quick overview", approvedPlan(types.QueryQuick))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.OutcomeAbandoned, s.Outcome)

	// The abandoned session is still inspectable for resume.
	loaded, err := env.pipeline.LoadSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAbandoned, loaded.Outcome)
}

func TestRunTokenBudgetRejectionSkipsScreening(t *testing.T) {
	reject := func(ctx context.Context, g *types.Gate) (bool, error) { return false, nil }
	env := newTestEnv(t, fullPathLLM(), reject, func(cfg *config.Config) {
		cfg.Gates.TokenBudget = 100
	})
	s := NewSession("user-1", &types.ResearchRequest{Topic: "efficient transformers"})

	err := env.pipeline.Run(context.Background(), s, "comprehensive survey", approvedPlan(types.QueryFull))
	require.NoError(t, err)

	assert.Empty(t, s.Records, "rejected token budget skips screening")
	assert.Equal(t, types.OutcomeSuccess, s.Outcome)
	assert.NotEmpty(t, s.ReportID, "pipeline continues past a rejected screening gate")
}

func TestLoadSessionRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	s := NewSession("user-1", &types.ResearchRequest{Topic: "efficient transformers"})

	require.NoError(t, env.pipeline.Run(context.Background(), s, "quick overview", approvedPlan(types.QueryQuick)))

	loaded, err := env.pipeline.LoadSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.CompletedPhases, loaded.CompletedPhases)
	require.NotNil(t, loaded.Plan)
	assert.Equal(t, "efficient transformers", loaded.Plan.Plan.Topic)

	_, err = env.pipeline.LoadSession(context.Background(), "missing-session")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
