package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

func TestWorkingMemoryMissingConversation(t *testing.T) {
	w := NewWorkingMemory(store.NewMemoryKV())
	_, err := w.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestWorkingMemoryRoundTrip(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()

	conv := &types.Conversation{
		ID:          "c1",
		UserID:      "u1",
		State:       types.StateReviewing,
		Language:    "vi",
		PendingPlan: &types.AdaptivePlan{Plan: &types.ResearchPlan{Topic: "x"}},
	}
	conv.Append(types.RoleUser, "hello")

	if err := NewWorkingMemory(kv).Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	// A fresh layer over the same KV simulates a process restart.
	restored, err := NewWorkingMemory(kv).Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if restored.State != types.StateReviewing || restored.Language != "vi" {
		t.Errorf("restored = %+v", restored)
	}
	if len(restored.Messages) != 1 {
		t.Errorf("messages = %d", len(restored.Messages))
	}
	if restored.PendingPlan != nil {
		t.Error("transient pending plan survived the KV round trip")
	}
}

func TestWorkingMemoryEvict(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	w := NewWorkingMemory(kv)

	w.Save(ctx, &types.Conversation{ID: "c1"})
	if err := w.Evict(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Get(ctx, "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("evicted conversation still available: %v", err)
	}
}

func TestEpisodicRecordAndRecent(t *testing.T) {
	e := NewEpisodicMemory(store.NewMemoryKV())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := e.Record(ctx, &types.ResearchEpisode{
			ID:      fmt.Sprintf("ep-%d", i),
			UserID:  "u1",
			Topic:   fmt.Sprintf("topic %d", i),
			Outcome: types.OutcomeSuccess,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	recent, err := e.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d episodes, want 2", len(recent))
	}
	// Most recent first.
	if recent[0].ID != "ep-2" {
		t.Errorf("first episode = %s, want ep-2", recent[0].ID)
	}
}

func TestEpisodicFindSimilar(t *testing.T) {
	e := NewEpisodicMemory(store.NewMemoryKV())
	ctx := context.Background()

	episodes := []*types.ResearchEpisode{
		{ID: "a", UserID: "u1", Topic: "transformer attention mechanisms", Outcome: types.OutcomeSuccess},
		{ID: "b", UserID: "u1", Topic: "protein folding prediction", Outcome: types.OutcomeSuccess},
		{ID: "c", UserID: "u1", Topic: "efficient attention for transformers", Outcome: types.OutcomePartial},
	}
	for _, ep := range episodes {
		if err := e.Record(ctx, ep); err != nil {
			t.Fatal(err)
		}
	}

	similar, err := e.FindSimilar(ctx, "u1", "attention mechanisms in transformers", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(similar) != 2 {
		t.Fatalf("got %d similar episodes: %+v", len(similar), similar)
	}
	for _, ep := range similar {
		if ep.ID == "b" {
			t.Error("unrelated episode ranked as similar")
		}
	}
}

func TestProceduralDefaultsForUnknownUser(t *testing.T) {
	p := NewProceduralMemory(store.NewMemoryKV())
	prefs, err := p.Get(context.Background(), "new-user")
	if err != nil {
		t.Fatal(err)
	}
	if prefs.MaxPapers != 20 || prefs.RelevanceThreshold != 6.0 {
		t.Errorf("defaults = %+v", prefs)
	}
	if prefs.Experience() != types.ExperienceNew {
		t.Errorf("experience = %s", prefs.Experience())
	}
}

func TestUpdateFromBehavior(t *testing.T) {
	p := NewProceduralMemory(store.NewMemoryKV())
	ctx := context.Background()

	req := &types.ResearchRequest{
		Topic:     "graph neural networks for chemistry applications",
		Keywords:  []string{"GNN"},
		MaxPapers: 50,
	}
	if err := p.UpdateFromBehavior(ctx, "u1", req, []string{"arxiv"}, "en"); err != nil {
		t.Fatal(err)
	}

	prefs, _ := p.Get(ctx, "u1")
	if prefs.InteractionCount != 1 {
		t.Errorf("interactions = %d", prefs.InteractionCount)
	}
	if len(prefs.CommonTopics) != 1 || prefs.CommonTopics[0] != "graph neural networks" {
		t.Errorf("topics = %v", prefs.CommonTopics)
	}
	if prefs.Language != "en" {
		t.Errorf("language = %s", prefs.Language)
	}
	if prefs.MaxPapers != 50 {
		t.Errorf("max papers should widen to 50, got %d", prefs.MaxPapers)
	}

	// A smaller budget must not narrow the stored one.
	req.MaxPapers = 10
	p.UpdateFromBehavior(ctx, "u1", req, nil, "")
	prefs, _ = p.Get(ctx, "u1")
	if prefs.MaxPapers != 50 {
		t.Errorf("max papers narrowed to %d", prefs.MaxPapers)
	}
	if prefs.InteractionCount != 2 {
		t.Errorf("interactions = %d", prefs.InteractionCount)
	}
}

func TestFabricContext(t *testing.T) {
	kv := store.NewMemoryKV()
	f := NewFabric(kv)
	ctx := context.Background()

	f.Episodic.Record(ctx, &types.ResearchEpisode{
		ID: "e1", UserID: "u1", Topic: "diffusion models for images",
		Outcome: types.OutcomeSuccess, SourcesUsed: []string{"arxiv", "openalex"},
		GoodKeywords: []string{"denoising"},
	})
	f.Episodic.Record(ctx, &types.ResearchEpisode{
		ID: "e2", UserID: "u1", Topic: "diffusion models for video",
		Outcome: types.OutcomeSuccess, SourcesUsed: []string{"arxiv"},
	})

	mc, err := f.Context(ctx, "u1", "diffusion models survey")
	if err != nil {
		t.Fatal(err)
	}
	if len(mc.SimilarSessions) != 2 {
		t.Errorf("similar sessions = %v", mc.SimilarSessions)
	}
	if len(mc.RecommendedSources) == 0 || mc.RecommendedSources[0] != "arxiv" {
		t.Errorf("recommended sources = %v", mc.RecommendedSources)
	}
	if len(mc.GoodKeywords) != 1 || mc.GoodKeywords[0] != "denoising" {
		t.Errorf("good keywords = %v", mc.GoodKeywords)
	}
}

func TestShouldSkipClarification(t *testing.T) {
	kv := store.NewMemoryKV()
	f := NewFabric(kv)
	ctx := context.Background()

	// New user: never skip.
	if f.ShouldSkipClarification(ctx, "u1", "anything") {
		t.Error("new user should not skip clarification")
	}

	// Explicit flag wins regardless of experience.
	f.Procedural.Save(ctx, &types.UserPreferences{UserID: "u2", SkipClarification: true})
	if !f.ShouldSkipClarification(ctx, "u2", "anything") {
		t.Error("explicit flag ignored")
	}

	// Expert with a successful similar session skips.
	f.Procedural.Save(ctx, &types.UserPreferences{UserID: "u3", InteractionCount: 25})
	f.Episodic.Record(ctx, &types.ResearchEpisode{
		ID: "e1", UserID: "u3", Topic: "sparse attention kernels", Outcome: types.OutcomeSuccess,
	})
	if !f.ShouldSkipClarification(ctx, "u3", "sparse attention methods") {
		t.Error("expert with successful similar session should skip")
	}
	// Expert without similar history does not skip.
	if f.ShouldSkipClarification(ctx, "u3", "marine biology sampling") {
		t.Error("expert without similar session should not skip")
	}
}
