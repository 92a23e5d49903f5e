package memory

import (
	"context"
	"fmt"
	"sort"

	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

// KVStore is the store dependency of the fabric.
type KVStore = store.KV

// MemoryContext is the unified view handed to the orchestrator and planner
// for a (user, topic) pair.
type MemoryContext struct {
	SimilarSessions    []string               `json:"similar_sessions,omitempty"`
	RecommendedSources []string               `json:"recommended_sources,omitempty"`
	GoodKeywords       []string               `json:"effective_keywords,omitempty"`
	BadKeywords        []string               `json:"ineffective_keywords,omitempty"`
	PreferredLanguage  string                 `json:"preferred_language,omitempty"`
	PreferredSources   []string               `json:"preferred_sources,omitempty"`
	MinPapers          int                    `json:"min_papers,omitempty"`
	MaxPapers          int                    `json:"max_papers,omitempty"`
	ExperienceLevel    types.ExperienceLevel  `json:"user_experience_level"`
	Preferences        *types.UserPreferences `json:"-"`
}

// Fabric bundles the three memory layers.
type Fabric struct {
	Working    *WorkingMemory
	Episodic   *EpisodicMemory
	Procedural *ProceduralMemory
}

// NewFabric wires the three layers over one KV.
func NewFabric(kv KVStore) *Fabric {
	return &Fabric{
		Working:    NewWorkingMemory(kv),
		Episodic:   NewEpisodicMemory(kv),
		Procedural: NewProceduralMemory(kv),
	}
}

// Context builds the unified MemoryContext for a user and topic.
func (f *Fabric) Context(ctx context.Context, userID, topic string) (*MemoryContext, error) {
	prefs, err := f.Procedural.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	similar, err := f.Episodic.FindSimilar(ctx, userID, topic, 5)
	if err != nil {
		return nil, err
	}

	mc := &MemoryContext{
		PreferredLanguage: prefs.Language,
		PreferredSources:  prefs.PreferredSources,
		MinPapers:         prefs.MinPapers,
		MaxPapers:         prefs.MaxPapers,
		ExperienceLevel:   prefs.Experience(),
		Preferences:       prefs,
	}

	// Frequency-rank sources over successful or partial similar sessions.
	sourceFreq := make(map[string]int)
	for _, ep := range similar {
		mc.SimilarSessions = append(mc.SimilarSessions,
			fmt.Sprintf("%q (%d papers, %s)", ep.Topic, ep.PapersFound, ep.Outcome))
		if ep.Outcome == types.OutcomeSuccess || ep.Outcome == types.OutcomePartial {
			for _, src := range ep.SourcesUsed {
				sourceFreq[src]++
			}
		}
		mc.GoodKeywords = appendAllDistinct(mc.GoodKeywords, ep.GoodKeywords)
		mc.BadKeywords = appendAllDistinct(mc.BadKeywords, ep.BadKeywords)
	}
	mc.RecommendedSources = rankByFrequency(sourceFreq)

	return mc, nil
}

// ShouldSkipClarification returns true iff the user explicitly set the flag,
// or the user is expert and a similar prior session succeeded.
func (f *Fabric) ShouldSkipClarification(ctx context.Context, userID, topic string) bool {
	prefs, err := f.Procedural.Get(ctx, userID)
	if err != nil {
		return false
	}
	if prefs.SkipClarification {
		return true
	}
	if prefs.Experience() != types.ExperienceExpert {
		return false
	}
	similar, err := f.Episodic.FindSimilar(ctx, userID, topic, 5)
	if err != nil {
		return false
	}
	for _, ep := range similar {
		if ep.Outcome == types.OutcomeSuccess {
			return true
		}
	}
	return false
}

func rankByFrequency(freq map[string]int) []string {
	type entry struct {
		src string
		n   int
	}
	entries := make([]entry, 0, len(freq))
	for src, n := range freq {
		entries = append(entries, entry{src, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].src < entries[j].src
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.src
	}
	return out
}

func appendAllDistinct(list []string, items []string) []string {
	for _, item := range items {
		list = appendDistinct(list, item)
	}
	return list
}
