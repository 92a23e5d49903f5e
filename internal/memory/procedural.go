package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"deepscholar/internal/logging"
	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

// maxCommonTopics bounds the rolling topic list kept per user.
const maxCommonTopics = 20

// ProceduralMemory stores per-user preferences with an in-process cache.
type ProceduralMemory struct {
	kv store.KV

	mu    sync.RWMutex
	cache map[string]*types.UserPreferences
}

// NewProceduralMemory creates a procedural layer over the given KV.
func NewProceduralMemory(kv store.KV) *ProceduralMemory {
	return &ProceduralMemory{kv: kv, cache: make(map[string]*types.UserPreferences)}
}

// Get loads preferences, returning fresh defaults for an unknown user.
func (p *ProceduralMemory) Get(ctx context.Context, userID string) (*types.UserPreferences, error) {
	p.mu.RLock()
	if prefs, ok := p.cache[userID]; ok {
		p.mu.RUnlock()
		return prefs, nil
	}
	p.mu.RUnlock()

	raw, err := p.kv.Get(ctx, store.KeyPreferences(userID))
	if errors.Is(err, store.ErrNotFound) {
		return &types.UserPreferences{UserID: userID, MaxPapers: 20, RelevanceThreshold: 6.0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences %s: %w", userID, err)
	}

	var prefs types.UserPreferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("corrupt preferences %s: %w", userID, err)
	}

	p.mu.Lock()
	p.cache[userID] = &prefs
	p.mu.Unlock()
	return &prefs, nil
}

// Save persists preferences and refreshes the cache.
func (p *ProceduralMemory) Save(ctx context.Context, prefs *types.UserPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := p.kv.SetEx(ctx, store.KeyPreferences(prefs.UserID), string(data), store.TTLPreferences); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}

	p.mu.Lock()
	p.cache[prefs.UserID] = prefs
	p.mu.Unlock()
	return nil
}

// UpdateFromBehavior accumulates observed behavior into preferences: the
// topic prefix ring, input languages, sources used, and a monotonic widening
// of max_papers when a request exceeded it.
func (p *ProceduralMemory) UpdateFromBehavior(ctx context.Context, userID string, req *types.ResearchRequest, sourcesUsed []string, language string) error {
	prefs, err := p.Get(ctx, userID)
	if err != nil {
		return err
	}

	prefs.InteractionCount++

	// Rolling list of first-three-word topic triples.
	if triple := topicTriple(req.Topic); triple != "" {
		prefs.CommonTopics = appendDistinct(prefs.CommonTopics, triple)
		if len(prefs.CommonTopics) > maxCommonTopics {
			prefs.CommonTopics = prefs.CommonTopics[len(prefs.CommonTopics)-maxCommonTopics:]
		}
	}

	if language != "" && prefs.Language == "" {
		prefs.Language = language
	}
	for _, src := range sourcesUsed {
		prefs.PreferredSources = appendDistinct(prefs.PreferredSources, src)
	}
	for _, kw := range req.Keywords {
		prefs.FavoriteKeywords = appendDistinct(prefs.FavoriteKeywords, kw)
	}

	// max_papers only widens, never narrows.
	if req.MaxPapers > prefs.MaxPapers {
		prefs.MaxPapers = req.MaxPapers
	}

	logging.MemoryDebug("preferences updated: user=%s interactions=%d topics=%d",
		userID, prefs.InteractionCount, len(prefs.CommonTopics))
	return p.Save(ctx, prefs)
}

func topicTriple(topic string) string {
	words := strings.Fields(strings.ToLower(topic))
	if len(words) == 0 {
		return ""
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

func appendDistinct(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
