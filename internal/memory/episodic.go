package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"deepscholar/internal/logging"
	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

// maxEpisodesPerUser bounds the per-user recent-episode list.
const maxEpisodesPerUser = 50

// EpisodicMemory stores completed research sessions for future context.
type EpisodicMemory struct {
	kv store.KV
}

// NewEpisodicMemory creates an episodic layer over the given KV.
func NewEpisodicMemory(kv store.KV) *EpisodicMemory {
	return &EpisodicMemory{kv: kv}
}

// Record writes an episode once at session end and pushes its id onto the
// user's most-recent list, trimmed to maxEpisodesPerUser.
func (e *EpisodicMemory) Record(ctx context.Context, ep *types.ResearchEpisode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("marshal episode %s: %w", ep.ID, err)
	}
	if err := e.kv.SetEx(ctx, store.KeyEpisode(ep.ID), string(data), store.TTLEpisode); err != nil {
		return fmt.Errorf("persist episode %s: %w", ep.ID, err)
	}

	listKey := store.KeyEpisodic(ep.UserID)
	if err := e.kv.LPush(ctx, listKey, ep.ID); err != nil {
		return fmt.Errorf("push episode id: %w", err)
	}
	if err := e.kv.LTrim(ctx, listKey, 0, maxEpisodesPerUser-1); err != nil {
		return fmt.Errorf("trim episode list: %w", err)
	}
	if err := e.kv.Expire(ctx, listKey, store.TTLEpisode); err != nil {
		return fmt.Errorf("expire episode list: %w", err)
	}

	logging.Memory("episode recorded: user=%s topic=%q outcome=%s papers=%d",
		ep.UserID, ep.Topic, ep.Outcome, ep.PapersFound)
	return nil
}

// Recent loads up to limit most recent episodes for a user. Missing or
// expired episodes are skipped.
func (e *EpisodicMemory) Recent(ctx context.Context, userID string, limit int) ([]*types.ResearchEpisode, error) {
	if limit <= 0 || limit > maxEpisodesPerUser {
		limit = maxEpisodesPerUser
	}
	ids, err := e.kv.LRange(ctx, store.KeyEpisodic(userID), 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("load episode list: %w", err)
	}

	episodes := make([]*types.ResearchEpisode, 0, len(ids))
	for _, id := range ids {
		raw, err := e.kv.Get(ctx, store.KeyEpisode(id))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var ep types.ResearchEpisode
		if err := json.Unmarshal([]byte(raw), &ep); err != nil {
			logging.MemoryDebug("skipping corrupt episode %s: %v", id, err)
			continue
		}
		episodes = append(episodes, &ep)
	}
	return episodes, nil
}

// FindSimilar ranks past episodes by keyword overlap with the topic and
// returns the top-K with overlap >= 1.
func (e *EpisodicMemory) FindSimilar(ctx context.Context, userID, topic string, k int) ([]*types.ResearchEpisode, error) {
	episodes, err := e.Recent(ctx, userID, maxEpisodesPerUser)
	if err != nil {
		return nil, err
	}

	words := topicWords(topic)
	type scored struct {
		ep      *types.ResearchEpisode
		overlap int
	}
	var candidates []scored
	for _, ep := range episodes {
		n := overlapCount(words, topicWords(ep.Topic))
		if n >= 1 {
			candidates = append(candidates, scored{ep, n})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].overlap > candidates[j].overlap
	})

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]*types.ResearchEpisode, len(candidates))
	for i, c := range candidates {
		out[i] = c.ep
	}
	return out, nil
}

// topicWords lowercases and splits a topic into distinct words >= 3 chars.
func topicWords(topic string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(topic)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) >= 3 {
			words[w] = true
		}
	}
	return words
}

func overlapCount(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}
