// Package memory implements the three-layer memory fabric: working memory
// (conversations, write-through to KV), episodic memory (past research
// sessions) and procedural memory (user preferences), plus the unified
// MemoryContext the orchestrator and planner consume.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"deepscholar/internal/logging"
	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

// WorkingMemory keeps conversations in-process with write-through to the KV
// under conversation:{id} on a sliding TTL.
type WorkingMemory struct {
	kv store.KV

	mu    sync.RWMutex
	cache map[string]*types.Conversation
}

// NewWorkingMemory creates a working-memory layer over the given KV.
func NewWorkingMemory(kv store.KV) *WorkingMemory {
	return &WorkingMemory{kv: kv, cache: make(map[string]*types.Conversation)}
}

// Get loads a conversation, preferring the in-process copy.
func (w *WorkingMemory) Get(ctx context.Context, id string) (*types.Conversation, error) {
	w.mu.RLock()
	if conv, ok := w.cache[id]; ok {
		w.mu.RUnlock()
		return conv, nil
	}
	w.mu.RUnlock()

	raw, err := w.kv.Get(ctx, store.KeyConversation(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}

	var conv types.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("corrupt conversation %s: %w", id, err)
	}

	w.mu.Lock()
	w.cache[id] = &conv
	w.mu.Unlock()
	return &conv, nil
}

// Save writes the conversation through to the KV and refreshes the sliding
// TTL. Transient fields (pending plan, current request) are dropped by the
// JSON encoding.
func (w *WorkingMemory) Save(ctx context.Context, conv *types.Conversation) error {
	conv.UpdatedAt = time.Now()

	w.mu.Lock()
	w.cache[conv.ID] = conv
	w.mu.Unlock()

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", conv.ID, err)
	}
	if err := w.kv.SetEx(ctx, store.KeyConversation(conv.ID), string(data), store.TTLConversation); err != nil {
		return fmt.Errorf("persist conversation %s: %w", conv.ID, err)
	}
	logging.MemoryDebug("conversation %s saved (%d messages, state=%s)", conv.ID, len(conv.Messages), conv.State)
	return nil
}

// Evict drops the in-process copy and the KV snapshot.
func (w *WorkingMemory) Evict(ctx context.Context, id string) error {
	w.mu.Lock()
	delete(w.cache, id)
	w.mu.Unlock()
	return w.kv.Del(ctx, store.KeyConversation(id))
}
