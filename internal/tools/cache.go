package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"deepscholar/internal/logging"
	"deepscholar/internal/store"
)

// Default per-tool TTLs. Tools not listed fall back to DefaultTTL.
var toolTTLs = map[string]time.Duration{
	"search":       time.Hour,
	"hf_trending":  30 * time.Minute,
	"collect_url":  24 * time.Hour,
	"collect_urls": 24 * time.Hour,
}

// DefaultTTL applies to tools without a dedicated TTL entry.
const DefaultTTL = time.Hour

// CacheMetrics accumulates hit/miss counts.
type CacheMetrics struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns hits/(hits+misses), 0 when empty.
func (m CacheMetrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Cache memoizes tool results in the KV under
// tool_cache:{tool}:{md5(canonical_json(args))}. Writes are last-writer-wins
// and idempotent because keys encode the arguments.
type Cache struct {
	kv store.KV

	mu      sync.Mutex
	metrics CacheMetrics
}

// NewCache creates a cache layer over the given KV.
func NewCache(kv store.KV) *Cache {
	return &Cache{kv: kv}
}

// ArgsHash computes the canonical hash of a tool argument map. Go's JSON
// encoder sorts map keys, which gives us canonical form for free.
func ArgsHash(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte("{}")
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// TTLFor returns the cache TTL for a tool.
func TTLFor(tool string) time.Duration {
	if ttl, ok := toolTTLs[tool]; ok {
		return ttl
	}
	return DefaultTTL
}

// Execute runs a tool through the cache: a cacheable tool's JSON-encoded
// result is served from the KV when fresh, otherwise executed and written
// through.
func (c *Cache) Execute(ctx context.Context, reg *Registry, name string, args map[string]any) (*Result, error) {
	tool := reg.Get(name)
	if tool == nil || !tool.Cacheable {
		return reg.Execute(ctx, name, args)
	}

	key := store.KeyToolCache(name, ArgsHash(args))
	if raw, err := c.kv.Get(ctx, key); err == nil {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err == nil {
			c.record(true)
			logging.CacheDebug("hit %s", key)
			return &Result{ToolName: name, Value: value, CacheHit: true}, nil
		}
		// Corrupt entry: fall through to live execution.
		logging.CacheDebug("corrupt entry %s, re-executing", key)
	}
	c.record(false)

	result, err := reg.Execute(ctx, name, args)
	if err != nil {
		return result, err
	}

	if data, merr := json.Marshal(result.Value); merr == nil {
		if werr := c.kv.SetEx(ctx, key, string(data), TTLFor(name)); werr != nil {
			logging.CacheDebug("write-through failed for %s: %v", key, werr)
		}
	}
	return result, nil
}

// Metrics returns a snapshot of hit/miss counters.
func (c *Cache) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Cache) record(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.metrics.Hits++
	} else {
		c.metrics.Misses++
	}
}
