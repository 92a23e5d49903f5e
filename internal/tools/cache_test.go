package tools

import (
	"context"
	"testing"
	"time"

	"deepscholar/internal/store"
)

func countingTool(name string, cacheable bool, calls *int) *Tool {
	return &Tool{
		Name:      name,
		Cacheable: cacheable,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			*calls++
			return map[string]any{"echo": args["q"]}, nil
		},
	}
}

func TestArgsHashCanonical(t *testing.T) {
	a := ArgsHash(map[string]any{"query": "x", "max_results": 10})
	b := ArgsHash(map[string]any{"max_results": 10, "query": "x"})
	if a != b {
		t.Error("hash depends on key order")
	}
	c := ArgsHash(map[string]any{"query": "y", "max_results": 10})
	if a == c {
		t.Error("different args gave same hash")
	}
}

func TestCacheServesSecondCall(t *testing.T) {
	kv := store.NewMemoryKV()
	cache := NewCache(kv)
	reg := NewRegistry()
	calls := 0
	reg.MustRegister(countingTool("search", true, &calls))

	args := map[string]any{"q": "transformers"}
	ctx := context.Background()

	first, err := cache.Execute(ctx, reg, "search", args)
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheHit {
		t.Error("first call should miss")
	}

	second, err := cache.Execute(ctx, reg, "search", args)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Error("second call should hit")
	}
	if calls != 1 {
		t.Errorf("tool executed %d times, want 1", calls)
	}

	m := cache.Metrics()
	if m.Hits != 1 || m.Misses != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if m.HitRate() != 0.5 {
		t.Errorf("hit rate = %v", m.HitRate())
	}
}

func TestCacheBypassesNonCacheable(t *testing.T) {
	kv := store.NewMemoryKV()
	cache := NewCache(kv)
	reg := NewRegistry()
	calls := 0
	reg.MustRegister(countingTool("live", false, &calls))

	ctx := context.Background()
	args := map[string]any{"q": "x"}
	cache.Execute(ctx, reg, "live", args)
	cache.Execute(ctx, reg, "live", args)
	if calls != 2 {
		t.Errorf("non-cacheable tool executed %d times, want 2", calls)
	}
	if m := cache.Metrics(); m.Hits != 0 || m.Misses != 0 {
		t.Errorf("bypass should not touch metrics: %+v", m)
	}
}

func TestCacheCorruptEntryReexecutes(t *testing.T) {
	kv := store.NewMemoryKV()
	cache := NewCache(kv)
	reg := NewRegistry()
	calls := 0
	reg.MustRegister(countingTool("search", true, &calls))

	ctx := context.Background()
	args := map[string]any{"q": "x"}
	key := store.KeyToolCache("search", ArgsHash(args))
	kv.SetEx(ctx, key, "{not json", 0)

	result, err := cache.Execute(ctx, reg, "search", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.CacheHit {
		t.Error("corrupt entry treated as hit")
	}
	if calls != 1 {
		t.Errorf("tool executed %d times, want 1", calls)
	}
}

func TestTTLFor(t *testing.T) {
	if TTLFor("search") != time.Hour {
		t.Error("search TTL")
	}
	if TTLFor("collect_url") != 24*time.Hour {
		t.Error("collect_url TTL")
	}
	if TTLFor("unknown_tool") != DefaultTTL {
		t.Error("fallback TTL")
	}
}
