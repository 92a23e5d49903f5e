package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryKVSetGet(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	if err := kv.SetEx(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}
}

func TestMemoryKVMissingKey(t *testing.T) {
	kv := NewMemoryKV()
	if _, err := kv.Get(context.Background(), "absent"); err != ErrNotFound {
		t.Errorf("Get missing key = %v, want ErrNotFound", err)
	}
}

func TestMemoryKVTTLExpiry(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	if err := kv.SetEx(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := kv.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("expired key returned %v, want ErrNotFound", err)
	}
}

func TestMemoryKVDel(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	kv.SetEx(ctx, "a", "1", 0)
	kv.SetEx(ctx, "b", "2", 0)
	if err := kv.Del(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := kv.Get(ctx, "a"); err != ErrNotFound {
		t.Error("deleted key a still present")
	}
}

func TestMemoryKVListOps(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	kv.LPush(ctx, "l", "first")
	kv.LPush(ctx, "l", "second")
	kv.LPush(ctx, "l", "third")

	// LPUSH semantics: newest first.
	got, err := kv.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"third", "second", "first"}
	if len(got) != len(want) {
		t.Fatalf("LRange returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LRange[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if err := kv.LTrim(ctx, "l", 0, 1); err != nil {
		t.Fatal(err)
	}
	got, _ = kv.LRange(ctx, "l", 0, -1)
	if len(got) != 2 || got[0] != "third" || got[1] != "second" {
		t.Errorf("after LTrim got %v", got)
	}
}

func TestMemoryKVLRangeOutOfBounds(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	kv.LPush(ctx, "l", "x")

	got, err := kv.LRange(ctx, "l", 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("out of range LRange = %v, want nil", got)
	}
}

func TestMemoryKVScan(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	kv.SetEx(ctx, KeyCheckpoint("s1", "planning"), "{}", 0)
	kv.SetEx(ctx, KeyCheckpoint("s1", "execution"), "{}", 0)
	kv.SetEx(ctx, KeySession("s1"), "{}", 0)

	keys, err := kv.Scan(ctx, "checkpoint:s1:*")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("Scan matched %d keys, want 2: %v", len(keys), keys)
	}
}
