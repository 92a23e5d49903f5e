package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashEngineDeterministic(t *testing.T) {
	e := NewHashEngine(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "sparse attention for long documents")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "sparse attention for long documents")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical texts embedded differently")
		}
	}
}

func TestHashEngineNormalized(t *testing.T) {
	e := NewHashEngine(128)
	vec, err := e.Embed(context.Background(), "graph neural networks on molecules")
	if err != nil {
		t.Fatal(err)
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if math.Abs(mag-1.0) > 1e-5 {
		t.Errorf("vector magnitude = %v, want 1", mag)
	}
}

func TestHashEngineEmptyText(t *testing.T) {
	e := NewHashEngine(32)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("empty text produced non-zero vector")
		}
	}
}

func TestHashEngineDefaultDims(t *testing.T) {
	e := NewHashEngine(0)
	vec, _ := e.Embed(context.Background(), "x y")
	if len(vec) != 256 {
		t.Errorf("default dims = %d, want 256", len(vec))
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors = %v, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors = %v, want 0", got)
	}
}

func TestSimilarTextsCloserThanUnrelated(t *testing.T) {
	e := NewHashEngine(256)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "transformer attention language models")
	b, _ := e.Embed(ctx, "attention transformer large language models")
	c, _ := e.Embed(ctx, "soil erosion in coastal wetlands")

	if CosineSimilarity(a, b) <= CosineSimilarity(a, c) {
		t.Error("related texts should be closer than unrelated ones")
	}
}
