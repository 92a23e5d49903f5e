package dedup

import (
	"testing"

	"deepscholar/internal/types"
)

func TestAddDropsRepeatedArxivID(t *testing.T) {
	d := New()
	if !d.Add(&types.Paper{ArxivID: "1706.03762", Title: "Attention Is All You Need"}) {
		t.Fatal("first paper rejected")
	}
	// Same arXiv id under a different title is still the same paper.
	if d.Add(&types.Paper{ArxivID: "1706.03762", Title: "Attention (v2)"}) {
		t.Error("duplicate arXiv id accepted")
	}
}

func TestAddNormalizesDOI(t *testing.T) {
	d := New()
	d.Add(&types.Paper{DOI: "10.1038/nature14539", Title: "Deep Learning X"})

	variants := []string{
		"https://doi.org/10.1038/nature14539",
		"doi:10.1038/NATURE14539",
		"10.1038/Nature14539",
	}
	for _, doi := range variants {
		if d.Add(&types.Paper{DOI: doi, Title: "completely different title here"}) {
			t.Errorf("DOI variant %q not recognized as duplicate", doi)
		}
	}
}

func TestAddMatchesFingerprint(t *testing.T) {
	d := New()
	d.Add(&types.Paper{Title: "BERT Pre-training", Authors: []string{"Devlin", "Chang"}})
	if d.Add(&types.Paper{Title: "bert pre-training", Authors: []string{"devlin"}}) {
		t.Error("title+first-author fingerprint missed a case-variant duplicate")
	}
}

func TestAddFuzzyTitleMatch(t *testing.T) {
	d := New()
	d.Add(&types.Paper{Title: "Language Models are Few-Shot Learners", Authors: []string{"Brown"}})

	// Near-identical title, different author list: caught by the fuzzy level.
	if d.Add(&types.Paper{Title: "Language Models are Few Shot Learners", Authors: []string{"Mann"}}) {
		t.Error("fuzzy title match missed a near-duplicate")
	}
	// A genuinely different title passes.
	if !d.Add(&types.Paper{Title: "Retrieval Augmented Generation for NLP", Authors: []string{"Lewis"}}) {
		t.Error("distinct title rejected")
	}
}

func TestFilterIdenticalBatch(t *testing.T) {
	d := New()
	papers := make([]*types.Paper, 6)
	for i := range papers {
		papers[i] = &types.Paper{ArxivID: "2005.14165", Title: "GPT-3", Authors: []string{"Brown"}}
	}

	unique := d.Filter(papers)
	if len(unique) != 1 {
		t.Fatalf("Filter kept %d papers, want 1", len(unique))
	}
	accepted, dropped := d.Stats()
	if accepted != 1 || dropped != 5 {
		t.Errorf("Stats = (%d, %d), want (1, 5)", accepted, dropped)
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	d := New()
	unique := d.Filter([]*types.Paper{
		{ArxivID: "1", Title: "graph neural networks survey"},
		{ArxivID: "2", Title: "diffusion models for image synthesis"},
		{ArxivID: "1", Title: "graph neural networks survey"},
		{ArxivID: "3", Title: "sparse mixture of experts routing"},
	})
	if len(unique) != 3 {
		t.Fatalf("got %d unique papers, want 3", len(unique))
	}
	for i, want := range []string{"1", "2", "3"} {
		if unique[i].ArxivID != want {
			t.Errorf("unique[%d].ArxivID = %s, want %s", i, unique[i].ArxivID, want)
		}
	}
}

func TestLCSRatio(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"abc", "abc", 1.0, 1.0},
		{"abc", "xyz", 0.0, 0.0},
		{"language models", "language model", 0.9, 1.0},
	}
	for _, tt := range tests {
		got := lcsRatio(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("lcsRatio(%q, %q) = %.3f, want in [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestAddNilPaper(t *testing.T) {
	d := New()
	if d.Add(nil) {
		t.Error("nil paper accepted")
	}
}
