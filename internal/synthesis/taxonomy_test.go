package synthesis

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"deepscholar/internal/types"
)

func taxonomyFixture() ([]*types.Cluster, map[string]*types.StudyCard) {
	clusters := []*types.Cluster{
		{ID: "c1", Name: "Sparse Attention", PaperIDs: []string{"arxiv:1", "arxiv:2"}},
		{ID: "c2", Name: "Linear Attention", PaperIDs: []string{"arxiv:3"}},
	}
	cards := map[string]*types.StudyCard{
		"arxiv:1": {PaperID: "arxiv:1", Method: "sliding window", Datasets: []string{"WikiText"}, Metrics: []string{"perplexity"}},
		"arxiv:2": {PaperID: "arxiv:2", Method: "global tokens", Datasets: []string{"WikiText", "arXiv-long"}, Metrics: []string{"perplexity"}},
		"arxiv:3": {PaperID: "arxiv:3", Method: "kernel approximation", Datasets: []string{"WikiText"}, Metrics: []string{"throughput"}},
		"arxiv:9": {PaperID: "arxiv:9", Method: "orphan", Datasets: []string{"ImageNet"}, Metrics: []string{"top-1"}},
	}
	return clusters, cards
}

func TestBuildTaxonomy(t *testing.T) {
	clusters, cards := taxonomyFixture()
	m := BuildTaxonomy(clusters, cards)

	if diff := cmp.Diff([]string{"Linear Attention", "Sparse Attention"}, m.Themes); diff != "" {
		t.Errorf("themes (-want +got):\n%s", diff)
	}
	// arxiv:9 belongs to no cluster, so ImageNet and top-1 never enter the axes.
	if diff := cmp.Diff([]string{"WikiText", "arXiv-long"}, m.Datasets); diff != "" {
		t.Errorf("datasets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"perplexity", "throughput"}, m.Metrics); diff != "" {
		t.Errorf("metrics (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"global tokens", "kernel approximation", "sliding window"}, m.MethodFamilies); diff != "" {
		t.Errorf("method families (-want +got):\n%s", diff)
	}

	cell := types.TaxonomyCell{Theme: "Sparse Attention", Dataset: "WikiText", Metric: "perplexity"}
	if diff := cmp.Diff([]string{"arxiv:1", "arxiv:2"}, m.Cells[cell]); diff != "" {
		t.Errorf("cell papers (-want +got):\n%s", diff)
	}
	if got := m.Cells[types.TaxonomyCell{Theme: "Linear Attention", Dataset: "WikiText", Metric: "throughput"}]; len(got) != 1 || got[0] != "arxiv:3" {
		t.Errorf("linear cell = %v", got)
	}
}

func TestEmptyCells(t *testing.T) {
	clusters, cards := taxonomyFixture()
	m := BuildTaxonomy(clusters, cards)

	empty := EmptyCells(m)
	// 2 themes x 2 datasets x 2 metrics = 8 combinations, 4 filled... check
	// total minus filled.
	if len(empty) != 8-len(m.Cells) {
		t.Fatalf("got %d empty cells, want %d", len(empty), 8-len(m.Cells))
	}
	for _, cell := range empty {
		if len(m.Cells[cell]) != 0 {
			t.Errorf("cell %v reported empty but has papers", cell)
		}
	}
	// Axis-order enumeration: first empty cell uses the first theme.
	if len(empty) > 0 && empty[0].Theme != "Linear Attention" {
		t.Errorf("first empty cell theme = %q", empty[0].Theme)
	}
}

func TestBuildTaxonomyNoCards(t *testing.T) {
	m := BuildTaxonomy([]*types.Cluster{{ID: "c", Name: "Theme"}}, map[string]*types.StudyCard{})
	if len(m.Datasets) != 0 || len(m.Metrics) != 0 || len(m.Cells) != 0 {
		t.Errorf("expected empty axes, got %+v", m)
	}
	if len(EmptyCells(m)) != 0 {
		t.Error("no datasets or metrics should yield no enumerable cells")
	}
}
