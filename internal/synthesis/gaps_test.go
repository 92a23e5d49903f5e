package synthesis

import (
	"strings"
	"testing"

	"deepscholar/internal/types"
)

func TestMineLimitationClusters(t *testing.T) {
	spanA := &types.EvidenceSpan{SpanID: "arxiv:1#lim1", PaperID: "arxiv:1", Field: types.FieldLimitation,
		Snippet: "evaluation limited to English corpora"}
	spanB := &types.EvidenceSpan{SpanID: "arxiv:2#lim2", PaperID: "arxiv:2", Field: types.FieldLimitation,
		Snippet: "our evaluation is limited to English benchmarks"}
	spanC := &types.EvidenceSpan{SpanID: "arxiv:3#lim3", PaperID: "arxiv:3", Field: types.FieldLimitation,
		Snippet: "requires expensive hardware accelerators"}

	cards := map[string]*types.StudyCard{
		"arxiv:1": {PaperID: "arxiv:1", EvidenceSpanIDs: []string{spanA.SpanID}},
		"arxiv:2": {PaperID: "arxiv:2", EvidenceSpanIDs: []string{spanB.SpanID}},
		"arxiv:3": {PaperID: "arxiv:3", EvidenceSpanIDs: []string{spanC.SpanID}},
	}
	spans := map[string]*types.EvidenceSpan{
		spanA.SpanID: spanA, spanB.SpanID: spanB, spanC.SpanID: spanC,
	}

	dirs := NewGapMiner().Mine(cards, spans, nil)

	var openProblems []*types.FutureDirection
	for _, d := range dirs {
		if d.Source == types.GapLimitationCluster {
			openProblems = append(openProblems, d)
		}
	}
	if len(openProblems) != 1 {
		t.Fatalf("got %d limitation clusters, want 1", len(openProblems))
	}
	d := openProblems[0]
	if d.Type != types.DirectionOpenProblem {
		t.Errorf("type = %q", d.Type)
	}
	if len(d.SpanIDs) != 2 {
		t.Errorf("span ids = %v, want the two English-limitation spans", d.SpanIDs)
	}
	if !strings.Contains(d.Title, "english") {
		t.Errorf("title = %q, want shared keyword", d.Title)
	}
}

func TestMineContradictions(t *testing.T) {
	resA := &types.EvidenceSpan{SpanID: "arxiv:1#res", PaperID: "arxiv:1", Field: types.FieldResult, Snippet: "F1 of 91.2"}
	resB := &types.EvidenceSpan{SpanID: "arxiv:2#res", PaperID: "arxiv:2", Field: types.FieldResult, Snippet: "F1 of 88.7"}

	cards := map[string]*types.StudyCard{
		"arxiv:1": {PaperID: "arxiv:1", Results: "F1 of 91.2", Datasets: []string{"SQuAD"}, Metrics: []string{"F1"},
			EvidenceSpanIDs: []string{resA.SpanID}},
		"arxiv:2": {PaperID: "arxiv:2", Results: "F1 of 88.7", Datasets: []string{"squad"}, Metrics: []string{"f1"},
			EvidenceSpanIDs: []string{resB.SpanID}},
		// No Results text, so it never enters the comparison.
		"arxiv:3": {PaperID: "arxiv:3", Datasets: []string{"SQuAD"}, Metrics: []string{"F1"}},
	}
	spans := map[string]*types.EvidenceSpan{resA.SpanID: resA, resB.SpanID: resB}

	dirs := NewGapMiner().Mine(cards, spans, nil)

	var experiments []*types.FutureDirection
	for _, d := range dirs {
		if d.Source == types.GapContradictoryResults {
			experiments = append(experiments, d)
		}
	}
	if len(experiments) != 1 {
		t.Fatalf("got %d contradiction directions, want 1", len(experiments))
	}
	d := experiments[0]
	if d.Type != types.DirectionNextExperiment {
		t.Errorf("type = %q", d.Type)
	}
	if !strings.Contains(d.Title, "squad") || !strings.Contains(d.Title, "f1") {
		t.Errorf("title = %q", d.Title)
	}
	if len(d.SpanIDs) != 2 {
		t.Errorf("span ids = %v, want both result spans", d.SpanIDs)
	}
}

func TestMineTaxonomyHolesCapped(t *testing.T) {
	matrix := &types.TaxonomyMatrix{
		Themes:   []string{"A", "B"},
		Datasets: []string{"d1", "d2"},
		Metrics:  []string{"m1", "m2"},
		Cells: map[types.TaxonomyCell][]string{
			{Theme: "A", Dataset: "d1", Metric: "m1"}: {"arxiv:1"},
		},
	}

	dirs := NewGapMiner().Mine(map[string]*types.StudyCard{}, map[string]*types.EvidenceSpan{}, matrix)

	var holes []*types.FutureDirection
	for _, d := range dirs {
		if d.Source == types.GapTaxonomyHole {
			holes = append(holes, d)
		}
	}
	// 7 empty cells exist but only maxTaxonomyHoles surface.
	if len(holes) != maxTaxonomyHoles {
		t.Fatalf("got %d holes, want %d", len(holes), maxTaxonomyHoles)
	}
	if holes[0].Type != types.DirectionOpportunity {
		t.Errorf("type = %q", holes[0].Type)
	}
	if !strings.Contains(holes[0].Title, "A on d1 (m2)") {
		t.Errorf("first hole title = %q", holes[0].Title)
	}
}

func TestMineNothing(t *testing.T) {
	dirs := NewGapMiner().Mine(map[string]*types.StudyCard{}, map[string]*types.EvidenceSpan{}, nil)
	if len(dirs) != 0 {
		t.Errorf("got %d directions from empty input", len(dirs))
	}
}

func TestContentWordOverlap(t *testing.T) {
	a := contentWords("Evaluation limited to English corpora, sadly.")
	if a["to"] || a["sadly"] == false {
		t.Errorf("content words = %v", a)
	}
	b := contentWords("evaluation of English datasets")
	got := wordOverlap(a, b)
	if len(got) != 2 || got[0] != "english" || got[1] != "evaluation" {
		t.Errorf("overlap = %v", got)
	}
}
