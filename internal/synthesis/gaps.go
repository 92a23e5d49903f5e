package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// maxTaxonomyHoles caps how many empty cells turn into directions so sparse
// matrices do not flood the report.
const maxTaxonomyHoles = 5

// GapMiner derives future directions from three sources: limitation spans,
// contradictory results on shared dataset/metric pairs, and empty taxonomy
// cells.
type GapMiner struct{}

// NewGapMiner builds a miner.
func NewGapMiner() *GapMiner {
	return &GapMiner{}
}

// Mine produces the future-direction list.
func (m *GapMiner) Mine(cards map[string]*types.StudyCard, spans map[string]*types.EvidenceSpan, matrix *types.TaxonomyMatrix) []*types.FutureDirection {
	var directions []*types.FutureDirection
	directions = append(directions, m.fromLimitations(cards, spans)...)
	directions = append(directions, m.fromContradictions(cards, spans)...)
	directions = append(directions, m.fromTaxonomyHoles(matrix)...)
	logging.Get(logging.CategoryReport).Info("mined %d future directions", len(directions))
	return directions
}

// fromLimitations groups limitation spans by shared keywords; each group of
// two or more papers becomes an open problem.
func (m *GapMiner) fromLimitations(cards map[string]*types.StudyCard, spans map[string]*types.EvidenceSpan) []*types.FutureDirection {
	type limitation struct {
		spanID string
		words  map[string]bool
	}
	var limits []limitation
	for _, card := range cards {
		for _, spanID := range card.EvidenceSpanIDs {
			span, ok := spans[spanID]
			if !ok || span.Field != types.FieldLimitation {
				continue
			}
			limits = append(limits, limitation{spanID: spanID, words: contentWords(span.Snippet)})
		}
	}
	sort.Slice(limits, func(i, j int) bool { return limits[i].spanID < limits[j].spanID })

	var directions []*types.FutureDirection
	used := map[string]bool{}
	for i, a := range limits {
		if used[a.spanID] {
			continue
		}
		group := []string{a.spanID}
		var shared []string
		for _, b := range limits[i+1:] {
			if used[b.spanID] {
				continue
			}
			overlap := wordOverlap(a.words, b.words)
			if len(overlap) >= 2 {
				group = append(group, b.spanID)
				used[b.spanID] = true
				if shared == nil {
					shared = overlap
				}
			}
		}
		if len(group) < 2 {
			continue
		}
		used[a.spanID] = true
		directions = append(directions, &types.FutureDirection{
			Type:        types.DirectionOpenProblem,
			Title:       "Recurring limitation: " + strings.Join(shared, ", "),
			Description: fmt.Sprintf("%d papers report related limitations around %s; addressing this is an open problem.", len(group), strings.Join(shared, ", ")),
			SpanIDs:     group,
			Source:      types.GapLimitationCluster,
		})
	}
	return directions
}

// fromContradictions flags dataset+metric pairs where different papers
// report result spans, a candidate for a controlled comparison.
func (m *GapMiner) fromContradictions(cards map[string]*types.StudyCard, spans map[string]*types.EvidenceSpan) []*types.FutureDirection {
	type pair struct{ dataset, metric string }
	resultsBy := map[pair][]string{}
	for paperID, card := range cards {
		if card.Results == "" {
			continue
		}
		for _, dataset := range card.Datasets {
			for _, metric := range card.Metrics {
				key := pair{strings.ToLower(dataset), strings.ToLower(metric)}
				resultsBy[key] = append(resultsBy[key], paperID)
			}
		}
	}

	keys := make([]pair, 0, len(resultsBy))
	for k := range resultsBy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].dataset != keys[j].dataset {
			return keys[i].dataset < keys[j].dataset
		}
		return keys[i].metric < keys[j].metric
	})

	var directions []*types.FutureDirection
	for _, key := range keys {
		papers := resultsBy[key]
		if len(papers) < 2 {
			continue
		}
		sort.Strings(papers)
		spanIDs := resultSpans(papers, cards, spans)
		directions = append(directions, &types.FutureDirection{
			Type:        types.DirectionNextExperiment,
			Title:       fmt.Sprintf("Reconcile results on %s / %s", key.dataset, key.metric),
			Description: fmt.Sprintf("%d papers report results on %s measured by %s; a controlled comparison would resolve the discrepancies.", len(papers), key.dataset, key.metric),
			SpanIDs:     spanIDs,
			Source:      types.GapContradictoryResults,
		})
	}
	return directions
}

func (m *GapMiner) fromTaxonomyHoles(matrix *types.TaxonomyMatrix) []*types.FutureDirection {
	if matrix == nil {
		return nil
	}
	var directions []*types.FutureDirection
	for _, cell := range EmptyCells(matrix) {
		if len(directions) >= maxTaxonomyHoles {
			break
		}
		directions = append(directions, &types.FutureDirection{
			Type:        types.DirectionOpportunity,
			Title:       fmt.Sprintf("Unexplored: %s on %s (%s)", cell.Theme, cell.Dataset, cell.Metric),
			Description: fmt.Sprintf("No surveyed paper evaluates %s on %s with %s.", cell.Theme, cell.Dataset, cell.Metric),
			Source:      types.GapTaxonomyHole,
		})
	}
	return directions
}

func resultSpans(paperIDs []string, cards map[string]*types.StudyCard, spans map[string]*types.EvidenceSpan) []string {
	var out []string
	for _, paperID := range paperIDs {
		card, ok := cards[paperID]
		if !ok {
			continue
		}
		for _, spanID := range card.EvidenceSpanIDs {
			if span, ok := spans[spanID]; ok && span.Field == types.FieldResult {
				out = append(out, spanID)
			}
		}
	}
	return out
}

func contentWords(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) >= 5 {
			words[w] = true
		}
	}
	return words
}

func wordOverlap(a, b map[string]bool) []string {
	var shared []string
	for w := range a {
		if b[w] {
			shared = append(shared, w)
		}
	}
	sort.Strings(shared)
	return shared
}
