package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// ClaimGenerator derives atomic, span-backed claims per cluster.
type ClaimGenerator struct {
	llm         types.LLMClient
	concurrency int
}

// NewClaimGenerator builds a generator with the given per-cluster
// concurrency bound.
func NewClaimGenerator(llmClient types.LLMClient, concurrency int) *ClaimGenerator {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &ClaimGenerator{llm: llmClient, concurrency: concurrency}
}

// Generate produces claims for every cluster. Claims referencing unknown
// span ids are dropped, never repaired, so the span invariant holds by
// construction.
func (g *ClaimGenerator) Generate(ctx context.Context, clusters []*types.Cluster, cards map[string]*types.StudyCard, spans map[string]*types.EvidenceSpan) ([]*types.Claim, error) {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	var mu sync.Mutex
	var all []*types.Claim
	for _, cluster := range clusters {
		eg.Go(func() error {
			claims, err := g.generateFor(gctx, cluster, cards, spans)
			if err != nil {
				logging.Get(logging.CategoryClaims).Error("claim generation failed for cluster %s: %v", cluster.ID, err)
				return nil
			}
			mu.Lock()
			all = append(all, claims...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return all, err
	}

	// Concurrent generation makes arrival order nondeterministic.
	sort.Slice(all, func(i, j int) bool {
		if all[i].ThemeID != all[j].ThemeID {
			return all[i].ThemeID < all[j].ThemeID
		}
		return all[i].Text < all[j].Text
	})
	return all, nil
}

type rawClaim struct {
	Text     string   `json:"text"`
	SpanIDs  []string `json:"span_ids"`
	Salience float64  `json:"salience"`
}

func (g *ClaimGenerator) generateFor(ctx context.Context, cluster *types.Cluster, cards map[string]*types.StudyCard, spans map[string]*types.EvidenceSpan) ([]*types.Claim, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("no llm client")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\n%s\n\nEvidence:\n", cluster.Name, cluster.Description)
	listed := 0
	for _, paperID := range cluster.PaperIDs {
		card, ok := cards[paperID]
		if !ok {
			continue
		}
		for _, spanID := range card.EvidenceSpanIDs {
			span, ok := spans[spanID]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "[%s] (%s) %q\n", span.SpanID, span.Field, span.Snippet)
			listed++
		}
	}
	if listed == 0 {
		return nil, nil
	}

	system := "You write atomic factual claims for a literature review theme.\n" +
		"Return a JSON array of {\"text\", \"span_ids\", \"salience\"}.\n" +
		"Each claim states ONE finding, cites only the bracketed span ids shown as evidence, and carries a salience in [0,1] for how central it is to the theme."

	reply, err := g.llm.CompleteJSON(ctx, system, b.String())
	if err != nil {
		return nil, err
	}

	var raws []rawClaim
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &raws); err != nil {
		return nil, fmt.Errorf("claim reply unparsable: %w", err)
	}

	var claims []*types.Claim
	for _, rc := range raws {
		text := strings.TrimSpace(rc.Text)
		if text == "" {
			continue
		}
		var valid []string
		for _, id := range rc.SpanIDs {
			if _, ok := spans[id]; ok {
				valid = append(valid, id)
			}
		}
		if len(valid) == 0 {
			logging.Get(logging.CategoryClaims).Warn("dropping claim with no resolvable spans: %q", text)
			continue
		}
		claims = append(claims, &types.Claim{
			ID:              uuid.NewString(),
			Text:            text,
			EvidenceSpanIDs: valid,
			ThemeID:         cluster.ID,
			Salience:        clampUnit(rc.Salience),
		})
	}
	return claims, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
