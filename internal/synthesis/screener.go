// Package synthesis holds the phases that turn a raw paper list into a
// grounded report: screening, evidence extraction, clustering, claim
// generation, gap mining, citation audit, and writing.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// DefaultScreeningBatch is the LLM batch size for screening.
const DefaultScreeningBatch = 15

// Screener scores papers against the topic in LLM batches.
type Screener struct {
	llm       types.LLMClient
	batchSize int
}

// NewScreener builds a screener.
func NewScreener(llmClient types.LLMClient, batchSize int) *Screener {
	if batchSize <= 0 {
		batchSize = DefaultScreeningBatch
	}
	return &Screener{llm: llmClient, batchSize: batchSize}
}

type screenVerdict struct {
	Index     int     `json:"index"`
	Tier      string  `json:"tier"`
	Reason    string  `json:"reason"`
	Rationale string  `json:"rationale"`
	Score     float64 `json:"score"`
}

// Screen produces one ScreeningRecord per paper and stamps relevance
// scores. Batches run serially; a bad LLM reply defaults the whole batch to
// background/include.
func (s *Screener) Screen(ctx context.Context, topic string, papers []*types.Paper) ([]*types.ScreeningRecord, error) {
	records := make([]*types.ScreeningRecord, 0, len(papers))
	for start := 0; start < len(papers); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		end := min(start+s.batchSize, len(papers))
		batch := papers[start:end]
		records = append(records, s.screenBatch(ctx, topic, batch)...)
	}
	return records, nil
}

// ScoreOnly is the quick-path analysis: it assigns relevance scores but
// discards the screening records.
func (s *Screener) ScoreOnly(ctx context.Context, topic string, papers []*types.Paper) error {
	_, err := s.Screen(ctx, topic, papers)
	return err
}

func (s *Screener) screenBatch(ctx context.Context, topic string, batch []*types.Paper) []*types.ScreeningRecord {
	verdicts := s.askLLM(ctx, topic, batch)

	records := make([]*types.ScreeningRecord, len(batch))
	for i, p := range batch {
		rec := &types.ScreeningRecord{
			PaperID: p.ID,
			Tier:    types.TierBackground,
			Include: true,
			Reason:  "unscreened",
			Score:   5,
		}
		if v, ok := verdicts[i]; ok {
			rec.Tier = normalizeTier(v.Tier)
			rec.Include = rec.Tier != types.TierExclude
			rec.Reason = v.Reason
			rec.Rationale = v.Rationale
			rec.Score = clampScore(v.Score)
		}
		p.SetScore(rec.Score)
		if rec.Include && p.Status == types.StatusRaw {
			p.Status = types.StatusScreened
		}
		records[i] = rec
	}
	return records
}

// askLLM returns verdicts keyed by batch index. An unusable reply yields an
// empty map so every paper falls back to the error default.
func (s *Screener) askLLM(ctx context.Context, topic string, batch []*types.Paper) map[int]screenVerdict {
	if s.llm == nil {
		return nil
	}

	var b strings.Builder
	for i, p := range batch {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i, p.Title, truncate(p.Abstract, 600))
	}

	system := "You screen academic papers for a literature review on: " + topic + "\n" +
		"For each paper return a JSON array entry {\"index\", \"tier\", \"reason\", \"rationale\", \"score\"}.\n" +
		"tier is core, background, or exclude. score is relevance 0-10. reason is a short snake_case code. rationale is one sentence."

	reply, err := s.llm.CompleteJSON(ctx, system, b.String())
	if err != nil {
		logging.Get(logging.CategoryScreening).Error("screening batch failed: %v", err)
		return nil
	}

	var verdicts []screenVerdict
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &verdicts); err != nil {
		logging.Get(logging.CategoryScreening).Warn("screening reply unparsable, using error fallback: %v", err)
		return s.errorFallback(len(batch))
	}

	out := make(map[int]screenVerdict, len(verdicts))
	for _, v := range verdicts {
		if v.Index >= 0 && v.Index < len(batch) {
			out[v.Index] = v
		}
	}
	return out
}

// errorFallback marks a whole batch background/include with the
// error_fallback reason.
func (s *Screener) errorFallback(n int) map[int]screenVerdict {
	out := make(map[int]screenVerdict, n)
	for i := 0; i < n; i++ {
		out[i] = screenVerdict{
			Index:  i,
			Tier:   string(types.TierBackground),
			Reason: "error_fallback",
			Score:  5,
		}
	}
	return out
}

func normalizeTier(raw string) types.ScreeningTier {
	switch types.ScreeningTier(strings.ToLower(strings.TrimSpace(raw))) {
	case types.TierCore:
		return types.TierCore
	case types.TierExclude:
		return types.TierExclude
	default:
		return types.TierBackground
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
