package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deepscholar/internal/types"
)

const dailyPapersURL = "https://huggingface.co/api/daily_papers"

type hfDailyEntry struct {
	Paper struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		PublishedAt string `json:"publishedAt"`
		Upvotes     int    `json:"upvotes"`
	} `json:"paper"`
}

// HFTrending fetches the Hugging Face daily papers list. Entries carry an
// arXiv id, so downstream dedup treats them like arXiv results.
func (c *Collector) HFTrending(ctx context.Context, limit int) ([]*types.Paper, error) {
	if limit <= 0 {
		limit = 10
	}

	body, err := c.fetch(ctx, dailyPapersURL)
	if err != nil {
		return nil, fmt.Errorf("hf daily papers: %w", err)
	}

	var entries []hfDailyEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("hf daily papers parse: %w", err)
	}

	papers := make([]*types.Paper, 0, limit)
	for _, e := range entries {
		if len(papers) >= limit {
			break
		}
		if e.Paper.Title == "" {
			continue
		}
		p := &types.Paper{
			Title:    e.Paper.Title,
			Abstract: e.Paper.Summary,
			ArxivID:  e.Paper.ID,
			Source:   "hf_trending",
			Status:   types.StatusRaw,
		}
		if e.Paper.ID != "" {
			p.AbsURL = "https://arxiv.org/abs/" + e.Paper.ID
			p.PDFURL = "https://arxiv.org/pdf/" + e.Paper.ID
		}
		for _, a := range e.Paper.Authors {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		if t, err := time.Parse(time.RFC3339, e.Paper.PublishedAt); err == nil {
			p.Published = t
		}
		papers = append(papers, p)
	}
	return papers, nil
}
