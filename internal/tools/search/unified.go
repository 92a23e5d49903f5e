package search

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// minResults and the keyword-match ratio below define "poor" quality.
const (
	minResults       = 3
	minKeywordRatio  = 0.20
	maxRefineRounds  = 2
)

// Unified runs the parallel multi-source search with quality gating and
// query refinement.
type Unified struct {
	arxiv    *ArxivClient
	openAlex *OpenAlexClient
	refiner  *QueryRefiner
}

// NewUnified wires the two source clients and the refiner.
func NewUnified(timeout time.Duration, userAgent string, llmClient types.LLMClient) *Unified {
	return &Unified{
		arxiv:    NewArxivClient(timeout, userAgent),
		openAlex: NewOpenAlexClient(timeout, userAgent),
		refiner:  NewQueryRefiner(llmClient),
	}
}

// Search runs the full unified search: both sources in parallel, quick
// dedup, quality evaluation, and up to maxRefineRounds refinement attempts.
// A source failure degrades to an empty list; only a cancelled context is a
// hard error.
func (u *Unified) Search(ctx context.Context, query string, maxResults int, categories []string) ([]*types.Paper, error) {
	timer := logging.StartTimer(logging.CategorySearch, "unified search")
	defer timer.Stop()

	seen := newQuickDedup()
	papers := u.searchOnce(ctx, query, maxResults, categories, seen)
	tried := []string{query}

	if QualityOK(query, papers) {
		return papers, nil
	}
	logging.Search("poor quality for %q (%d results), refining", query, len(papers))

	for round := 0; round < maxRefineRounds; round++ {
		if err := ctx.Err(); err != nil {
			return papers, err
		}
		suggestions := u.refiner.Refine(ctx, query, tried)
		if len(suggestions) == 0 {
			break
		}

		improved := false
		for _, alt := range suggestions {
			tried = append(tried, alt)
			more := u.searchOnce(ctx, alt, maxResults, categories, seen)
			papers = append(papers, more...)
			if QualityOK(query, papers) {
				improved = true
				break
			}
		}
		if improved {
			break
		}
	}
	logging.Search("unified search %q -> %d unique papers after %d queries", query, len(papers), len(tried))
	return papers, nil
}

// searchOnce fans out to both sources, tolerating per-source failure, and
// returns only papers not already seen.
func (u *Unified) searchOnce(ctx context.Context, query string, maxResults int, categories []string, seen *quickDedup) []*types.Paper {
	var arxivResults, openAlexResults []*types.Paper

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := u.arxiv.Search(gctx, query, maxResults, categories)
		if err != nil {
			logging.SearchWarn("arxiv failed for %q: %v", query, err)
			return nil // degrade, never abort the sibling
		}
		arxivResults = results
		return nil
	})
	g.Go(func() error {
		results, err := u.openAlex.Search(gctx, query, maxResults)
		if err != nil {
			logging.SearchWarn("openalex failed for %q: %v", query, err)
			return nil
		}
		openAlexResults = results
		return nil
	})
	_ = g.Wait()

	merged := make([]*types.Paper, 0, len(arxivResults)+len(openAlexResults))
	for _, p := range append(arxivResults, openAlexResults...) {
		if seen.add(p) {
			merged = append(merged, p)
		}
	}
	return merged
}

// QualityOK implements the poor-quality predicate: fewer than minResults
// results, or fewer than minKeywordRatio of titles containing any
// significant query keyword.
func QualityOK(query string, papers []*types.Paper) bool {
	if len(papers) < minResults {
		return false
	}

	keywords := significantKeywords(query)
	if len(keywords) == 0 {
		return true
	}

	matching := 0
	for _, p := range papers {
		title := strings.ToLower(p.Title)
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				matching++
				break
			}
		}
	}
	return float64(matching)/float64(len(papers)) >= minKeywordRatio
}

func significantKeywords(query string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) >= 3 && !IsStopword(word) {
			out = append(out, word)
		}
	}
	return out
}

// quickDedup is the merge-time identity filter: arXiv id, DOI, and a
// title+first-author fingerprint.
type quickDedup struct {
	arxivIDs     map[string]bool
	dois         map[string]bool
	fingerprints map[string]bool
}

func newQuickDedup() *quickDedup {
	return &quickDedup{
		arxivIDs:     make(map[string]bool),
		dois:         make(map[string]bool),
		fingerprints: make(map[string]bool),
	}
}

// add returns true when the paper is new and records its identities.
func (d *quickDedup) add(p *types.Paper) bool {
	if p.ArxivID != "" {
		if d.arxivIDs[p.ArxivID] {
			return false
		}
	}
	doi := strings.ToLower(p.DOI)
	if doi != "" {
		if d.dois[doi] {
			return false
		}
	}
	fp := Fingerprint(p)
	if d.fingerprints[fp] {
		return false
	}

	if p.ArxivID != "" {
		d.arxivIDs[p.ArxivID] = true
	}
	if doi != "" {
		d.dois[doi] = true
	}
	d.fingerprints[fp] = true
	return true
}

// Fingerprint builds the fp:{title[:50]}|{first_author} identity hash.
func Fingerprint(p *types.Paper) string {
	title := strings.ToLower(p.Title)
	if len(title) > 50 {
		title = title[:50]
	}
	raw := "fp:" + title + "|" + strings.ToLower(p.FirstAuthor())
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
