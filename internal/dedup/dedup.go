// Package dedup removes duplicate papers across all steps of a plan. State
// is confined to one plan and never shared.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"deepscholar/internal/types"
)

// fuzzyThreshold is the minimum LCS similarity for two titles to count as
// the same paper.
const fuzzyThreshold = 0.85

// Deduplicator filters papers by four short-circuiting levels: arXiv id,
// normalized DOI, a title/first-author fingerprint, and fuzzy title
// similarity against every accepted title.
type Deduplicator struct {
	arxivIDs     map[string]bool
	dois         map[string]bool
	fingerprints map[string]bool
	titles       []string

	accepted int
	dropped  int
}

// New creates an empty deduplicator for one plan.
func New() *Deduplicator {
	return &Deduplicator{
		arxivIDs:     map[string]bool{},
		dois:         map[string]bool{},
		fingerprints: map[string]bool{},
	}
}

// Add records the paper and reports whether it is new. Duplicates are
// counted but not stored.
func (d *Deduplicator) Add(p *types.Paper) bool {
	if p == nil {
		return false
	}

	if p.ArxivID != "" && d.arxivIDs[p.ArxivID] {
		d.dropped++
		return false
	}
	doi := normalizeDOI(p.DOI)
	if doi != "" && d.dois[doi] {
		d.dropped++
		return false
	}
	fp := Fingerprint(p)
	if fp != "" && d.fingerprints[fp] {
		d.dropped++
		return false
	}

	title := normalizeTitle(p.Title)
	if title != "" {
		for _, seen := range d.titles {
			if lcsRatio(title, seen) >= fuzzyThreshold {
				d.dropped++
				return false
			}
		}
	}

	if p.ArxivID != "" {
		d.arxivIDs[p.ArxivID] = true
	}
	if doi != "" {
		d.dois[doi] = true
	}
	if fp != "" {
		d.fingerprints[fp] = true
	}
	if title != "" {
		d.titles = append(d.titles, title)
	}
	d.accepted++
	return true
}

// Filter returns the papers Add accepted, preserving order.
func (d *Deduplicator) Filter(papers []*types.Paper) []*types.Paper {
	unique := make([]*types.Paper, 0, len(papers))
	for _, p := range papers {
		if d.Add(p) {
			unique = append(unique, p)
		}
	}
	return unique
}

// Stats returns accepted and dropped counts.
func (d *Deduplicator) Stats() (accepted, dropped int) {
	return d.accepted, d.dropped
}

// Fingerprint hashes lower(title)|lower(first_author).
func Fingerprint(p *types.Paper) string {
	if p.Title == "" {
		return ""
	}
	key := strings.ToLower(p.Title) + "|" + strings.ToLower(p.FirstAuthor())
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	return strings.TrimPrefix(doi, "doi:")
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// lcsRatio computes 2*LCS(a,b) / (len(a)+len(b)) over characters.
func lcsRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}
