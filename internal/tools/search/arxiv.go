// Package search implements the unified multi-source paper search: parallel
// ArXiv and OpenAlex subqueries, quick deduplication, quality gating and a
// bounded query-refinement loop.
package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

const arxivAPIBase = "http://export.arxiv.org/api/query"

// ArxivClient queries the ArXiv Atom feed.
type ArxivClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewArxivClient creates an ArXiv client with the given timeout.
func NewArxivClient(timeout time.Duration, userAgent string) *ArxivClient {
	return &ArxivClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    arxivAPIBase,
		userAgent:  userAgent,
	}
}

// atom feed shapes, just the fields we read.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
	Cats      []atomCat    `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type atomCat struct {
	Term string `xml:"term,attr"`
}

// Search runs a single ArXiv query and maps entries to papers.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int, categories []string) ([]*types.Paper, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	searchQuery := fmt.Sprintf("all:%s", query)
	if len(categories) > 0 {
		cats := make([]string, len(categories))
		for i, cat := range categories {
			cats[i] = "cat:" + cat
		}
		searchQuery = fmt.Sprintf("(%s) AND (%s)", searchQuery, strings.Join(cats, " OR "))
	}

	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("arxiv read: %w", err)
	}

	papers, err := parseArxivFeed(body)
	if err != nil {
		return nil, err
	}
	logging.SearchDebug("arxiv %q -> %d papers", query, len(papers))
	return papers, nil
}

// parseArxivFeed maps an Atom feed to paper records.
func parseArxivFeed(body []byte) ([]*types.Paper, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv atom parse: %w", err)
	}

	papers := make([]*types.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title := normalizeSpace(entry.Title)
		if title == "" {
			continue
		}

		p := &types.Paper{
			Title:    title,
			Abstract: normalizeSpace(entry.Summary),
			ArxivID:  arxivIDFromURL(entry.ID),
			AbsURL:   entry.ID,
			Source:   "arxiv",
			Status:   types.StatusRaw,
		}
		for _, a := range entry.Authors {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		for _, link := range entry.Links {
			if link.Title == "pdf" || link.Type == "application/pdf" {
				p.PDFURL = link.Href
			}
		}
		if p.PDFURL == "" && p.ArxivID != "" {
			p.PDFURL = "https://arxiv.org/pdf/" + p.ArxivID
		}
		for _, cat := range entry.Cats {
			if cat.Term != "" {
				p.Categories = append(p.Categories, cat.Term)
			}
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			p.Published = t
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// arxivIDFromURL extracts "2301.00001" style ids from abs URLs, dropping any
// version suffix.
func arxivIDFromURL(absURL string) string {
	idx := strings.LastIndex(absURL, "/abs/")
	if idx == -1 {
		return ""
	}
	id := absURL[idx+len("/abs/"):]
	if v := strings.LastIndex(id, "v"); v > 0 {
		if isDigits(id[v+1:]) {
			id = id[:v]
		}
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
