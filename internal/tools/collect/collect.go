// Package collect resolves user-supplied URLs into paper records: arXiv
// abs/pdf links, RSS feeds, and generic web pages.
package collect

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// Collector resolves URLs to papers.
type Collector struct {
	httpClient *http.Client
	userAgent  string
}

// NewCollector creates a collector with the given timeout.
func NewCollector(timeout time.Duration, userAgent string) *Collector {
	return &Collector{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// CollectURL resolves one URL into zero or more paper records.
func (c *Collector) CollectURL(ctx context.Context, rawURL string) ([]*types.Paper, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %q", rawURL)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "arxiv.org":
		return c.collectArxiv(ctx, u)
	case strings.HasSuffix(u.Path, ".rss") || strings.HasSuffix(u.Path, "/rss") || strings.Contains(u.Path, "feed"):
		return c.collectRSS(ctx, rawURL)
	default:
		return c.collectWebPage(ctx, rawURL)
	}
}

// CollectURLs is the batched variant; per-URL failures are logged and
// skipped.
func (c *Collector) CollectURLs(ctx context.Context, urls []string) ([]*types.Paper, error) {
	var papers []*types.Paper
	for _, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			return papers, err
		}
		collected, err := c.CollectURL(ctx, rawURL)
		if err != nil {
			logging.SearchWarn("collect failed for %s: %v", rawURL, err)
			continue
		}
		papers = append(papers, collected...)
	}
	return papers, nil
}

// collectArxiv maps an abs or pdf link to a metadata record via the export
// API.
func (c *Collector) collectArxiv(ctx context.Context, u *url.URL) ([]*types.Paper, error) {
	id := ""
	switch {
	case strings.HasPrefix(u.Path, "/abs/"):
		id = strings.TrimPrefix(u.Path, "/abs/")
	case strings.HasPrefix(u.Path, "/pdf/"):
		id = strings.TrimSuffix(strings.TrimPrefix(u.Path, "/pdf/"), ".pdf")
	default:
		return nil, fmt.Errorf("unrecognized arxiv path: %s", u.Path)
	}
	if v := strings.LastIndex(id, "v"); v > 0 && allDigits(id[v+1:]) {
		id = id[:v]
	}

	apiURL := "http://export.arxiv.org/api/query?id_list=" + url.QueryEscape(id)
	body, err := c.fetch(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	return parseArxivEntry(body, id)
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Creator     string `xml:"creator"`
	PubDate     string `xml:"pubDate"`
}

func (c *Collector) collectRSS(ctx context.Context, feedURL string) ([]*types.Paper, error) {
	body, err := c.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("rss parse: %w", err)
	}

	papers := make([]*types.Paper, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		p := &types.Paper{
			Title:    title,
			Abstract: stripTags(item.Description),
			AbsURL:   item.Link,
			Source:   "rss",
			Status:   types.StatusRaw,
		}
		if item.Creator != "" {
			p.Authors = []string{item.Creator}
		}
		if t, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			p.Published = t
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// collectWebPage builds a single record from a page's title and meta
// description.
func (c *Collector) collectWebPage(ctx context.Context, pageURL string) ([]*types.Paper, error) {
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("html parse: %w", err)
	}

	title, description := extractTitleAndDescription(doc)
	if title == "" {
		return nil, fmt.Errorf("no title found at %s", pageURL)
	}
	return []*types.Paper{{
		Title:    title,
		Abstract: description,
		AbsURL:   pageURL,
		Source:   "web",
		Status:   types.StatusRaw,
	}}, nil
}

func (c *Collector) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// extractTitleAndDescription walks the parsed document once.
func extractTitleAndDescription(doc *html.Node) (title, description string) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name", "property":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if description == "" && (name == "description" || name == "og:description") {
					description = strings.TrimSpace(content)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title, description
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func allDigits(s string) bool {
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

// parseArxivEntry parses a single-entry Atom response.
func parseArxivEntry(body []byte, id string) ([]*types.Paper, error) {
	type entry struct {
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	}
	var feed struct {
		Entries []entry `xml:"entry"`
	}
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv parse: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, nil
	}

	e := feed.Entries[0]
	p := &types.Paper{
		Title:    strings.Join(strings.Fields(e.Title), " "),
		Abstract: strings.Join(strings.Fields(e.Summary), " "),
		ArxivID:  id,
		AbsURL:   "https://arxiv.org/abs/" + id,
		PDFURL:   "https://arxiv.org/pdf/" + id,
		Source:   "arxiv",
		Status:   types.StatusRaw,
	}
	for _, a := range e.Authors {
		if a.Name != "" {
			p.Authors = append(p.Authors, a.Name)
		}
	}
	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		p.Published = t
	}
	return []*types.Paper{p}, nil
}
