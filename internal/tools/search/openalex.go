package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

const openAlexAPIBase = "https://api.openalex.org/works"

// maxCondensedTerms bounds the OpenAlex query because its search is
// AND-matched across all terms.
const maxCondensedTerms = 4

// OpenAlexClient queries the OpenAlex works endpoint.
type OpenAlexClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewOpenAlexClient creates an OpenAlex client with the given timeout.
func NewOpenAlexClient(timeout time.Duration, userAgent string) *OpenAlexClient {
	return &OpenAlexClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    openAlexAPIBase,
		userAgent:  userAgent,
	}
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		LandingPageURL string `json:"landing_page_url"`
		PDFURL         string `json:"pdf_url"`
	} `json:"primary_location"`
	OpenAccess struct {
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// Search runs a single OpenAlex title-and-abstract query. The query is
// condensed to its most significant terms first.
func (c *OpenAlexClient) Search(ctx context.Context, query string, maxResults int) ([]*types.Paper, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	condensed := CondenseQuery(query)
	if condensed == "" {
		condensed = query
	}

	params := url.Values{}
	params.Set("filter", "title_and_abstract.search:"+condensed)
	params.Set("per-page", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openalex request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openalex returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("openalex read: %w", err)
	}

	var parsed openAlexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openalex parse: %w", err)
	}

	papers := make([]*types.Paper, 0, len(parsed.Results))
	for _, work := range parsed.Results {
		if work.Title == "" {
			continue
		}
		p := &types.Paper{
			Title:    work.Title,
			DOI:      normalizeDOI(work.DOI),
			Abstract: reconstructAbstract(work.AbstractInvertedIndex),
			AbsURL:   work.PrimaryLocation.LandingPageURL,
			Source:   "openalex",
			Status:   types.StatusRaw,
		}
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				p.Authors = append(p.Authors, a.Author.DisplayName)
			}
		}
		// Prefer the open-access URL when both exist.
		if work.OpenAccess.OAURL != "" {
			p.PDFURL = work.OpenAccess.OAURL
		} else if work.PrimaryLocation.PDFURL != "" {
			p.PDFURL = work.PrimaryLocation.PDFURL
		}
		if t, err := time.Parse("2006-01-02", work.PublicationDate); err == nil {
			p.Published = t
		}
		papers = append(papers, p)
	}
	logging.SearchDebug("openalex %q (condensed %q) -> %d papers", query, condensed, len(papers))
	return papers, nil
}

// CondenseQuery keeps at most maxCondensedTerms significant non-stopwords.
func CondenseQuery(query string) string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) >= 3 && !stopwords[word] {
			terms = append(terms, word)
			if len(terms) == maxCondensedTerms {
				break
			}
		}
	}
	return strings.Join(terms, " ")
}

// normalizeDOI strips the resolver prefix and lowercases.
func normalizeDOI(doi string) string {
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	return strings.ToLower(strings.TrimSpace(doi))
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted index.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := 0
	for _, positions := range index {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 && pos <= maxPos {
				words[pos] = word
			}
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}
