package tools

import (
	"context"
	"fmt"
	"time"

	"deepscholar/internal/tools/collect"
	"deepscholar/internal/tools/search"
	"deepscholar/internal/types"
)

// RegisterBuiltins wires the ingestion tools into the registry. The llm
// client is optional; when nil the unified searcher refines queries with
// heuristics only.
func RegisterBuiltins(r *Registry, timeout time.Duration, userAgent string, llm types.LLMClient) error {
	unified := search.NewUnified(timeout, userAgent, llm)
	collector := collect.NewCollector(timeout, userAgent)

	builtins := []*Tool{
		{
			Name:        "search",
			Description: "Search arXiv and OpenAlex for academic papers matching a query, with automatic quality-driven query refinement.",
			Tags:        []string{"ingest", "search"},
			Cacheable:   true,
			Schema: Schema{
				Required: []string{"query"},
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "Topic or question to search for.",
					},
					"max_results": {
						Type:        "integer",
						Description: "Maximum number of papers to return.",
						Default:     20,
					},
					"categories": {
						Type:        "array",
						Description: "Optional arXiv category filters, e.g. cs.CL.",
						Items:       &PropertyItems{Type: "string"},
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				query, ok := args["query"].(string)
				if !ok || query == "" {
					return nil, fmt.Errorf("search: %w: query", ErrMissingRequiredArg)
				}
				return unified.Search(ctx, query, intArg(args, "max_results", 20), stringsArg(args, "categories"))
			},
		},
		{
			Name:        "collect_url",
			Description: "Resolve a single URL (arXiv link, RSS feed, or web page) into paper records.",
			Tags:        []string{"ingest", "collect"},
			Cacheable:   true,
			Schema: Schema{
				Required: []string{"url"},
				Properties: map[string]Property{
					"url": {
						Type:        "string",
						Description: "URL to collect.",
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				rawURL, ok := args["url"].(string)
				if !ok || rawURL == "" {
					return nil, fmt.Errorf("collect_url: %w: url", ErrMissingRequiredArg)
				}
				return collector.CollectURL(ctx, rawURL)
			},
		},
		{
			Name:        "collect_urls",
			Description: "Resolve a batch of URLs into paper records; individual failures are skipped.",
			Tags:        []string{"ingest", "collect"},
			Cacheable:   true,
			Schema: Schema{
				Required: []string{"urls"},
				Properties: map[string]Property{
					"urls": {
						Type:        "array",
						Description: "URLs to collect.",
						Items:       &PropertyItems{Type: "string"},
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				urls := stringsArg(args, "urls")
				if len(urls) == 0 {
					return nil, fmt.Errorf("collect_urls: %w: urls", ErrMissingRequiredArg)
				}
				return collector.CollectURLs(ctx, urls)
			},
		},
		{
			Name:        "hf_trending",
			Description: "Fetch today's trending papers from the Hugging Face daily papers feed.",
			Tags:        []string{"ingest", "trending"},
			Cacheable:   true,
			Schema: Schema{
				Properties: map[string]Property{
					"limit": {
						Type:        "integer",
						Description: "Maximum number of trending papers.",
						Default:     10,
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return collector.HFTrending(ctx, intArg(args, "limit", 10))
			},
		},
	}

	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name, err)
		}
	}
	return nil
}

// intArg reads an integer argument, tolerating the float64 that
// json.Unmarshal produces for numbers.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
