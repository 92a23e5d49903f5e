package query

import (
	"regexp"
	"strings"

	"deepscholar/internal/tools/search"
	"deepscholar/internal/types"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// quickKeywords route to the lightweight score-only pipeline; fullKeywords
// force the complete synthesis pipeline. Full wins on a tie and is the
// default when neither set matches.
var quickKeywords = []string{
	"quick", "brief", "fast", "short", "overview", "glance",
	"nhanh", "sơ lược", "ngắn gọn",
	"rápido", "breve",
	"rapide", "bref",
	"schnell", "kurz",
}

var fullKeywords = []string{
	"comprehensive", "thorough", "detailed", "survey", "in-depth",
	"systematic", "literature review",
	"chi tiết", "toàn diện", "khảo sát",
	"detallado", "exhaustivo",
	"détaillé", "approfondi",
	"ausführlich", "gründlich",
}

// Parse classifies the raw query and extracts the topic and any URLs.
func Parse(raw string) types.QueryInfo {
	lower := strings.ToLower(raw)

	qtype := types.QueryFull
	if containsAny(lower, quickKeywords) && !containsAny(lower, fullKeywords) {
		qtype = types.QueryQuick
	}

	urls := ExtractURLs(raw)
	return types.QueryInfo{
		Original:      raw,
		Type:          qtype,
		MainTopic:     MainTopic(raw),
		URLs:          urls,
		SkipSynthesis: qtype == types.QueryQuick,
	}
}

// ExtractURLs pulls http(s) URLs from the text, trimming trailing
// punctuation.
func ExtractURLs(text string) []string {
	var urls []string
	seen := map[string]bool{}
	for _, raw := range urlPattern.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}

// MainTopic strips URLs, stopwords, and routing keywords, keeping the words
// that name the subject.
func MainTopic(raw string) string {
	text := urlPattern.ReplaceAllString(raw, " ")
	routing := map[string]bool{}
	for _, kw := range append(append([]string{}, quickKeywords...), fullKeywords...) {
		for _, w := range strings.Fields(kw) {
			routing[w] = true
		}
	}

	var kept []string
	for _, w := range strings.Fields(text) {
		trimmed := strings.Trim(strings.ToLower(w), ".,;:!?()\"'")
		if trimmed == "" || search.IsStopword(trimmed) || routing[trimmed] {
			continue
		}
		kept = append(kept, strings.Trim(w, ".,;:!?()\"'"))
	}
	if len(kept) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.Join(kept, " ")
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
