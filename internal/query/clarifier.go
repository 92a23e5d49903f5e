package query

import (
	"context"
	"strings"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// Complexity classifies a query before clarification.
type Complexity string

const (
	ComplexitySimple    Complexity = "simple"
	ComplexityCompound  Complexity = "compound"
	ComplexityAmbiguous Complexity = "ambiguous"
)

const maxClarifyQuestions = 2

// Clarifier decides whether a query needs a clarification round-trip and,
// when it does, asks the LLM for an understanding, subqueries, and up to
// two questions in the user's language.
type Clarifier struct {
	llm types.LLMClient
}

// NewClarifier builds a clarifier. A nil client disables the LLM step; the
// heuristic understanding is used instead.
func NewClarifier(llm types.LLMClient) *Clarifier {
	return &Clarifier{llm: llm}
}

var compoundMarkers = []string{" and ", " then ", " và ", " y ", " et ", " und "}

var explorationMarkers = []string{
	"can ", "could ", "possible", "how to", "how do", "how can",
	"what if", "có thể", "làm sao", "cómo", "comment", "wie kann",
}

// Classify buckets the query by structural indicators.
func Classify(text string) Complexity {
	lower := " " + strings.ToLower(text) + " "

	for _, marker := range compoundMarkers {
		if strings.Contains(lower, marker) {
			return ComplexityCompound
		}
	}
	if i := strings.Index(text, ","); i >= 0 {
		left := strings.TrimSpace(text[:i])
		right := strings.TrimSpace(text[i+1:])
		if len(left) >= 4 && len(right) >= 4 {
			return ComplexityCompound
		}
	}
	for _, marker := range explorationMarkers {
		if strings.Contains(lower, marker) {
			return ComplexityAmbiguous
		}
	}
	return ComplexitySimple
}

// NeedsClarification reports whether the query merits a round-trip. Short
// simple queries never do.
func NeedsClarification(text string) bool {
	return Classify(text) != ComplexitySimple || len(strings.Fields(text)) >= 6
}

// Clarify produces the clarification payload for a query that needs one.
func (c *Clarifier) Clarify(ctx context.Context, text, langCode string) (*types.Clarification, error) {
	clar := &types.Clarification{
		OriginalQuery: text,
		Language:      langCode,
	}

	if c.llm == nil {
		clar.Understanding = MainTopic(text)
		return clar, nil
	}

	system := "You help clarify academic research queries. Respond in " + LanguageName(langCode) + "." +
		" Use exactly this line-based format:\n" +
		"UNDERSTANDING: <one sentence restating what the user wants>\n" +
		"SUBQUERIES: <semicolon-separated focused search queries>\n" +
		"QUESTIONS: <semicolon-separated clarifying questions, at most two>"

	reply, err := c.llm.CompleteWithSystem(ctx, system, "Query: "+text)
	if err != nil {
		logging.Dialogue("clarifier llm failed, using heuristic: %v", err)
		clar.Understanding = MainTopic(text)
		return clar, nil
	}

	parseClarifyReply(reply, clar)
	if clar.Understanding == "" {
		clar.Understanding = MainTopic(text)
	}
	if len(clar.Questions) > maxClarifyQuestions {
		clar.Questions = clar.Questions[:maxClarifyQuestions]
	}
	return clar, nil
}

// parseClarifyReply tolerates loose formatting: labels may be bold or
// lowercase, and list items may be separated by semicolons or newlines.
func parseClarifyReply(reply string, clar *types.Clarification) {
	section := ""
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "*#- "))
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "UNDERSTANDING"):
			section = "understanding"
			clar.Understanding = labelValue(line)
		case strings.HasPrefix(upper, "SUBQUERIES"):
			section = "subqueries"
			clar.SubQueries = append(clar.SubQueries, splitItems(labelValue(line))...)
		case strings.HasPrefix(upper, "QUESTIONS"):
			section = "questions"
			clar.Questions = append(clar.Questions, splitItems(labelValue(line))...)
		default:
			switch section {
			case "understanding":
				clar.Understanding = strings.TrimSpace(clar.Understanding + " " + line)
			case "subqueries":
				clar.SubQueries = append(clar.SubQueries, splitItems(line)...)
			case "questions":
				clar.Questions = append(clar.Questions, splitItems(line)...)
			}
		}
	}
}

func labelValue(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return strings.TrimSpace(strings.TrimLeft(line[i+1:], "*: "))
	}
	return ""
}

func splitItems(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(strings.TrimLeft(part, "0123456789.)- "))
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}
