package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/pdfload"
	"deepscholar/internal/types"
)

// maxExtractChars bounds the full-text window sent to the LLM per paper.
const maxExtractChars = 24_000

// Extractor pulls StudyCards and verbatim evidence spans out of paper text.
type Extractor struct {
	llm         types.LLMClient
	concurrency int
}

// NewExtractor builds an extractor with the given per-paper concurrency
// bound.
func NewExtractor(llmClient types.LLMClient, concurrency int) *Extractor {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Extractor{llm: llmClient, concurrency: concurrency}
}

// Extraction is the per-paper result.
type Extraction struct {
	Card  *types.StudyCard
	Spans []*types.EvidenceSpan
}

// ExtractAll processes papers concurrently. Papers whose extraction fails
// are skipped with a logged error.
func (e *Extractor) ExtractAll(ctx context.Context, papers []*types.Paper) ([]*Extraction, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var mu sync.Mutex
	var out []*Extraction
	for _, p := range papers {
		g.Go(func() error {
			ext, err := e.Extract(gctx, p)
			if err != nil {
				logging.Get(logging.CategoryEvidence).Error("extraction failed for %s: %v", p.ID, err)
				return nil
			}
			mu.Lock()
			out = append(out, ext)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

type rawExtraction struct {
	Problem     string   `json:"problem"`
	Method      string   `json:"method"`
	Datasets    []string `json:"datasets"`
	Metrics     []string `json:"metrics"`
	Results     string   `json:"results"`
	Limitations string   `json:"limitations"`
	Spans       []struct {
		Field      string  `json:"field"`
		Snippet    string  `json:"snippet"`
		Confidence float64 `json:"confidence"`
	} `json:"spans"`
}

// Extract builds the StudyCard and spans for one paper. Full text is
// preferred; papers without it fall back to the abstract. Card fields whose
// spans did not survive validation are cleared so every populated field
// stays span-backed.
func (e *Extractor) Extract(ctx context.Context, p *types.Paper) (*Extraction, error) {
	source := p.FullText
	usingFullText := true
	if source == "" {
		source = p.Abstract
		usingFullText = false
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("paper %s has no text", p.ID)
	}
	if len(source) > maxExtractChars {
		source = source[:maxExtractChars]
	}

	raw, err := e.askLLM(ctx, p.Title, source)
	if err != nil {
		return nil, err
	}

	card := &types.StudyCard{
		PaperID:     p.ID,
		Problem:     raw.Problem,
		Method:      raw.Method,
		Datasets:    raw.Datasets,
		Metrics:     raw.Metrics,
		Results:     raw.Results,
		Limitations: raw.Limitations,
	}

	var spans []*types.EvidenceSpan
	fieldsCovered := map[types.EvidenceField]bool{}
	for _, rs := range raw.Spans {
		field, ok := parseField(rs.Field)
		if !ok {
			continue
		}
		snippet := strings.TrimSpace(rs.Snippet)
		if snippet == "" {
			continue
		}
		if len(snippet) > types.MaxSnippetLen {
			snippet = snippet[:types.MaxSnippetLen]
		}

		span := &types.EvidenceSpan{
			SpanID:     types.SpanID(p.ID, snippet),
			PaperID:    p.ID,
			Field:      field,
			Snippet:    snippet,
			Confidence: rs.Confidence,
			SourceURL:  p.AbsURL,
		}
		if usingFullText {
			span.Loc = locate(p, snippet)
		}
		spans = append(spans, span)
		card.EvidenceSpanIDs = append(card.EvidenceSpanIDs, span.SpanID)
		fieldsCovered[field] = true
	}

	dropUnbacked(card, fieldsCovered)

	if p.Status == types.StatusFulltext || p.Status == types.StatusScreened {
		p.Status = types.StatusExtracted
	}
	return &Extraction{Card: card, Spans: spans}, nil
}

func (e *Extractor) askLLM(ctx context.Context, title, source string) (*rawExtraction, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("no llm client")
	}

	system := "You extract structured evidence from an academic paper.\n" +
		"Return one JSON object: {\"problem\", \"method\", \"datasets\", \"metrics\", \"results\", \"limitations\", \"spans\"}.\n" +
		"spans is an array of {\"field\", \"snippet\", \"confidence\"} where field is one of problem, method, dataset, metric, result, limitation.\n" +
		"Every snippet must be a VERBATIM quote from the text, at most 300 characters. Every non-empty summary field must have at least one span with the matching field."

	reply, err := e.llm.CompleteJSON(ctx, system, "Paper: "+title+"\n\n"+source)
	if err != nil {
		return nil, err
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &raw); err != nil {
		return nil, fmt.Errorf("extraction reply unparsable: %w", err)
	}
	return &raw, nil
}

// locate finds the snippet in the full text and resolves its page.
func locate(p *types.Paper, snippet string) *types.Locator {
	idx := strings.Index(p.FullText, snippet)
	if idx < 0 {
		// Quotes often differ in whitespace from the extracted text.
		idx = strings.Index(
			strings.ToLower(p.FullText),
			strings.ToLower(snippet),
		)
		if idx < 0 {
			return nil
		}
	}
	return &types.Locator{
		Page:      pdfload.PageFor(p.PageMap, idx),
		CharStart: idx,
		CharEnd:   idx + len(snippet),
	}
}

// dropUnbacked clears card fields that have no span of the matching field.
func dropUnbacked(card *types.StudyCard, covered map[types.EvidenceField]bool) {
	if !covered[types.FieldProblem] {
		card.Problem = ""
	}
	if !covered[types.FieldMethod] {
		card.Method = ""
	}
	if !covered[types.FieldDataset] {
		card.Datasets = nil
	}
	if !covered[types.FieldMetric] {
		card.Metrics = nil
	}
	if !covered[types.FieldResult] {
		card.Results = ""
	}
	if !covered[types.FieldLimitation] {
		card.Limitations = ""
	}
}

func parseField(raw string) (types.EvidenceField, bool) {
	switch types.EvidenceField(strings.ToLower(strings.TrimSpace(raw))) {
	case types.FieldProblem:
		return types.FieldProblem, true
	case types.FieldMethod:
		return types.FieldMethod, true
	case types.FieldDataset:
		return types.FieldDataset, true
	case types.FieldMetric:
		return types.FieldMetric, true
	case types.FieldResult:
		return types.FieldResult, true
	case types.FieldLimitation:
		return types.FieldLimitation, true
	}
	return "", false
}
