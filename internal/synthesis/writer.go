package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// ReportInput bundles everything the writer needs.
type ReportInput struct {
	Topic      string
	Queries    []string
	Papers     []*types.Paper
	Clusters   []*types.Cluster
	Claims     []*types.Claim
	Spans      map[string]*types.EvidenceSpan
	Matrix     *types.TaxonomyMatrix
	Directions []*types.FutureDirection
	Language   string
}

// Writer renders the final Markdown report. The outline is fixed: scope,
// theme map, per-theme synthesis, comparative table, limitations, future
// directions, references. Content comes only from claims and spans, never
// free generation.
type Writer struct{}

// NewWriter builds a writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write renders the report.
func (w *Writer) Write(in *ReportInput) string {
	refs := referenceIndex(in.Papers)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.Topic)

	w.writeScope(&b, in)
	w.writeThemeMap(&b, in)
	w.writeThemes(&b, in, refs)
	w.writeComparative(&b, in)
	w.writeLimitations(&b, in, refs)
	w.writeDirections(&b, in)
	w.writeReferences(&b, in.Papers, refs)

	logging.Get(logging.CategoryReport).Info("report rendered: %d papers, %d claims, %d themes",
		len(in.Papers), len(in.Claims), len(in.Clusters))
	return b.String()
}

func (w *Writer) writeScope(b *strings.Builder, in *ReportInput) {
	b.WriteString("## Scope & Search Strategy\n\n")
	fmt.Fprintf(b, "This review covers %d papers on *%s*, collected from arXiv and OpenAlex", len(in.Papers), in.Topic)
	if len(in.Queries) > 0 {
		fmt.Fprintf(b, " using the queries: %s", quoteJoin(in.Queries))
	}
	b.WriteString(".\n\n")
}

func (w *Writer) writeThemeMap(b *strings.Builder, in *ReportInput) {
	if len(in.Clusters) == 0 {
		return
	}
	b.WriteString("## Theme Map\n\n")
	for _, cluster := range in.Clusters {
		fmt.Fprintf(b, "- **%s** (%d papers)", cluster.Name, len(cluster.PaperIDs))
		if cluster.Description != "" {
			fmt.Fprintf(b, " — %s", cluster.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func (w *Writer) writeThemes(b *strings.Builder, in *ReportInput, refs map[string]int) {
	claimsByTheme := map[string][]*types.Claim{}
	for _, claim := range in.Claims {
		claimsByTheme[claim.ThemeID] = append(claimsByTheme[claim.ThemeID], claim)
	}

	for _, cluster := range in.Clusters {
		claims := claimsByTheme[cluster.ID]
		if len(claims) == 0 {
			continue
		}
		fmt.Fprintf(b, "## %s\n\n", cluster.Name)
		for _, claim := range claims {
			text := claim.Text
			if claim.Uncertainty && !strings.HasPrefix(text, "Evidence suggests") {
				text += " (uncertain)"
			}
			fmt.Fprintf(b, "%s%s\n\n", text, citations(claim, in.Spans, refs))
			if quote := bestQuote(claim, in.Spans); quote != "" {
				fmt.Fprintf(b, "> %q\n\n", quote)
			}
		}
	}
}

func (w *Writer) writeComparative(b *strings.Builder, in *ReportInput) {
	m := in.Matrix
	if m == nil || len(m.Cells) == 0 {
		return
	}
	b.WriteString("## Comparative View\n\n")
	b.WriteString("| Theme | Dataset | Metric | Papers |\n|---|---|---|---|\n")
	for _, theme := range m.Themes {
		for _, dataset := range m.Datasets {
			for _, metric := range m.Metrics {
				papers := m.Cells[types.TaxonomyCell{Theme: theme, Dataset: dataset, Metric: metric}]
				if len(papers) == 0 {
					continue
				}
				fmt.Fprintf(b, "| %s | %s | %s | %d |\n", theme, dataset, metric, len(papers))
			}
		}
	}
	b.WriteString("\n")
}

func (w *Writer) writeLimitations(b *strings.Builder, in *ReportInput, refs map[string]int) {
	var limits []*types.EvidenceSpan
	for _, span := range in.Spans {
		if span.Field == types.FieldLimitation {
			limits = append(limits, span)
		}
	}
	if len(limits) == 0 {
		return
	}
	sort.Slice(limits, func(i, j int) bool { return limits[i].SpanID < limits[j].SpanID })

	b.WriteString("## Limitations\n\n")
	for _, span := range limits {
		ref := ""
		if n, ok := refs[span.PaperID]; ok {
			ref = fmt.Sprintf(" [%d]", n)
		}
		fmt.Fprintf(b, "- %q%s\n", span.Snippet, ref)
	}
	b.WriteString("\n")
}

func (w *Writer) writeDirections(b *strings.Builder, in *ReportInput) {
	if len(in.Directions) == 0 {
		return
	}
	b.WriteString("## Future Directions\n\n")
	for _, dir := range in.Directions {
		fmt.Fprintf(b, "- **%s** (%s): %s\n", dir.Title, dir.Type, dir.Description)
	}
	b.WriteString("\n")
}

func (w *Writer) writeReferences(b *strings.Builder, papers []*types.Paper, refs map[string]int) {
	b.WriteString("## References\n\n")
	ordered := make([]*types.Paper, 0, len(papers))
	for _, p := range papers {
		if _, ok := refs[p.ID]; ok {
			ordered = append(ordered, p)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return refs[ordered[i].ID] < refs[ordered[j].ID] })

	for _, p := range ordered {
		fmt.Fprintf(b, "%d. %s\n", refs[p.ID], formatReference(p))
	}
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// referenceIndex assigns each paper a stable 1-based reference number.
func referenceIndex(papers []*types.Paper) map[string]int {
	refs := make(map[string]int, len(papers))
	for _, p := range papers {
		if _, ok := refs[p.ID]; !ok {
			refs[p.ID] = len(refs) + 1
		}
	}
	return refs
}

// formatReference renders one entry as authors (year). *title*. [url](url).
func formatReference(p *types.Paper) string {
	authors := "Unknown"
	switch {
	case len(p.Authors) == 1:
		authors = p.Authors[0]
	case len(p.Authors) == 2:
		authors = p.Authors[0] + " and " + p.Authors[1]
	case len(p.Authors) > 2:
		authors = p.Authors[0] + " et al."
	}

	year := "n.d."
	if !p.Published.IsZero() {
		year = p.Published.Format("2006")
	}

	entry := fmt.Sprintf("%s (%s). *%s*.", authors, year, p.Title)
	if p.AbsURL != "" {
		entry += fmt.Sprintf(" [%s](%s)", p.AbsURL, p.AbsURL)
	}
	return entry
}

// citations renders the numbered references backing a claim.
func citations(claim *types.Claim, spans map[string]*types.EvidenceSpan, refs map[string]int) string {
	seen := map[int]bool{}
	var nums []int
	for _, spanID := range claim.EvidenceSpanIDs {
		span, ok := spans[spanID]
		if !ok {
			continue
		}
		if n, ok := refs[span.PaperID]; ok && !seen[n] {
			seen[n] = true
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return ""
	}
	sort.Ints(nums)

	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

// bestQuote picks the highest-confidence snippet cited by the claim.
func bestQuote(claim *types.Claim, spans map[string]*types.EvidenceSpan) string {
	var best *types.EvidenceSpan
	for _, spanID := range claim.EvidenceSpanIDs {
		span, ok := spans[spanID]
		if !ok {
			continue
		}
		if best == nil || span.Confidence > best.Confidence {
			best = span
		}
	}
	if best == nil {
		return ""
	}
	return best.Snippet
}
