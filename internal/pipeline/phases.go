package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"deepscholar/internal/executor"
	"deepscholar/internal/logging"
	"deepscholar/internal/store"
	"deepscholar/internal/synthesis"
	"deepscholar/internal/types"
)

func (p *Pipeline) phasePlanning(ctx context.Context, s *Session, rawQuery string) error {
	plan, err := p.adaptive.Plan(ctx, rawQuery, s.Request)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	if ok, err := p.gates.CheckExternalCrawl(ctx, types.PhasePlanning, planURLs(plan.Plan)); err != nil {
		return err
	} else if !ok {
		stripExternalSteps(plan.Plan, p.cfg.Gates.TrustedDomains)
	}

	s.Plan = plan
	return nil
}

func (p *Pipeline) phaseExecution(ctx context.Context, s *Session) error {
	exec := executor.New(p.registry, p.cache, func(step *types.ResearchStep, m executor.StepMetrics) {
		p.emit(types.PhaseExecution, fmt.Sprintf("step %d (%s) done", step.ID, step.Title), map[string]any{
			"step_id":    step.ID,
			"papers":     m.Unique + m.Duplicates,
			"unique":     m.Unique,
			"duplicates": m.Duplicates,
		})
	})

	result, err := exec.Run(ctx, s.Plan.Plan)
	if err != nil {
		return err
	}
	s.ExecResult = result
	s.Papers = result.Papers
	return nil
}

// phasePersistence assigns persistent ids and writes every paper to the
// local store. This is the second fatal phase: without persisted ids no
// downstream phase can reference papers.
func (p *Pipeline) phasePersistence(s *Session) error {
	for _, paper := range s.Papers {
		paper.ID = store.PaperID(paper)
		if err := p.local.UpsertPaper(paper); err != nil {
			return fmt.Errorf("persistence: %w", err)
		}
	}
	return nil
}

// phaseAnalysis is the quick-path scoring pass: relevance scores without
// screening records.
func (p *Pipeline) phaseAnalysis(ctx context.Context, s *Session) error {
	if err := p.screener.ScoreOnly(ctx, s.Plan.Plan.Topic, s.Papers); err != nil {
		return err
	}
	if s.ExecResult != nil {
		s.ExecResult.Progress.UpdateBands(s.Papers)
	}
	return p.persistAll(s.Papers)
}

func (p *Pipeline) phaseScreening(ctx context.Context, s *Session) error {
	estimate := len(s.Papers) * screeningTokensPerPaper
	if ok, err := p.gates.CheckTokenBudget(ctx, types.PhaseScreening, estimate); err != nil {
		return err
	} else if !ok {
		p.emit(types.PhaseScreening, "token budget rejected, skipping screening", nil)
		return nil
	}

	records, err := p.screener.Screen(ctx, s.Plan.Plan.Topic, s.Papers)
	if err != nil {
		return err
	}
	s.Records = records
	if s.ExecResult != nil {
		s.ExecResult.Progress.UpdateBands(s.Papers)
	}

	for _, rec := range records {
		if err := p.local.SaveScreening(s.Plan.Plan.ID, rec); err != nil {
			logging.StoreError("screening record save failed for %s: %v", rec.PaperID, err)
		}
	}
	return p.persistAll(s.Papers)
}

func (p *Pipeline) phasePDFLoading(ctx context.Context, s *Session) error {
	threshold := p.cfg.Pipeline.PDFScoreThreshold
	var candidates []*types.Paper
	for _, paper := range p.includedPapers(s) {
		if paper.PDFURL == "" {
			continue
		}
		if paper.RelevanceScore != nil && *paper.RelevanceScore >= threshold {
			candidates = append(candidates, paper)
		}
	}

	if ok, err := p.gates.CheckPDFDownload(ctx, types.PhasePDFLoading, len(candidates)); err != nil {
		return err
	} else if !ok {
		p.emit(types.PhasePDFLoading, "pdf download rejected, continuing with abstracts", nil)
		return nil
	}

	loaded := p.pdfLoader.LoadAll(ctx, candidates, p.cfg.Pipeline.PDFConcurrency)
	p.emit(types.PhasePDFLoading, fmt.Sprintf("loaded %d of %d pdfs", loaded, len(candidates)), nil)
	return p.persistAll(candidates)
}

func (p *Pipeline) phaseEvidence(ctx context.Context, s *Session) error {
	extractions, err := p.extractor.ExtractAll(ctx, p.includedPapers(s))
	if err != nil {
		return err
	}

	s.Cards = map[string]*types.StudyCard{}
	s.Spans = map[string]*types.EvidenceSpan{}
	for _, ext := range extractions {
		s.Cards[ext.Card.PaperID] = ext.Card
		for _, span := range ext.Spans {
			s.Spans[span.SpanID] = span
		}
		if err := p.local.SaveStudyCard(ext.Card); err != nil {
			logging.StoreError("study card save failed for %s: %v", ext.Card.PaperID, err)
		}
		if err := p.local.SaveSpans(ext.Spans); err != nil {
			logging.StoreError("span save failed for %s: %v", ext.Card.PaperID, err)
		}
	}
	return p.persistAll(p.includedPapers(s))
}

func (p *Pipeline) phaseClustering(ctx context.Context, s *Session) error {
	papers := p.extractedPapers(s)
	clusters, err := p.clusterer.Cluster(ctx, s.Plan.Plan.ID, s.Plan.Plan.Topic, papers)
	if err != nil {
		return err
	}
	s.Clusters = clusters
	return p.persistAll(papers)
}

func (p *Pipeline) phaseClaims(ctx context.Context, s *Session) error {
	claims, err := p.claims.Generate(ctx, s.Clusters, s.Cards, s.Spans)
	if err != nil {
		return err
	}
	s.Claims = claims
	return p.local.SaveClaims(s.Plan.Plan.ID, claims)
}

func (p *Pipeline) phaseGapMining(s *Session) error {
	s.Matrix = synthesis.BuildTaxonomy(s.Clusters, s.Cards)
	s.Directions = p.gaps.Mine(s.Cards, s.Spans, s.Matrix)
	return nil
}

func (p *Pipeline) phaseWriting(s *Session) error {
	s.Report = p.writer.Write(p.reportInput(s))
	return nil
}

func (p *Pipeline) phaseAudit(ctx context.Context, s *Session) error {
	result, err := p.auditor.Audit(ctx, s.Claims, s.Spans)
	if err != nil {
		return err
	}
	s.Audit = result

	if result.Repaired > 0 {
		// Repairs changed claim text; the report must reflect them.
		s.Report = p.writer.Write(p.reportInput(s))
		if err := p.local.SaveClaims(s.Plan.Plan.ID, s.Claims); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) phasePublish(s *Session) error {
	reportID, err := p.local.SaveReport(s.ID, s.Report)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	s.ReportID = reportID
	p.emit(types.PhasePublish, "report published as "+reportID, map[string]any{"report_id": reportID})
	return nil
}

func (p *Pipeline) reportInput(s *Session) *synthesis.ReportInput {
	var queries []string
	for _, step := range s.Plan.Plan.Steps {
		queries = append(queries, step.Queries...)
	}
	return &synthesis.ReportInput{
		Topic:      s.Plan.Plan.Topic,
		Queries:    queries,
		Papers:     p.includedPapers(s),
		Clusters:   s.Clusters,
		Claims:     s.Claims,
		Spans:      s.Spans,
		Matrix:     s.Matrix,
		Directions: s.Directions,
		Language:   s.Plan.Plan.OutputLanguage,
	}
}

// includedPapers filters out papers a screening record excluded.
func (p *Pipeline) includedPapers(s *Session) []*types.Paper {
	excluded := map[string]bool{}
	for _, rec := range s.Records {
		if !rec.Include {
			excluded[rec.PaperID] = true
		}
	}
	var included []*types.Paper
	for _, paper := range s.Papers {
		if !excluded[paper.ID] {
			included = append(included, paper)
		}
	}
	return included
}

func (p *Pipeline) extractedPapers(s *Session) []*types.Paper {
	var out []*types.Paper
	for _, paper := range p.includedPapers(s) {
		if _, ok := s.Cards[paper.ID]; ok {
			out = append(out, paper)
		}
	}
	return out
}

func (p *Pipeline) persistAll(papers []*types.Paper) error {
	for _, paper := range papers {
		if err := p.local.UpsertPaper(paper); err != nil {
			return err
		}
	}
	return nil
}

func planURLs(plan *types.ResearchPlan) []string {
	var urls []string
	for _, step := range plan.Steps {
		urls = append(urls, step.Sources...)
	}
	return urls
}

// stripExternalSteps drops sources outside the trusted domains after an
// external-crawl rejection.
func stripExternalSteps(plan *types.ResearchPlan, trusted []string) {
	trustedSet := map[string]bool{}
	for _, d := range trusted {
		trustedSet[d] = true
	}
	for i := range plan.Steps {
		var kept []string
		for _, src := range plan.Steps[i].Sources {
			if hostTrusted(src, trustedSet) {
				kept = append(kept, src)
			}
		}
		plan.Steps[i].Sources = kept
		if args, ok := plan.Steps[i].ToolArgs["urls"].([]string); ok {
			var keptArgs []string
			for _, u := range args {
				if hostTrusted(u, trustedSet) {
					keptArgs = append(keptArgs, u)
				}
			}
			plan.Steps[i].ToolArgs["urls"] = keptArgs
		}
	}
}

func hostTrusted(rawURL string, trusted map[string]bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return trusted[strings.ToLower(strings.TrimPrefix(u.Host, "www."))]
}
