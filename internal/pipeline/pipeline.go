package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deepscholar/internal/config"
	"deepscholar/internal/gate"
	"deepscholar/internal/logging"
	"deepscholar/internal/pdfload"
	"deepscholar/internal/planner"
	"deepscholar/internal/store"
	"deepscholar/internal/synthesis"
	"deepscholar/internal/tools"
	"deepscholar/internal/types"
)

// screeningTokensPerPaper sizes the token estimate fed to the budget gate.
const screeningTokensPerPaper = 700

// Pipeline wires the phase implementations together.
type Pipeline struct {
	cfg      *config.Config
	kv       store.KV
	local    *store.LocalStore
	registry *tools.Registry
	cache    *tools.Cache

	adaptive  *planner.Adaptive
	pdfLoader *pdfload.Loader
	screener  *synthesis.Screener
	extractor *synthesis.Extractor
	clusterer *synthesis.Clusterer
	claims    *synthesis.ClaimGenerator
	gaps      *synthesis.GapMiner
	auditor   *synthesis.Auditor
	writer    *synthesis.Writer
	gates     *gate.Manager

	progress   types.ProgressFunc
	sessionTTL time.Duration
}

// Deps carries everything New needs.
type Deps struct {
	Config   *config.Config
	KV       store.KV
	Local    *store.LocalStore
	Registry *tools.Registry
	Cache    *tools.Cache
	LLM      types.LLMClient
	Embedder types.Embedder
	Approval types.ApprovalFunc
	Progress types.ProgressFunc
}

// New assembles a pipeline from its dependencies.
func New(d Deps) *Pipeline {
	cfg := d.Config
	sessionTTL := cfg.Pipeline.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = store.TTLSession
	}

	base := planner.NewPlanner(d.LLM, d.Registry)
	return &Pipeline{
		cfg:      cfg,
		kv:       d.KV,
		local:    d.Local,
		registry: d.Registry,
		cache:    d.Cache,

		adaptive:  planner.NewAdaptive(base),
		pdfLoader: pdfload.NewLoader(d.KV, cfg.Search.PDFTimeout, cfg.Search.UserAgent),
		screener:  synthesis.NewScreener(d.LLM, cfg.Pipeline.ScreeningBatchSize),
		extractor: synthesis.NewExtractor(d.LLM, cfg.Pipeline.ExtractConcurrency),
		clusterer: synthesis.NewClusterer(d.LLM, d.Embedder),
		claims:    synthesis.NewClaimGenerator(d.LLM, cfg.Pipeline.ClaimConcurrency),
		gaps:      synthesis.NewGapMiner(),
		auditor:   synthesis.NewAuditor(d.LLM, cfg.Pipeline.AuditConcurrency),
		writer:    synthesis.NewWriter(),
		gates: gate.NewManager(d.Approval, cfg.Gates.PDFDownloadLimit,
			cfg.Gates.TokenBudget, cfg.Gates.TrustedDomains),

		progress:   d.Progress,
		sessionTTL: sessionTTL,
	}
}

// NewSession creates a fresh session for a request.
func NewSession(userID string, req *types.ResearchRequest) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Request:   req,
		StartedAt: time.Now(),
	}
}

// Run executes the session's phases in order, skipping any already
// checkpointed. Cancellation persists partial results and returns the
// context error; planning failure is the only fatal phase error.
func (p *Pipeline) Run(ctx context.Context, s *Session, rawQuery string, approvedPlan *types.AdaptivePlan) error {
	err := p.run(ctx, s, rawQuery, approvedPlan)
	switch {
	case errors.Is(err, context.Canceled):
		s.Outcome = types.OutcomeAbandoned
		p.persistPartial(s)
	case err != nil:
		s.Outcome = types.OutcomeFailed
	case len(s.Papers) == 0:
		s.Outcome = types.OutcomePartial
	default:
		s.Outcome = types.OutcomeSuccess
	}
	p.saveSession(context.WithoutCancel(ctx), s)
	return err
}

func (p *Pipeline) run(ctx context.Context, s *Session, rawQuery string, approvedPlan *types.AdaptivePlan) error {
	if approvedPlan != nil {
		// An approved plan may carry user edits; re-planning would discard
		// them.
		s.Plan = approvedPlan
		s.markDone(types.PhasePlanning)
	}

	for {
		phase, ok := p.nextPhase(s)
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		p.emit(phase, "phase started", nil)
		err := p.runPhase(ctx, s, phase, rawQuery)
		if err != nil {
			if errors.Is(err, context.Canceled) || phase == types.PhasePlanning {
				return err
			}
			// Non-fatal: record and advance with fewer inputs.
			logging.PipelineError("phase %s failed: %v", phase, err)
			p.emit(phase, "phase failed: "+err.Error(), nil)
			s.markDone(phase)
			continue
		}
		p.saveCheckpoint(ctx, s, phase, "")
		p.emit(phase, "phase complete", map[string]any{"papers": len(s.Papers)})
	}
}

// nextPhase returns the first active phase not yet completed. Before the
// plan exists only planning can run.
func (p *Pipeline) nextPhase(s *Session) (string, bool) {
	if s.Plan == nil {
		if s.PhaseDone(types.PhasePlanning) {
			return "", false
		}
		return types.PhasePlanning, true
	}
	for _, phase := range s.Plan.Phases.ActivePhases {
		if !s.PhaseDone(phase) {
			return phase, true
		}
	}
	return "", false
}

func (p *Pipeline) runPhase(ctx context.Context, s *Session, phase, rawQuery string) error {
	switch phase {
	case types.PhasePlanning:
		return p.phasePlanning(ctx, s, rawQuery)
	case types.PhaseExecution:
		return p.phaseExecution(ctx, s)
	case types.PhasePersistence:
		return p.phasePersistence(s)
	case types.PhaseAnalysis:
		return p.phaseAnalysis(ctx, s)
	case types.PhaseScreening:
		return p.phaseScreening(ctx, s)
	case types.PhasePDFLoading:
		return p.phasePDFLoading(ctx, s)
	case types.PhaseEvidence:
		return p.phaseEvidence(ctx, s)
	case types.PhaseClustering:
		return p.phaseClustering(ctx, s)
	case types.PhaseClaims:
		return p.phaseClaims(ctx, s)
	case types.PhaseGapMining:
		return p.phaseGapMining(s)
	case types.PhaseWriting:
		return p.phaseWriting(s)
	case types.PhaseAudit:
		return p.phaseAudit(ctx, s)
	case types.PhasePublish:
		return p.phasePublish(s)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
}

func (p *Pipeline) emit(phase, message string, data map[string]any) {
	logging.Pipeline("[%s] %s", phase, message)
	if p.progress != nil {
		p.progress(phase, message, data)
	}
}

// persistPartial saves already-collected papers on cancellation,
// best-effort.
func (p *Pipeline) persistPartial(s *Session) {
	if p.local == nil {
		return
	}
	for _, paper := range s.Papers {
		if err := p.local.UpsertPaper(paper); err != nil {
			logging.StoreError("partial persist failed for %s: %v", paper.ID, err)
			return
		}
	}
}
