// Package pipeline drives the adaptive research pipeline: an ordered set of
// checkpointed phases over one research session. Phases are idempotent and
// resumable; cancellation persists partial results and marks the session
// abandoned.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"deepscholar/internal/executor"
	"deepscholar/internal/logging"
	"deepscholar/internal/store"
	"deepscholar/internal/synthesis"
	"deepscholar/internal/types"
)

// Session is the run state carried across phases. Everything needed to
// resume is serialized to the KV under session:{id}; large artifacts live
// in the SQLite store keyed by plan id.
type Session struct {
	ID      string               `json:"id"`
	UserID  string               `json:"user_id"`
	Request *types.ResearchRequest `json:"request"`
	Plan    *types.AdaptivePlan  `json:"plan,omitempty"`

	CompletedPhases []string `json:"completed_phases,omitempty"`

	Papers     []*types.Paper           `json:"-"`
	Records    []*types.ScreeningRecord `json:"-"`
	Cards      map[string]*types.StudyCard    `json:"-"`
	Spans      map[string]*types.EvidenceSpan `json:"-"`
	Clusters   []*types.Cluster         `json:"-"`
	Claims     []*types.Claim           `json:"-"`
	Matrix     *types.TaxonomyMatrix    `json:"-"`
	Directions []*types.FutureDirection `json:"-"`

	ExecResult *executor.Result      `json:"-"`
	Audit      synthesis.AuditResult `json:"audit,omitempty"`

	ReportID string               `json:"report_id,omitempty"`
	Report   string               `json:"-"`
	Outcome  types.SessionOutcome `json:"outcome,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// PhaseDone reports whether a phase completed in a previous run.
func (s *Session) PhaseDone(phase string) bool {
	for _, p := range s.CompletedPhases {
		if p == phase {
			return true
		}
	}
	return false
}

func (s *Session) markDone(phase string) {
	if !s.PhaseDone(phase) {
		s.CompletedPhases = append(s.CompletedPhases, phase)
	}
}

// checkpoint is what each phase persists under checkpoint:{session}:{phase}.
type checkpoint struct {
	Phase      string    `json:"phase"`
	Done       bool      `json:"done"`
	PaperCount int       `json:"paper_count,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

func (p *Pipeline) saveCheckpoint(ctx context.Context, s *Session, phase, detail string) {
	cp := checkpoint{
		Phase:      phase,
		Done:       true,
		PaperCount: len(s.Papers),
		Detail:     detail,
		At:         time.Now(),
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return
	}
	if err := p.kv.SetEx(ctx, store.KeyCheckpoint(s.ID, phase), string(raw), p.sessionTTL); err != nil {
		logging.StoreError("checkpoint write failed for %s/%s: %v", s.ID, phase, err)
	}
	s.markDone(phase)
	p.saveSession(ctx, s)
}

func (p *Pipeline) saveSession(ctx context.Context, s *Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := p.kv.SetEx(ctx, store.KeySession(s.ID), string(raw), p.sessionTTL); err != nil {
		logging.StoreError("session write failed for %s: %v", s.ID, err)
	}
}

// LoadSession restores a session snapshot for resume. Artifacts are
// rehydrated from the SQLite store by the phases that need them.
func (p *Pipeline) LoadSession(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := p.kv.Get(ctx, store.KeySession(sessionID))
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
