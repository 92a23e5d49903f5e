// Package types defines the shared data model for deepscholar: conversations,
// research plans, papers, extracted evidence, and the synthesis artifacts
// built on top of them. Cross-references between aggregates are kept as ids,
// never pointers.
package types

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// QueryType routes a request through the quick or the full pipeline.
type QueryType string

const (
	QueryQuick QueryType = "quick"
	QueryFull  QueryType = "full"
)

// Complexity classifies a raw user query for the clarifier.
type Complexity string

const (
	ComplexitySimple    Complexity = "simple"
	ComplexityCompound  Complexity = "compound"
	ComplexityAmbiguous Complexity = "ambiguous"
)

// PaperStatus tracks a paper through the synthesis phases.
type PaperStatus string

const (
	StatusRaw        PaperStatus = "raw"
	StatusScreened   PaperStatus = "screened"
	StatusFulltext   PaperStatus = "fulltext"
	StatusExtracted  PaperStatus = "extracted"
	StatusScored     PaperStatus = "scored"
	StatusSummarized PaperStatus = "summarized"
	StatusIndexed    PaperStatus = "indexed"
	StatusReported   PaperStatus = "reported"
)

// scoredStatuses is the set of statuses a paper may hold once it carries a
// relevance score.
var scoredStatuses = map[PaperStatus]bool{
	StatusScreened: true, StatusFulltext: true, StatusExtracted: true,
	StatusScored: true, StatusSummarized: true, StatusIndexed: true,
	StatusReported: true,
}

// StatusAllowsScore reports whether a paper in the given status may carry a
// non-nil relevance score.
func StatusAllowsScore(s PaperStatus) bool { return scoredStatuses[s] }

// PageInfo locates a character-offset range on a page/section of a PDF.
type PageInfo struct {
	Page      int    `json:"page"`
	Section   string `json:"section,omitempty"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Paper is the canonical record flowing through the pipeline.
type Paper struct {
	ID      string `json:"id,omitempty"`
	ArxivID string `json:"arxiv_id,omitempty"`
	DOI     string `json:"doi,omitempty"`

	Title      string    `json:"title"`
	Abstract   string    `json:"abstract,omitempty"`
	Authors    []string  `json:"authors,omitempty"`
	Published  time.Time `json:"published,omitempty"`
	Source     string    `json:"source_type,omitempty"`
	AbsURL     string    `json:"url,omitempty"`
	PDFURL     string    `json:"pdf_url,omitempty"`
	Categories []string  `json:"categories,omitempty"`

	Status         PaperStatus `json:"status"`
	RelevanceScore *float64    `json:"relevance_score,omitempty"` // [0,10]
	Summary        string      `json:"summary,omitempty"`
	ClusterID      string      `json:"cluster_id,omitempty"`
	PlanID         string      `json:"plan_id,omitempty"`
	StepID         int         `json:"step_id,omitempty"`

	FullText string     `json:"full_text,omitempty"`
	PageMap  []PageInfo `json:"page_map,omitempty"`

	MetaHash string `json:"meta_hash,omitempty"`
	PDFHash  string `json:"pdf_hash,omitempty"`
}

// FirstAuthor returns the first author or "".
func (p *Paper) FirstAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0]
}

// SetScore assigns a relevance score and promotes the status when needed so
// the score/status invariant holds.
func (p *Paper) SetScore(score float64) {
	p.RelevanceScore = &score
	if !StatusAllowsScore(p.Status) {
		p.Status = StatusScored
	}
}

// StepAction tags what a plan step does.
type StepAction string

const (
	ActionResearch   StepAction = "research"
	ActionCollect    StepAction = "collect"
	ActionAnalyze    StepAction = "analyze"
	ActionSynthesize StepAction = "synthesize"
)

// ResearchStep is one ordered unit of a ResearchPlan.
type ResearchStep struct {
	ID          int            `json:"id"`
	Action      StepAction     `json:"action"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Queries     []string       `json:"queries,omitempty"`
	Sources     []string       `json:"sources,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	ToolArgs    map[string]any `json:"tool_args,omitempty"`
	Completed   bool           `json:"completed"`
}

// ResearchPlan is the approved unit of work driven by the executor.
type ResearchPlan struct {
	ID             string         `json:"id"`
	Topic          string         `json:"topic"`
	Summary        string         `json:"summary,omitempty"`
	Steps          []ResearchStep `json:"steps"`
	OutputLanguage string         `json:"output_language,omitempty"`
}

// Renumber makes step ids contiguous starting at 1.
func (p *ResearchPlan) Renumber() {
	for i := range p.Steps {
		p.Steps[i].ID = i + 1
	}
}

// QueryInfo is the parsed view of the raw user query.
type QueryInfo struct {
	Original      string    `json:"original"`
	Type          QueryType `json:"type"`
	MainTopic     string    `json:"main_topic"`
	URLs          []string  `json:"urls,omitempty"`
	SkipSynthesis bool      `json:"skip_synthesis"`
}

// Phase names of the adaptive pipeline, in canonical order.
const (
	PhasePlanning    = "planning"
	PhaseExecution   = "execution"
	PhasePersistence = "persistence"
	PhaseAnalysis    = "analysis"
	PhaseScreening   = "screening"
	PhasePDFLoading  = "pdf_loading"
	PhaseEvidence    = "evidence_extraction"
	PhaseClustering  = "clustering"
	PhaseClaims      = "claim_generation"
	PhaseGapMining   = "gap_mining"
	PhaseWriting     = "writing"
	PhaseAudit       = "citation_audit"
	PhasePublish     = "publish"
)

// PhaseConfig lists the phases active for a plan, in execution order.
type PhaseConfig struct {
	ActivePhases []string `json:"active_phases"`
}

// Has reports whether a phase is active.
func (c PhaseConfig) Has(phase string) bool {
	for _, p := range c.ActivePhases {
		if p == phase {
			return true
		}
	}
	return false
}

// AdaptivePlan bundles the approved plan with its routing decision.
type AdaptivePlan struct {
	Plan   *ResearchPlan `json:"plan"`
	Query  QueryInfo     `json:"query"`
	Phases PhaseConfig   `json:"phases"`
}

// ResearchRequest is the append-only input handed to the planner.
type ResearchRequest struct {
	Topic      string     `json:"topic"`
	Keywords   []string   `json:"keywords,omitempty"`
	SourceURLs []string   `json:"source_urls,omitempty"`
	Questions  []string   `json:"questions,omitempty"`
	TimeFrom   *time.Time `json:"time_from,omitempty"`
	TimeTo     *time.Time `json:"time_to,omitempty"`
	Language   string     `json:"language,omitempty"`
	MaxPapers  int        `json:"max_papers,omitempty"`
}

// ScreeningTier buckets a screened paper.
type ScreeningTier string

const (
	TierCore       ScreeningTier = "core"
	TierBackground ScreeningTier = "background"
	TierExclude    ScreeningTier = "exclude"
)

// ScreeningRecord is write-once per (paper, screening run).
type ScreeningRecord struct {
	PaperID   string        `json:"paper_id"`
	Tier      ScreeningTier `json:"tier"`
	Include   bool          `json:"include"`
	Reason    string        `json:"reason"`
	Rationale string        `json:"rationale,omitempty"`
	Score     float64       `json:"score"`
}

// EvidenceField tags the kind of fact an evidence span carries.
type EvidenceField string

const (
	FieldProblem    EvidenceField = "problem"
	FieldMethod     EvidenceField = "method"
	FieldDataset    EvidenceField = "dataset"
	FieldMetric     EvidenceField = "metric"
	FieldResult     EvidenceField = "result"
	FieldLimitation EvidenceField = "limitation"
)

// EvidenceFields lists all span fields in canonical order.
var EvidenceFields = []EvidenceField{
	FieldProblem, FieldMethod, FieldDataset,
	FieldMetric, FieldResult, FieldLimitation,
}

// MaxSnippetLen bounds a span's verbatim snippet.
const MaxSnippetLen = 300

// Locator pins a snippet inside a paper's full text.
type Locator struct {
	Page      int    `json:"page,omitempty"`
	Section   string `json:"section,omitempty"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// EvidenceSpan is an immutable verbatim snippet with a deterministic id.
type EvidenceSpan struct {
	SpanID     string        `json:"span_id"`
	PaperID    string        `json:"paper_id"`
	Field      EvidenceField `json:"field"`
	Snippet    string        `json:"snippet"`
	Loc        *Locator      `json:"locator,omitempty"`
	Confidence float64       `json:"confidence"`
	SourceURL  string        `json:"source_url,omitempty"`
}

// SpanID derives the deterministic span id {paper_id}#{sha1(snippet)[:8]}.
func SpanID(paperID, snippet string) string {
	sum := sha1.Sum([]byte(snippet))
	return paperID + "#" + hex.EncodeToString(sum[:])[:8]
}

// StudyCard aggregates the extracted fields of one paper. Every populated
// field must be backed by at least one span id in EvidenceSpanIDs.
type StudyCard struct {
	PaperID         string   `json:"paper_id"`
	Problem         string   `json:"problem,omitempty"`
	Method          string   `json:"method,omitempty"`
	Datasets        []string `json:"datasets,omitempty"`
	Metrics         []string `json:"metrics,omitempty"`
	Results         string   `json:"results,omitempty"`
	Limitations     string   `json:"limitations,omitempty"`
	EvidenceSpanIDs []string `json:"evidence_span_ids"`
}

// Cluster groups papers under a theme. A paper belongs to at most one cluster.
type Cluster struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PaperIDs    []string `json:"paper_ids"`
	PlanID      string   `json:"plan_id,omitempty"`
}

// Claim is an atomic statement grounded in evidence spans.
type Claim struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	EvidenceSpanIDs []string `json:"evidence_span_ids"`
	ThemeID         string   `json:"theme_id"`
	Salience        float64  `json:"salience"`
	Uncertainty     bool     `json:"uncertainty_flag"`
}

// TaxonomyCell keys the sparse taxonomy matrix.
type TaxonomyCell struct {
	Theme   string `json:"theme"`
	Dataset string `json:"dataset"`
	Metric  string `json:"metric"`
}

// TaxonomyMatrix is the comparative view over the corpus.
type TaxonomyMatrix struct {
	Themes         []string                  `json:"themes"`
	Datasets       []string                  `json:"datasets"`
	Metrics        []string                  `json:"metrics"`
	MethodFamilies []string                  `json:"method_families,omitempty"`
	Cells          map[TaxonomyCell][]string `json:"-"`
}

// DirectionType classifies a mined future direction.
type DirectionType string

const (
	DirectionOpenProblem    DirectionType = "open_problem"
	DirectionOpportunity    DirectionType = "research_opportunity"
	DirectionNextExperiment DirectionType = "next_experiment"
)

// GapSource names where a future direction was mined from.
type GapSource string

const (
	GapLimitationCluster    GapSource = "limitation_cluster"
	GapContradictoryResults GapSource = "contradictory_results"
	GapTaxonomyHole         GapSource = "taxonomy_hole"
)

// FutureDirection is a research gap grounded (where possible) in limitation
// spans.
type FutureDirection struct {
	Type        DirectionType `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	SpanIDs     []string      `json:"span_ids,omitempty"`
	Source      GapSource     `json:"gap_source"`
}

// SessionOutcome records how a research session ended.
type SessionOutcome string

const (
	OutcomeSuccess   SessionOutcome = "success"
	OutcomePartial   SessionOutcome = "partial"
	OutcomeFailed    SessionOutcome = "failed"
	OutcomeAbandoned SessionOutcome = "abandoned"
)

// ResearchEpisode is the episodic-memory record of a completed session.
type ResearchEpisode struct {
	ID            string         `json:"id"` // == session id
	UserID        string         `json:"user_id"`
	Topic         string         `json:"topic"`
	OriginalQuery string         `json:"original_query"`
	RefinedQuery  string         `json:"refined_query,omitempty"`
	PapersFound   int            `json:"papers_found"`
	Relevant      int            `json:"relevant_papers"`
	HighRelevance int            `json:"high_relevance_papers"`
	Clusters      int            `json:"clusters"`
	Outcome       SessionOutcome `json:"outcome"`
	Duration      time.Duration  `json:"duration"`
	SourcesUsed   []string       `json:"sources_used,omitempty"`
	GoodKeywords  []string       `json:"effective_keywords,omitempty"`
	BadKeywords   []string       `json:"ineffective_keywords,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// UserPreferences is the procedural-memory record for one user.
type UserPreferences struct {
	UserID             string   `json:"user_id"`
	Language           string   `json:"language,omitempty"`
	PreferredSources   []string `json:"preferred_sources,omitempty"`
	MinPapers          int      `json:"min_papers,omitempty"`
	MaxPapers          int      `json:"max_papers,omitempty"`
	RelevanceThreshold float64  `json:"relevance_threshold,omitempty"`
	ReportStyle        string   `json:"report_style,omitempty"`
	CommonTopics       []string `json:"common_topics,omitempty"`
	FavoriteKeywords   []string `json:"favorite_keywords,omitempty"`
	SkipClarification  bool     `json:"skip_clarification"`
	AutoApproveSimple  bool     `json:"auto_approve_simple"`
	InteractionCount   int      `json:"interaction_count"`
}

// ExperienceLevel buckets users by interaction count.
type ExperienceLevel string

const (
	ExperienceNew     ExperienceLevel = "new"
	ExperienceRegular ExperienceLevel = "regular"
	ExperienceExpert  ExperienceLevel = "expert"
)

// Experience derives the level from the interaction count.
func (p *UserPreferences) Experience() ExperienceLevel {
	switch {
	case p.InteractionCount == 0:
		return ExperienceNew
	case p.InteractionCount < 10:
		return ExperienceRegular
	default:
		return ExperienceExpert
	}
}
