package store

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// LocalStore is the durable SQLite side of the store: papers, evidence spans,
// study cards, claims, screening records and published reports.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			plan_id TEXT,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_papers_plan ON papers(plan_id);`,
		`CREATE TABLE IF NOT EXISTS evidence_spans (
			span_id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL,
			field TEXT NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_spans_paper ON evidence_spans(paper_id);`,
		`CREATE TABLE IF NOT EXISTS study_cards (
			paper_id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS claims (
			id TEXT PRIMARY KEY,
			plan_id TEXT,
			theme_id TEXT,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS screening_records (
			paper_id TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (paper_id, plan_id)
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_session ON reports(session_id);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// PaperID derives the persistent, deterministic id for a paper from its
// identity fields. Papers with neither arXiv id nor DOI fall back to a
// title+first-author fingerprint.
func PaperID(p *types.Paper) string {
	switch {
	case p.ArxivID != "":
		return "arxiv:" + p.ArxivID
	case p.DOI != "":
		return "doi:" + strings.ToLower(p.DOI)
	default:
		sum := md5.Sum([]byte(strings.ToLower(p.Title) + "|" + strings.ToLower(p.FirstAuthor())))
		return "fp:" + hex.EncodeToString(sum[:])
	}
}

// UpsertPaper assigns the persistent id and writes the paper. Idempotent by
// identity fields: a second upsert overwrites the same row.
func (s *LocalStore) UpsertPaper(p *types.Paper) error {
	if p.Title == "" {
		return fmt.Errorf("paper has no title")
	}
	if p.ID == "" {
		p.ID = PaperID(p)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal paper: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO papers (id, plan_id, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET plan_id = excluded.plan_id, data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		p.ID, p.PlanID, string(data))
	if err != nil {
		logging.StoreError("upsert paper %s: %v", p.ID, err)
		return fmt.Errorf("failed to upsert paper: %w", err)
	}
	return nil
}

// GetPaper loads one paper by persistent id.
func (s *LocalStore) GetPaper(id string) (*types.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM papers WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load paper %s: %w", id, err)
	}
	var p types.Paper
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal paper %s: %w", id, err)
	}
	return &p, nil
}

// PapersByPlan loads all papers stamped with the plan id.
func (s *LocalStore) PapersByPlan(planID string) ([]*types.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT data FROM papers WHERE plan_id = ? ORDER BY id`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query papers: %w", err)
	}
	defer rows.Close()

	var papers []*types.Paper
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p types.Paper
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		papers = append(papers, &p)
	}
	return papers, rows.Err()
}

// SaveSpans writes evidence spans. Span ids are deterministic, so re-running
// extraction replaces rather than duplicates.
func (s *LocalStore) SaveSpans(spans []*types.EvidenceSpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO evidence_spans (span_id, paper_id, field, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(span_id) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, span := range spans {
		data, err := json.Marshal(span)
		if err != nil {
			return fmt.Errorf("failed to marshal span %s: %w", span.SpanID, err)
		}
		if _, err := stmt.Exec(span.SpanID, span.PaperID, string(span.Field), string(data)); err != nil {
			return fmt.Errorf("failed to save span %s: %w", span.SpanID, err)
		}
	}
	return tx.Commit()
}

// GetSpan resolves one span id.
func (s *LocalStore) GetSpan(spanID string) (*types.EvidenceSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM evidence_spans WHERE span_id = ?`, spanID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var span types.EvidenceSpan
	if err := json.Unmarshal([]byte(data), &span); err != nil {
		return nil, err
	}
	return &span, nil
}

// SpansByPaper loads all spans extracted from one paper.
func (s *LocalStore) SpansByPaper(paperID string) ([]*types.EvidenceSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT data FROM evidence_spans WHERE paper_id = ? ORDER BY span_id`, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []*types.EvidenceSpan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var span types.EvidenceSpan
		if err := json.Unmarshal([]byte(data), &span); err != nil {
			return nil, err
		}
		spans = append(spans, &span)
	}
	return spans, rows.Err()
}

// SaveStudyCard writes one card, replacing any previous extraction.
func (s *LocalStore) SaveStudyCard(card *types.StudyCard) error {
	data, err := json.Marshal(card)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO study_cards (paper_id, data) VALUES (?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET data = excluded.data`, card.PaperID, string(data))
	return err
}

// SaveClaims writes claims for a plan.
func (s *LocalStore) SaveClaims(planID string, claims []*types.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range claims {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO claims (id, plan_id, theme_id, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`, c.ID, planID, c.ThemeID, string(data)); err != nil {
			return fmt.Errorf("failed to save claim %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// SaveScreening writes one screening record. Write-once per (paper, plan):
// an existing record is kept.
func (s *LocalStore) SaveScreening(planID string, rec *types.ScreeningRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO screening_records (paper_id, plan_id, data) VALUES (?, ?, ?)
		ON CONFLICT(paper_id, plan_id) DO NOTHING`, rec.PaperID, planID, string(data))
	return err
}

// SaveReport persists a published report and returns its identifier.
func (s *LocalStore) SaveReport(sessionID, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO reports (session_id, content) VALUES (?, ?)`, sessionID, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	logging.Store("report saved: session=%s id=%d bytes=%d", sessionID, id, len(content))
	return fmt.Sprintf("report-%d", id), nil
}

// ReportBySession returns the most recent report for a session.
func (s *LocalStore) ReportBySession(sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var content string
	err := s.db.QueryRow(`SELECT content FROM reports WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return content, err
}

// Stats returns row counts for diagnostics.
func (s *LocalStore) Stats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, table := range []string{"papers", "evidence_spans", "study_cards", "claims", "screening_records", "reports"} {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, err
		}
		stats[table] = n
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *LocalStore) Path() string { return s.dbPath }
