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
	"deepscholar/internal/types"
)

const (
	// auditSalienceFloor skips low-salience claims entirely.
	auditSalienceFloor = 0.3

	maxRepairPasses = 2
)

// AuditResult summarizes an audit run.
type AuditResult struct {
	Passed      int `json:"passed"`
	FailedMajor int `json:"failed_major"`
	FailedMinor int `json:"failed_minor"`
	Repaired    int `json:"repaired"`
	Skipped     int `json:"skipped"`
}

// PassRate is passed over audited claims; with nothing audited it is 1.
func (r AuditResult) PassRate() float64 {
	audited := r.Passed + r.FailedMajor + r.FailedMinor
	if audited == 0 {
		return 1.0
	}
	return float64(r.Passed) / float64(audited)
}

// Auditor verifies that claims are supported by their cited spans and
// repairs the ones that are not. It never invents new spans.
type Auditor struct {
	llm         types.LLMClient
	concurrency int
}

// NewAuditor builds an auditor with the given per-claim concurrency bound.
func NewAuditor(llmClient types.LLMClient, concurrency int) *Auditor {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Auditor{llm: llmClient, concurrency: concurrency}
}

type judgement struct {
	Supported bool   `json:"supported"`
	Severity  string `json:"severity"`
	Rewrite   string `json:"rewrite"`
}

// Audit checks every claim with salience above the floor, mutating failing
// claims in place. Zero claims means a perfect pass with no LLM calls.
func (a *Auditor) Audit(ctx context.Context, claims []*types.Claim, spans map[string]*types.EvidenceSpan) (AuditResult, error) {
	var result AuditResult
	if len(claims) == 0 {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	var mu sync.Mutex
	for _, claim := range claims {
		if claim.Salience < auditSalienceFloor {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			outcome := a.auditClaim(gctx, claim, spans)
			mu.Lock()
			switch outcome {
			case "passed":
				result.Passed++
			case "minor":
				result.FailedMinor++
				result.Repaired++
			case "major":
				result.FailedMajor++
				result.Repaired++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	logging.Get(logging.CategoryAudit).Info("audit: %d passed, %d minor, %d major, %d repaired, pass rate %.2f",
		result.Passed, result.FailedMinor, result.FailedMajor, result.Repaired, result.PassRate())
	return result, nil
}

// auditClaim returns "passed", "minor", or "major". Unresolvable span ids
// are a major failure without asking the LLM.
func (a *Auditor) auditClaim(ctx context.Context, claim *types.Claim, spans map[string]*types.EvidenceSpan) string {
	var snippets []string
	for _, id := range claim.EvidenceSpanIDs {
		span, ok := spans[id]
		if !ok {
			a.repair(claim, "major", "")
			return "major"
		}
		snippets = append(snippets, span.Snippet)
	}

	verdict := a.judge(ctx, claim.Text, snippets)
	if verdict.Supported {
		return "passed"
	}

	firstSeverity := normalizeSeverity(verdict.Severity)
	for pass := 0; pass < maxRepairPasses && !verdict.Supported; pass++ {
		a.repair(claim, normalizeSeverity(verdict.Severity), verdict.Rewrite)
		if normalizeSeverity(verdict.Severity) != "major" {
			break
		}
		verdict = a.judge(ctx, claim.Text, snippets)
	}
	return firstSeverity
}

func normalizeSeverity(s string) string {
	if strings.ToLower(strings.TrimSpace(s)) == "major" {
		return "major"
	}
	return "minor"
}

// judge asks the LLM whether the snippets support the claim. Parse and
// transport failures count as an unsupported minor verdict so the claim
// gets flagged rather than silently passing.
func (a *Auditor) judge(ctx context.Context, claimText string, snippets []string) judgement {
	if a.llm == nil {
		return judgement{Supported: true}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n\nEvidence snippets:\n", claimText)
	for _, s := range snippets {
		fmt.Fprintf(&b, "- %q\n", s)
	}

	system := "You audit whether evidence snippets semantically support a claim.\n" +
		"Return one JSON object {\"supported\": bool, \"severity\": \"minor\"|\"major\", \"rewrite\": string}.\n" +
		"severity applies only when unsupported: minor means overstated nuance, major means the evidence does not back the claim.\n" +
		"rewrite is a more conservative phrasing that the evidence does support, or empty."

	reply, err := a.llm.CompleteJSON(ctx, system, b.String())
	if err != nil {
		logging.Get(logging.CategoryAudit).Warn("audit judge failed: %v", err)
		return judgement{Supported: false, Severity: "minor"}
	}

	var v judgement
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &v); err != nil {
		return judgement{Supported: false, Severity: "minor"}
	}
	return v
}

// repair applies the auto-repair policy: minor failures flag uncertainty,
// major failures additionally rewrite the claim conservatively.
func (a *Auditor) repair(claim *types.Claim, severity, rewrite string) {
	claim.Uncertainty = true
	if severity != "major" {
		return
	}
	if rewrite = strings.TrimSpace(rewrite); rewrite != "" {
		claim.Text = rewrite
		return
	}
	if !strings.HasPrefix(claim.Text, "Evidence suggests") {
		claim.Text = "Evidence suggests that " + lowerFirst(claim.Text)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
