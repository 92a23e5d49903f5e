// Package gate implements human-in-the-loop approval points. Without an
// approval callback every gate auto-approves, which is the development
// default.
package gate

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// Defaults for gate triggers.
const (
	DefaultPDFCountLimit = 15
	DefaultTokenBudget   = 100_000

	// estimatedMBPerPDF sizes the bandwidth estimate shown to the user.
	estimatedMBPerPDF = 2

	// costPerMillionTokens is the notional dollar figure attached to the
	// token budget gate.
	costPerMillionTokens = 0.30
)

// Manager creates gates and resolves them through the approval callback.
type Manager struct {
	approve        types.ApprovalFunc
	pdfCountLimit  int
	tokenBudget    int
	trustedDomains map[string]bool

	mu       sync.Mutex
	resolved []*types.Gate
}

// NewManager builds a gate manager. approve may be nil (auto-approve).
func NewManager(approve types.ApprovalFunc, pdfCountLimit, tokenBudget int, trustedDomains []string) *Manager {
	if pdfCountLimit <= 0 {
		pdfCountLimit = DefaultPDFCountLimit
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	trusted := map[string]bool{}
	for _, d := range trustedDomains {
		trusted[strings.ToLower(d)] = true
	}
	return &Manager{
		approve:        approve,
		pdfCountLimit:  pdfCountLimit,
		tokenBudget:    tokenBudget,
		trustedDomains: trusted,
	}
}

// CheckPDFDownload gates bulk PDF downloads. Returns true when the phase
// may proceed.
func (m *Manager) CheckPDFDownload(ctx context.Context, phase string, paperCount int) (bool, error) {
	if paperCount <= m.pdfCountLimit {
		return true, nil
	}
	return m.resolve(ctx, &types.Gate{
		Kind:  types.GatePDFDownload,
		Phase: phase,
		Context: map[string]any{
			"papers_to_download":     paperCount,
			"estimated_bandwidth_mb": paperCount * estimatedMBPerPDF,
		},
	})
}

// CheckExternalCrawl gates plans that reach outside the trusted domains.
func (m *Manager) CheckExternalCrawl(ctx context.Context, phase string, urls []string) (bool, error) {
	external := m.externalURLs(urls)
	if len(external) == 0 {
		return true, nil
	}
	return m.resolve(ctx, &types.Gate{
		Kind:  types.GateExternalCrawl,
		Phase: phase,
		Context: map[string]any{
			"external_urls": external,
		},
	})
}

// CheckTokenBudget gates runs whose estimated LLM usage exceeds the budget.
func (m *Manager) CheckTokenBudget(ctx context.Context, phase string, estimatedTokens int) (bool, error) {
	if estimatedTokens <= m.tokenBudget {
		return true, nil
	}
	return m.resolve(ctx, &types.Gate{
		Kind:  types.GateHighTokenBudget,
		Phase: phase,
		Context: map[string]any{
			"estimated_tokens":   estimatedTokens,
			"budget":             m.tokenBudget,
			"estimated_cost_usd": float64(estimatedTokens) / 1_000_000 * costPerMillionTokens,
		},
	})
}

// Resolved returns the gates decided so far, in decision order.
func (m *Manager) Resolved() []*types.Gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Gate(nil), m.resolved...)
}

func (m *Manager) resolve(ctx context.Context, g *types.Gate) (bool, error) {
	g.ID = uuid.NewString()

	approved := true
	if m.approve != nil {
		ok, err := m.approve(ctx, g)
		if err != nil {
			return false, err
		}
		approved = ok
	}
	g.Approved = approved
	g.Resolved = true

	m.mu.Lock()
	m.resolved = append(m.resolved, g)
	m.mu.Unlock()

	logging.Gate("gate %s (%s) in phase %s: approved=%v", g.ID, g.Kind, g.Phase, approved)
	return approved, nil
}

func (m *Manager) externalURLs(urls []string) []string {
	var external []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
		if !m.trustedDomains[host] {
			external = append(external, raw)
		}
	}
	return external
}
