package types

import "context"

// LLMClient defines the interface for LLM interactions. Implementations live
// in internal/llm; mocks implement it directly in tests.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteJSON asks the model for a JSON document. Callers still tolerate
	// JSON embedded in prose and extract the first object/array.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder produces text embeddings for clustering.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProgressFunc receives phase progress events from the pipeline. Phases emit
// at least on entry and on exit; execution also emits per step.
type ProgressFunc func(phase, message string, data map[string]any)

// ApprovalFunc resolves a HITL gate. Returning false rejects the guarded
// action; the guarded phase is then skipped.
type ApprovalFunc func(ctx context.Context, gate *Gate) (bool, error)

// GateKind names a HITL gate type.
type GateKind string

const (
	GatePDFDownload     GateKind = "pdf_download"
	GateExternalCrawl   GateKind = "external_crawl"
	GateHighTokenBudget GateKind = "high_token_budget"
)

// Gate is one pending approval request.
type Gate struct {
	ID       string         `json:"id"`
	Kind     GateKind       `json:"kind"`
	Phase    string         `json:"phase"`
	Context  map[string]any `json:"context,omitempty"`
	Approved bool           `json:"approved"`
	Resolved bool           `json:"resolved"`
}
