package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"deepscholar/internal/types"
)

func auditSpans() map[string]*types.EvidenceSpan {
	return map[string]*types.EvidenceSpan{
		"arxiv:1#aaaa1111": {SpanID: "arxiv:1#aaaa1111", PaperID: "arxiv:1", Field: types.FieldResult,
			Snippet: "accuracy improves by 4 points"},
	}
}

func TestAuditZeroClaims(t *testing.T) {
	mock := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"supported": true}`, nil
		},
	}
	a := NewAuditor(mock, 2)

	result, err := a.Audit(context.Background(), nil, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.PassRate() != 1.0 {
		t.Errorf("pass rate = %v, want 1.0", result.PassRate())
	}
	if mock.calls.Load() != 0 {
		t.Errorf("llm called %d times for zero claims", mock.calls.Load())
	}
}

func TestAuditSalienceFloorSkips(t *testing.T) {
	mock := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"supported": true}`, nil
		},
	}
	a := NewAuditor(mock, 2)

	claims := []*types.Claim{
		{ID: "low", Text: "Barely relevant.", EvidenceSpanIDs: []string{"arxiv:1#aaaa1111"}, Salience: 0.1},
		{ID: "high", Text: "Central finding.", EvidenceSpanIDs: []string{"arxiv:1#aaaa1111"}, Salience: 0.9},
	}
	result, err := a.Audit(context.Background(), claims, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 1 || result.Passed != 1 {
		t.Errorf("result = %+v", result)
	}
	if mock.calls.Load() != 1 {
		t.Errorf("llm called %d times, want 1", mock.calls.Load())
	}
}

func TestAuditUnresolvableSpanIsMajorWithoutJudging(t *testing.T) {
	mock := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"supported": true}`, nil
		},
	}
	a := NewAuditor(mock, 1)

	claim := &types.Claim{
		ID: "c", Text: "Models always generalize.",
		EvidenceSpanIDs: []string{"ghost#00000000"}, Salience: 0.9,
	}
	result, err := a.Audit(context.Background(), []*types.Claim{claim}, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedMajor != 1 || result.Repaired != 1 {
		t.Errorf("result = %+v", result)
	}
	if mock.calls.Load() != 0 {
		t.Errorf("judge called for an unresolvable span")
	}
	if !claim.Uncertainty {
		t.Error("uncertainty flag not set")
	}
	if claim.Text != "Evidence suggests that models always generalize." {
		t.Errorf("text = %q", claim.Text)
	}
	if result.PassRate() != 0 {
		t.Errorf("pass rate = %v", result.PassRate())
	}
}

func TestAuditMinorFailureFlagsUncertainty(t *testing.T) {
	mock := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"supported": false, "severity": "minor"}`, nil
		},
	}
	a := NewAuditor(mock, 1)

	claim := &types.Claim{
		ID: "c", Text: "Accuracy improves by roughly 4 points.",
		EvidenceSpanIDs: []string{"arxiv:1#aaaa1111"}, Salience: 0.8,
	}
	result, err := a.Audit(context.Background(), []*types.Claim{claim}, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedMinor != 1 {
		t.Errorf("result = %+v", result)
	}
	if !claim.Uncertainty {
		t.Error("uncertainty flag not set")
	}
	// Minor failures keep the original text.
	if claim.Text != "Accuracy improves by roughly 4 points." {
		t.Errorf("text = %q", claim.Text)
	}
}

func TestAuditMajorFailureUsesRewrite(t *testing.T) {
	var judged int
	mock := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			judged++
			if judged == 1 {
				return `{"supported": false, "severity": "major", "rewrite": "Accuracy improves on one benchmark."}`, nil
			}
			return `{"supported": true}`, nil
		},
	}
	a := NewAuditor(mock, 1)

	claim := &types.Claim{
		ID: "c", Text: "Accuracy improves everywhere.",
		EvidenceSpanIDs: []string{"arxiv:1#aaaa1111"}, Salience: 0.9,
	}
	result, err := a.Audit(context.Background(), []*types.Claim{claim}, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedMajor != 1 || result.Repaired != 1 {
		t.Errorf("result = %+v", result)
	}
	if claim.Text != "Accuracy improves on one benchmark." {
		t.Errorf("text = %q", claim.Text)
	}
	if !claim.Uncertainty {
		t.Error("uncertainty flag not set")
	}
}

func TestAuditJudgeErrorCountsAsMinor(t *testing.T) {
	mock := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("timeout")
		},
	}
	a := NewAuditor(mock, 1)

	claim := &types.Claim{
		ID: "c", Text: "A finding.",
		EvidenceSpanIDs: []string{"arxiv:1#aaaa1111"}, Salience: 0.9,
	}
	result, err := a.Audit(context.Background(), []*types.Claim{claim}, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedMinor != 1 {
		t.Errorf("result = %+v", result)
	}
	if !claim.Uncertainty {
		t.Error("uncertainty flag not set")
	}
}

func TestAuditNilLLMPassesEverything(t *testing.T) {
	a := NewAuditor(nil, 1)
	claims := []*types.Claim{
		{ID: "c", Text: "Anything goes.", EvidenceSpanIDs: []string{"arxiv:1#aaaa1111"}, Salience: 0.9},
	}
	result, err := a.Audit(context.Background(), claims, auditSpans())
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed != 1 || result.PassRate() != 1.0 {
		t.Errorf("result = %+v", result)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]string{
		"major": "major", " MAJOR ": "major", "minor": "minor",
		"catastrophic": "minor", "": "minor",
	}
	for in, want := range cases {
		if got := normalizeSeverity(in); got != want {
			t.Errorf("normalizeSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLowerFirst(t *testing.T) {
	if got := lowerFirst("Models"); got != "models" {
		t.Errorf("got %q", got)
	}
	if got := lowerFirst(""); got != "" {
		t.Errorf("got %q", got)
	}
	if got := lowerFirst("x"); !strings.EqualFold(got, "x") {
		t.Errorf("got %q", got)
	}
}
