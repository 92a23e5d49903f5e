package gate

import (
	"context"
	"errors"
	"testing"

	"deepscholar/internal/types"
)

func TestPDFDownloadBelowLimitSkipsGate(t *testing.T) {
	called := false
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		called = true
		return false, nil
	}, 15, 0, nil)

	ok, err := m.CheckPDFDownload(context.Background(), types.PhasePDFLoading, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("below-limit download blocked")
	}
	if called {
		t.Error("approval callback fired below the limit")
	}
	if len(m.Resolved()) != 0 {
		t.Error("no gate should be recorded")
	}
}

func TestPDFDownloadOverLimitAsksApproval(t *testing.T) {
	var got *types.Gate
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		got = g
		return true, nil
	}, 15, 0, nil)

	ok, err := m.CheckPDFDownload(context.Background(), types.PhasePDFLoading, 20)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("approved gate should pass")
	}
	if got == nil {
		t.Fatal("approval callback never fired")
	}
	if got.Kind != types.GatePDFDownload {
		t.Errorf("kind = %s", got.Kind)
	}
	if got.Context["papers_to_download"] != 20 {
		t.Errorf("context = %v", got.Context)
	}
	if got.Context["estimated_bandwidth_mb"] != 40 {
		t.Errorf("bandwidth estimate = %v", got.Context["estimated_bandwidth_mb"])
	}

	resolved := m.Resolved()
	if len(resolved) != 1 || !resolved[0].Resolved || !resolved[0].Approved {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestPDFDownloadRejection(t *testing.T) {
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		return false, nil
	}, 15, 0, nil)

	ok, err := m.CheckPDFDownload(context.Background(), types.PhasePDFLoading, 100)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("rejected gate should not pass")
	}
	if resolved := m.Resolved(); len(resolved) != 1 || resolved[0].Approved {
		t.Errorf("rejection not recorded: %+v", resolved)
	}
}

func TestNilApprovalAutoApproves(t *testing.T) {
	m := NewManager(nil, 1, 1, nil)

	ok, err := m.CheckPDFDownload(context.Background(), types.PhasePDFLoading, 50)
	if err != nil || !ok {
		t.Errorf("auto-approve failed: ok=%v err=%v", ok, err)
	}
	ok, err = m.CheckTokenBudget(context.Background(), types.PhaseScreening, 1_000_000)
	if err != nil || !ok {
		t.Errorf("auto-approve failed: ok=%v err=%v", ok, err)
	}
}

func TestExternalCrawlTrustedDomains(t *testing.T) {
	called := false
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		called = true
		return true, nil
	}, 0, 0, []string{"arxiv.org", "huggingface.co"})

	urls := []string{
		"https://arxiv.org/abs/1706.03762",
		"https://www.arxiv.org/abs/1810.04805",
		"https://huggingface.co/papers",
	}
	ok, err := m.CheckExternalCrawl(context.Background(), types.PhasePlanning, urls)
	if err != nil || !ok {
		t.Fatalf("trusted urls gated: ok=%v err=%v", ok, err)
	}
	if called {
		t.Error("trusted-only urls should not trigger the gate")
	}
}

func TestExternalCrawlFlagsUntrusted(t *testing.T) {
	var got *types.Gate
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		got = g
		return true, nil
	}, 0, 0, []string{"arxiv.org"})

	_, err := m.CheckExternalCrawl(context.Background(), types.PhasePlanning, []string{
		"https://arxiv.org/abs/1",
		"https://random-blog.example.com/post",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("untrusted url did not trigger the gate")
	}
	external, _ := got.Context["external_urls"].([]string)
	if len(external) != 1 || external[0] != "https://random-blog.example.com/post" {
		t.Errorf("external urls = %v", external)
	}
}

func TestTokenBudgetGateContext(t *testing.T) {
	var got *types.Gate
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		got = g
		return true, nil
	}, 0, 100_000, nil)

	m.CheckTokenBudget(context.Background(), types.PhaseScreening, 200_000)
	if got == nil {
		t.Fatal("gate not triggered")
	}
	if got.Kind != types.GateHighTokenBudget {
		t.Errorf("kind = %s", got.Kind)
	}
	if got.Context["budget"] != 100_000 {
		t.Errorf("budget = %v", got.Context["budget"])
	}
}

func TestApprovalErrorPropagates(t *testing.T) {
	wantErr := errors.New("input closed")
	m := NewManager(func(ctx context.Context, g *types.Gate) (bool, error) {
		return false, wantErr
	}, 1, 0, nil)

	_, err := m.CheckPDFDownload(context.Background(), types.PhasePDFLoading, 10)
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want input error", err)
	}
}
