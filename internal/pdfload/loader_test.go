package pdfload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

func TestLoadRejectsPaywalledWithoutFetching(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	l := NewLoader(store.NewMemoryKV(), time.Second, "test-agent")
	p := &types.Paper{ID: "doi:x", Title: "x", PDFURL: "https://dl.acm.org/doi/pdf/10.1145/1"}

	err := l.Load(context.Background(), p)
	if !errors.Is(err, ErrPaywalled) {
		t.Fatalf("got %v, want ErrPaywalled", err)
	}
	if requests.Load() != 0 {
		t.Error("paywalled paper triggered a network request")
	}
	if p.FullText != "" {
		t.Error("paywalled paper gained full text")
	}
}

func TestLoadRequiresPDFURL(t *testing.T) {
	l := NewLoader(nil, time.Second, "test-agent")
	err := l.Load(context.Background(), &types.Paper{ID: "p", Title: "x"})
	if !errors.Is(err, ErrNoPDFURL) {
		t.Errorf("got %v, want ErrNoPDFURL", err)
	}
}

func TestLoadRejectsNonPDFPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a pdf</html>"))
	}))
	defer srv.Close()

	l := NewLoader(nil, time.Second, "test-agent")
	p := &types.Paper{ID: "p", Title: "x", PDFURL: srv.URL + "/fake.pdf"}
	if err := l.Load(context.Background(), p); err == nil {
		t.Error("html payload accepted as pdf")
	}
}

func TestLoadServesFromCache(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	kv := store.NewMemoryKV()
	ctx := context.Background()
	pdfURL := srv.URL + "/paper.pdf"

	kv.SetEx(ctx, store.KeyPDFCache(pdfURL), "cached full text of the paper", 0)
	payload, _ := json.Marshal(struct {
		Hash  string           `json:"hash"`
		Pages []types.PageInfo `json:"pages"`
	}{Hash: "deadbeef", Pages: []types.PageInfo{{Page: 1, CharStart: 0, CharEnd: 29}}})
	kv.SetEx(ctx, store.KeyPDFPagesCache(pdfURL), string(payload), 0)

	l := NewLoader(kv, time.Second, "test-agent")
	p := &types.Paper{ID: "p", Title: "x", PDFURL: pdfURL, Status: types.StatusScreened}

	if err := l.Load(ctx, p); err != nil {
		t.Fatal(err)
	}
	if requests.Load() != 0 {
		t.Error("cache hit still fetched the pdf")
	}
	if p.FullText != "cached full text of the paper" {
		t.Errorf("full text = %q", p.FullText)
	}
	if p.PDFHash != "deadbeef" {
		t.Errorf("hash = %q", p.PDFHash)
	}
	if len(p.PageMap) != 1 {
		t.Errorf("page map = %v", p.PageMap)
	}
	if p.Status != types.StatusFulltext {
		t.Errorf("status = %s, want fulltext", p.Status)
	}
}

func TestLoadAllCountsOnlySuccesses(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	kv.SetEx(ctx, store.KeyPDFCache("https://arxiv.org/pdf/1"), "text one", 0)

	l := NewLoader(kv, time.Second, "test-agent")
	papers := []*types.Paper{
		{ID: "a", Title: "a", PDFURL: "https://arxiv.org/pdf/1"},
		{ID: "b", Title: "b"}, // no pdf url
		{ID: "c", Title: "c", PDFURL: "https://dl.acm.org/doi/pdf/2"}, // paywalled
	}

	if loaded := l.LoadAll(ctx, papers, 2); loaded != 1 {
		t.Errorf("LoadAll = %d, want 1", loaded)
	}
}

func TestPageFor(t *testing.T) {
	pages := []types.PageInfo{
		{Page: 1, CharStart: 0, CharEnd: 100},
		{Page: 2, CharStart: 102, CharEnd: 250},
	}
	tests := []struct {
		offset int
		want   int
	}{
		{0, 1},
		{99, 1},
		{150, 2},
		{101, 0},
		{300, 0},
	}
	for _, tt := range tests {
		if got := PageFor(pages, tt.offset); got != tt.want {
			t.Errorf("PageFor(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestPromoteKeepsLaterStatus(t *testing.T) {
	l := NewLoader(nil, time.Second, "")
	p := &types.Paper{Status: types.StatusExtracted}
	l.promote(p)
	if p.Status != types.StatusExtracted {
		t.Errorf("status = %s", p.Status)
	}
}
