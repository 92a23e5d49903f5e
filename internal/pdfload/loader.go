// Package pdfload downloads paper PDFs and extracts page-mapped plain text.
// Extracted text is cached in the KV layer keyed by URL so repeat sessions
// never refetch the same document.
package pdfload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"deepscholar/internal/logging"
	"deepscholar/internal/store"
	"deepscholar/internal/tools/search"
	"deepscholar/internal/types"
)

// ErrPaywalled is returned for PDFs hosted on known paywalled domains.
var ErrPaywalled = errors.New("pdf host is paywalled")

// ErrNoPDFURL is returned when a paper carries no PDF link.
var ErrNoPDFURL = errors.New("paper has no pdf url")

const maxPDFBytes = 50 << 20

// Loader fetches and extracts PDF text with a KV cache in front.
type Loader struct {
	httpClient *http.Client
	kv         store.KV
	userAgent  string
}

// NewLoader builds a loader. kv may be nil, which disables caching.
func NewLoader(kv store.KV, timeout time.Duration, userAgent string) *Loader {
	return &Loader{
		httpClient: &http.Client{Timeout: timeout},
		kv:         kv,
		userAgent:  userAgent,
	}
}

// Load populates p.FullText, p.PageMap, and p.PDFHash, promoting the paper
// to fulltext status. Cached text short-circuits the download.
func (l *Loader) Load(ctx context.Context, p *types.Paper) error {
	if p.PDFURL == "" {
		return ErrNoPDFURL
	}
	if search.IsPaywalled(p.PDFURL) {
		return fmt.Errorf("%w: %s", ErrPaywalled, hostOf(p.PDFURL))
	}

	if l.fromCache(ctx, p) {
		logging.CacheDebug("pdf cache hit for %s", p.PDFURL)
		l.promote(p)
		return nil
	}

	data, err := l.download(ctx, p.PDFURL)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	p.PDFHash = hex.EncodeToString(sum[:])

	text, pages, err := extractText(data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", p.PDFURL, err)
	}
	p.FullText = text
	p.PageMap = pages
	l.promote(p)

	l.toCache(ctx, p)
	return nil
}

// LoadAll loads PDFs concurrently. Individual failures are logged and the
// paper is left without full text; the abstract remains usable downstream.
func (l *Loader) LoadAll(ctx context.Context, papers []*types.Paper, concurrency int) int {
	if concurrency <= 0 {
		concurrency = 3
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([]bool, len(papers))
	for i, p := range papers {
		g.Go(func() error {
			if err := l.Load(gctx, p); err != nil {
				logging.PipelineError("pdf load failed for %s: %v", p.ID, err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	loaded := 0
	for _, ok := range results {
		if ok {
			loaded++
		}
	}
	return loaded
}

func (l *Loader) promote(p *types.Paper) {
	if p.Status == types.StatusRaw || p.Status == types.StatusScreened {
		p.Status = types.StatusFulltext
	}
}

func (l *Loader) fromCache(ctx context.Context, p *types.Paper) bool {
	if l.kv == nil {
		return false
	}
	text, err := l.kv.Get(ctx, store.KeyPDFCache(p.PDFURL))
	if err != nil || text == "" {
		return false
	}
	p.FullText = text

	if raw, err := l.kv.Get(ctx, store.KeyPDFPagesCache(p.PDFURL)); err == nil {
		var cached struct {
			Hash  string           `json:"hash"`
			Pages []types.PageInfo `json:"pages"`
		}
		if json.Unmarshal([]byte(raw), &cached) == nil {
			p.PageMap = cached.Pages
			p.PDFHash = cached.Hash
		}
	}
	return true
}

func (l *Loader) toCache(ctx context.Context, p *types.Paper) {
	if l.kv == nil {
		return
	}
	if err := l.kv.SetEx(ctx, store.KeyPDFCache(p.PDFURL), p.FullText, store.TTLPDFCache); err != nil {
		logging.CacheDebug("pdf cache write failed: %v", err)
		return
	}
	payload, err := json.Marshal(struct {
		Hash  string           `json:"hash"`
		Pages []types.PageInfo `json:"pages"`
	}{Hash: p.PDFHash, Pages: p.PageMap})
	if err == nil {
		_ = l.kv.SetEx(ctx, store.KeyPDFPagesCache(p.PDFURL), string(payload), store.TTLPDFCache)
	}
}

func (l *Loader) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", pdfURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", pdfURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", pdfURL, err)
	}
	if len(data) < 4 || !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("download %s: not a pdf", pdfURL)
	}
	return data, nil
}

// extractText pulls plain text per page and records character-offset ranges
// so evidence locators can name a page.
func extractText(data []byte) (string, []types.PageInfo, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, err
	}

	var full strings.Builder
	var pages []types.PageInfo
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logging.PipelineError("pdf page %d unreadable: %v", i, err)
			continue
		}
		text = normalizeText(text)
		if text == "" {
			continue
		}
		start := full.Len()
		full.WriteString(text)
		full.WriteString("\n\n")
		pages = append(pages, types.PageInfo{
			Page:      i,
			CharStart: start,
			CharEnd:   full.Len() - 2,
		})
	}

	if full.Len() == 0 {
		return "", nil, errors.New("no extractable text")
	}
	return full.String(), pages, nil
}

// PageFor maps a character offset back to its page number, or 0 when the
// offset falls outside the map.
func PageFor(pages []types.PageInfo, offset int) int {
	for _, info := range pages {
		if offset >= info.CharStart && offset < info.CharEnd {
			return info.Page
		}
	}
	return 0
}

func normalizeText(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
