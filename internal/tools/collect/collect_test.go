package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
  <title>ML Blog</title>
  <item>
    <title>Scaling Laws Revisited</title>
    <link>https://example.com/scaling</link>
    <description>&lt;p&gt;A look at &lt;b&gt;compute-optimal&lt;/b&gt; training.&lt;/p&gt;</description>
    <pubDate>Mon, 02 Jan 2023 15:04:05 +0000</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://example.com/empty</link>
  </item>
</channel>
</rss>`

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Mixture of Experts Explained  </title>
  <meta name="description" content="Routing tokens to sparse experts.">
</head>
<body><p>hello</p></body>
</html>`

func TestCollectRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewCollector(5*time.Second, "test-agent")
	papers, err := c.CollectURL(context.Background(), srv.URL+"/feed")
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers, want 1 (untitled item skipped)", len(papers))
	}

	p := papers[0]
	if p.Title != "Scaling Laws Revisited" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Abstract != "A look at compute-optimal training." {
		t.Errorf("description tags not stripped: %q", p.Abstract)
	}
	if p.Published.IsZero() {
		t.Error("pubDate not parsed")
	}
	if p.Source != "rss" {
		t.Errorf("source = %q", p.Source)
	}
}

func TestCollectWebPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewCollector(5*time.Second, "test-agent")
	papers, err := c.CollectURL(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers, want 1", len(papers))
	}
	if papers[0].Title != "Mixture of Experts Explained" {
		t.Errorf("title = %q", papers[0].Title)
	}
	if papers[0].Abstract != "Routing tokens to sparse experts." {
		t.Errorf("abstract = %q", papers[0].Abstract)
	}
}

func TestCollectURLsSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewCollector(5*time.Second, "test-agent")
	papers, err := c.CollectURLs(context.Background(), []string{srv.URL + "/bad", srv.URL + "/good"})
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Errorf("got %d papers, want 1 (bad url skipped)", len(papers))
	}
}

func TestCollectURLRejectsInvalid(t *testing.T) {
	c := NewCollector(time.Second, "test-agent")
	if _, err := c.CollectURL(context.Background(), "not a url"); err == nil {
		t.Error("expected error for invalid url")
	}
}

func TestParseArxivEntry(t *testing.T) {
	body := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Attention Is All You Need</title>
    <summary>Sequence transduction.</summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
  </entry>
</feed>`

	papers, err := parseArxivEntry([]byte(body), "1706.03762")
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers", len(papers))
	}
	p := papers[0]
	if p.ArxivID != "1706.03762" {
		t.Errorf("arxiv id = %q", p.ArxivID)
	}
	if p.PDFURL != "https://arxiv.org/pdf/1706.03762" {
		t.Errorf("pdf url = %q", p.PDFURL)
	}
}

func TestParseArxivEntryEmptyFeed(t *testing.T) {
	papers, err := parseArxivEntry([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`), "x")
	if err != nil {
		t.Fatal(err)
	}
	if papers != nil {
		t.Errorf("empty feed gave %v", papers)
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>plain</p>", "plain"},
		{"no tags at all", "no tags at all"},
		{"<a href='x'>link</a> text", "link text"},
		{"  <b>trimmed</b>  ", "trimmed"},
	}
	for _, tt := range tests {
		if got := stripTags(tt.in); got != tt.want {
			t.Errorf("stripTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
