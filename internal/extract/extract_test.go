package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/fingerprint"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Understanding Goroutines</title></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article>
<h1>Understanding Goroutines</h1>
<p>A goroutine is a lightweight thread of execution managed by the Go runtime.
Goroutines run in the same address space, so access to shared memory must be
synchronized. The sync package provides useful primitives, although you will
not need them much in Go as there are other primitives.</p>
<p>Channels are a typed conduit through which you can send and receive values
with the channel operator. By default, sends and receives block until the
other side is ready. This allows goroutines to synchronize without explicit
locks or condition variables.</p>
</article>
<footer>Copyright 2024</footer>
<script>analytics.track("pageview")</script>
</body></html>`

func newTestExtractor(t *testing.T, cfg Config) *Extractor {
	t.Helper()
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestExtractHTMLArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL+"/post")

	if !res.OK() {
		t.Fatalf("Extract failed: %s %s", res.Reason, res.Detail)
	}
	if res.Title != "Understanding Goroutines" {
		t.Errorf("Title = %q", res.Title)
	}
	if !strings.Contains(res.Text, "lightweight thread") {
		t.Errorf("article text missing from %q", res.Text)
	}
	if strings.Contains(res.Text, "analytics.track") {
		t.Error("script content leaked into text")
	}
	if strings.Contains(res.Text, "Copyright 2024") {
		t.Error("footer content leaked into text")
	}
	if res.WordCount == 0 {
		t.Error("WordCount = 0")
	}
}

func TestExtractPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("First line of notes.\n\nSecond   paragraph with  extra spaces.\n"))
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL+"/notes.txt")

	if !res.OK() {
		t.Fatalf("Extract failed: %s %s", res.Reason, res.Detail)
	}
	if res.Text != "First line of notes.\nSecond paragraph with extra spaces." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.WordCount != 9 {
		t.Errorf("WordCount = %d, want 9", res.WordCount)
	}
}

func TestExtractUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL)

	if res.Reason != ReasonUnreachable {
		t.Fatalf("Reason = %s, want UNREACHABLE", res.Reason)
	}
}

func TestExtractConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), url)

	if res.Reason != ReasonUnreachable {
		t.Fatalf("Reason = %s, want UNREACHABLE", res.Reason)
	}
}

func TestExtractBlockedByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL)

	if res.Reason != ReasonBlocked {
		t.Fatalf("Reason = %s, want BLOCKED", res.Reason)
	}
}

func TestExtractBlockedByChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("cf-browser-verification"))
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL)

	if res.Reason != ReasonBlocked {
		t.Fatalf("Reason = %s, want BLOCKED", res.Reason)
	}
	if !strings.Contains(res.Detail, "Cloudflare") {
		t.Errorf("Detail = %q, want Cloudflare challenge", res.Detail)
	}
}

func TestExtractUnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL)

	if res.Reason != ReasonUnsupportedFormat {
		t.Fatalf("Reason = %s, want UNSUPPORTED_FORMAT", res.Reason)
	}
}

func TestExtractEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Empty</title></head><body></body></html>"))
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	res := e.Extract(context.Background(), srv.URL)

	if res.Reason != ReasonEmptyContent {
		t.Fatalf("Reason = %s, want EMPTY_CONTENT", res.Reason)
	}
}

func TestExtractRespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articlePage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestExtractor(t, Config{RespectRobots: true})

	res := e.Extract(context.Background(), srv.URL+"/private/page")
	if res.Reason != ReasonBlocked {
		t.Fatalf("Reason = %s, want BLOCKED for disallowed path", res.Reason)
	}

	res = e.Extract(context.Background(), srv.URL+"/public/page")
	if !res.OK() {
		t.Fatalf("allowed path failed: %s %s", res.Reason, res.Detail)
	}
}

func TestExtractableURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://example.com/article", true},
		{"http://blog.example.org/posts/1", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://twitter.com/someone/status/1", false},
		{"https://m.facebook.com/page", false},
		{"https://example.com/photo.jpg", false},
		{"https://example.com/release.zip", false},
		{"https://example.com/doc.pdf", true},
		{"ftp://example.com/file", false},
		{"", false},
	}
	for _, c := range cases {
		if got, _ := extractableURL(c.url); got != c.want {
			t.Errorf("extractableURL(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "  one   two\t three \n\n four \n"
	want := "one two three\nfour"
	if got := collapseWhitespace(in); got != want {
		t.Errorf("collapseWhitespace = %q, want %q", got, want)
	}
}
