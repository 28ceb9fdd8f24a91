// Package extract turns source URLs into clean text. It fetches each URL
// through the fingerprinted HTTP stack, detects bot protection challenges,
// and dispatches on content type to the HTML, PDF, or plain text extractors.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/bypass"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/fingerprint"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/pkg/proxy"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/pkg/ratelimit"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/pkg/useragent"
)

// Reason classifies why a source could not be extracted.
type Reason string

const (
	ReasonUnreachable       Reason = "UNREACHABLE"
	ReasonBlocked           Reason = "BLOCKED"
	ReasonUnsupportedFormat Reason = "UNSUPPORTED_FORMAT"
	ReasonEmptyContent      Reason = "EMPTY_CONTENT"
)

// Result is the outcome of extracting a single URL. Reason is empty on
// success; Detail carries a human-readable explanation on failure.
type Result struct {
	URL       string
	Title     string
	Text      string
	WordCount int
	Reason    Reason
	Detail    string
}

// OK reports whether extraction succeeded.
func (r *Result) OK() bool { return r.Reason == "" }

// Config configures an Extractor.
type Config struct {
	Timeout           time.Duration
	MaxRedirects      int
	Fingerprint       fingerprint.Profile
	UAPool            *useragent.Pool
	ProxyPool         *proxy.Pool
	RequestsPerSecond float64
	Jitter            float64
	RespectRobots     bool
	MaxBodyBytes      int64
	Logger            *slog.Logger
}

// Extractor fetches URLs and extracts their textual content.
type Extractor struct {
	fetcher       *Fetcher
	robots        *robotsGate
	detectors     []bypass.Detector
	respectRobots bool
	logger        *slog.Logger
}

// New creates an Extractor from the given configuration.
func New(cfg Config) (*Extractor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fetcher, err := NewFetcher(FetchConfig{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		Fingerprint:  cfg.Fingerprint,
		UAPool:       cfg.UAPool,
		ProxyPool:    cfg.ProxyPool,
		Limiter:      ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}

	return &Extractor{
		fetcher:       fetcher,
		robots:        newRobotsGate(fetcher, cfg.Logger),
		detectors:     bypass.DefaultDetectors(),
		respectRobots: cfg.RespectRobots,
		logger:        cfg.Logger,
	}, nil
}

// Extract fetches rawURL and extracts its text. It never returns an error;
// failures are reported through the Result's Reason field so each source's
// outcome can be recorded individually.
func (e *Extractor) Extract(ctx context.Context, rawURL string) *Result {
	res := &Result{URL: rawURL}

	if ok, why := extractableURL(rawURL); !ok {
		res.Reason = ReasonUnsupportedFormat
		res.Detail = why
		return res
	}

	if e.respectRobots && !e.robots.allowed(ctx, rawURL, e.fetcher.UserAgent()) {
		res.Reason = ReasonBlocked
		res.Detail = "disallowed by robots.txt"
		return res
	}

	fetched, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		res.Reason = ReasonUnreachable
		res.Detail = err.Error()
		return res
	}

	if detected, vendor := bypass.Analyze(&bypass.Response{
		StatusCode: fetched.StatusCode,
		Headers:    fetched.Headers,
		Body:       fetched.Body,
	}, e.detectors); detected {
		e.logger.Debug("bot protection challenge", "url", rawURL, "vendor", vendor)
		res.Reason = ReasonBlocked
		res.Detail = fmt.Sprintf("challenged by %s", vendor)
		return res
	}

	switch {
	case fetched.StatusCode == http.StatusUnauthorized || fetched.StatusCode == http.StatusForbidden:
		res.Reason = ReasonBlocked
		res.Detail = fmt.Sprintf("http %d", fetched.StatusCode)
		return res
	case fetched.StatusCode >= 400:
		res.Reason = ReasonUnreachable
		res.Detail = fmt.Sprintf("http %d", fetched.StatusCode)
		return res
	}

	contentType := strings.ToLower(fetched.ContentType)
	var title, text string

	switch {
	case strings.Contains(contentType, "pdf") || strings.HasSuffix(strings.ToLower(rawURL), ".pdf"):
		title, text, err = extractPDF(fetched.Body)
	case contentType == "" || strings.Contains(contentType, "html") || strings.Contains(contentType, "xhtml"):
		title, text, err = extractHTML(fetched.Body)
	case strings.Contains(contentType, "text/plain"):
		text = collapseWhitespace(string(fetched.Body))
	default:
		res.Reason = ReasonUnsupportedFormat
		res.Detail = fmt.Sprintf("content type %q", fetched.ContentType)
		return res
	}

	if err != nil {
		e.logger.Debug("extraction failed", "url", rawURL, "err", err)
		res.Reason = ReasonEmptyContent
		res.Detail = err.Error()
		return res
	}

	text = strings.TrimSpace(text)
	if text == "" {
		res.Reason = ReasonEmptyContent
		res.Detail = "no text content found"
		return res
	}

	res.Title = title
	res.Text = text
	res.WordCount = len(strings.Fields(text))
	return res
}

// skipDomains lists hosts whose pages are media feeds or login walls rather
// than extractable articles.
var skipDomains = []string{
	"facebook.com", "twitter.com", "instagram.com", "linkedin.com",
	"youtube.com", "tiktok.com", "pinterest.com",
}

// skipExtensions lists obvious non-text file types.
var skipExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".mp4", ".mp3", ".zip", ".exe",
}

// extractableURL reports whether the URL is worth fetching at all.
func extractableURL(rawURL string) (bool, string) {
	if strings.TrimSpace(rawURL) == "" {
		return false, "empty url"
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, "unparseable url"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, fmt.Sprintf("scheme %q", u.Scheme)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range skipDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false, fmt.Sprintf("skipped domain %s", d)
		}
	}

	lower := strings.ToLower(u.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return false, fmt.Sprintf("binary extension %s", ext)
		}
	}

	return true, ""
}

// collapseWhitespace squeezes runs of whitespace into single spaces while
// preserving paragraph breaks.
func collapseWhitespace(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
