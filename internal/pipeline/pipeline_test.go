package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/extract"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/search"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage/jsonbackend"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/synth"
)

type stubSearch struct {
	results []search.Result
	err     error
}

func (s *stubSearch) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return s.results, s.err
}

type stubExtractor struct {
	fn func(url string) *extract.Result
}

func (s *stubExtractor) Extract(ctx context.Context, url string) *extract.Result {
	return s.fn(url)
}

type stubSynth struct {
	report   *storage.Report
	err      error
	gotCount int
}

func (s *stubSynth) Synthesize(ctx context.Context, query string, sources []synth.SourceText) (*storage.Report, error) {
	s.gotCount = len(sources)
	if s.err != nil {
		return nil, s.err
	}
	r := *s.report
	r.SourcesAnalyzed = len(sources)
	r.GeneratedAt = time.Now().UTC()
	return &r, nil
}

func okExtract(url string) *extract.Result {
	return &extract.Result{
		URL:       url,
		Title:     "Extracted " + url,
		Text:      "Relevant words about the research topic from " + url,
		WordCount: 8,
	}
}

func failExtract(reason extract.Reason) func(string) *extract.Result {
	return func(url string) *extract.Result {
		return &extract.Result{URL: url, Reason: reason, Detail: "fetch failed"}
	}
}

func newStore(t *testing.T) storage.Backend {
	t.Helper()
	store, err := jsonbackend.New("")
	if err != nil {
		t.Fatalf("jsonbackend.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var twoResults = []search.Result{
	{URL: "https://example.com/a", Title: "A", Snippet: "about a"},
	{URL: "https://example.com/b", Title: "B", Snippet: "about b"},
}

var goodReport = &storage.Report{
	Summary:     "Findings summary.",
	KeyPoints:   []string{"first", "second"},
	Methodology: "Automated web research",
	Limitations: "Few sources",
}

func TestRunCompleted(t *testing.T) {
	store := newStore(t)
	p := New(
		&stubSearch{results: twoResults},
		&stubExtractor{fn: okExtract},
		&stubSynth{report: goodReport},
		store,
		Config{},
	)

	q, err := p.Run(context.Background(), "research topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if q.Status != storage.StatusCompleted {
		t.Fatalf("Status = %s, want completed", q.Status)
	}
	if q.SourcesFound != 2 || q.SourcesExtracted != 2 {
		t.Errorf("counts = %d found / %d extracted, want 2/2", q.SourcesFound, q.SourcesExtracted)
	}
	if !q.HasReport {
		t.Error("HasReport = false")
	}

	report, err := store.GetReport(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report.Summary != "Findings summary." {
		t.Errorf("Summary = %q", report.Summary)
	}
	if report.SourcesAnalyzed != 2 {
		t.Errorf("SourcesAnalyzed = %d, want 2", report.SourcesAnalyzed)
	}

	sources, err := store.GetSources(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("GetSources: %v", err)
	}
	for _, s := range sources {
		if !s.Extracted {
			t.Errorf("source %s not marked extracted", s.URL)
		}
		if s.WordCount == 0 {
			t.Errorf("source %s missing word count", s.URL)
		}
	}
}

func TestRunNoSourcesFound(t *testing.T) {
	store := newStore(t)
	p := New(&stubSearch{}, &stubExtractor{fn: okExtract}, &stubSynth{report: goodReport}, store, Config{})

	q, err := p.Run(context.Background(), "obscure topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.Status != storage.StatusFailed {
		t.Fatalf("Status = %s, want failed", q.Status)
	}
	if !strings.Contains(q.ErrorMessage, string(storage.ReasonNoSourcesFound)) {
		t.Errorf("ErrorMessage = %q", q.ErrorMessage)
	}
}

func TestRunSearchError(t *testing.T) {
	store := newStore(t)
	p := New(&stubSearch{err: errors.New("api down")}, &stubExtractor{fn: okExtract}, &stubSynth{report: goodReport}, store, Config{})

	q, err := p.Run(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.Status != storage.StatusFailed {
		t.Fatalf("Status = %s, want failed", q.Status)
	}
	if !strings.Contains(q.ErrorMessage, string(storage.ReasonNoSourcesFound)) {
		t.Errorf("ErrorMessage = %q", q.ErrorMessage)
	}
}

func TestRunAllExtractionsFailed(t *testing.T) {
	store := newStore(t)
	p := New(
		&stubSearch{results: twoResults},
		&stubExtractor{fn: failExtract(extract.ReasonUnreachable)},
		&stubSynth{report: goodReport},
		store,
		Config{},
	)

	q, err := p.Run(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.Status != storage.StatusFailed {
		t.Fatalf("Status = %s, want failed", q.Status)
	}
	if !strings.Contains(q.ErrorMessage, string(storage.ReasonAllExtractionsFailed)) {
		t.Errorf("ErrorMessage = %q", q.ErrorMessage)
	}

	sources, _ := store.GetSources(context.Background(), q.ID)
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	for _, s := range sources {
		if s.Extracted {
			t.Errorf("source %s marked extracted", s.URL)
		}
		if !strings.Contains(s.ExtractionError, "UNREACHABLE") {
			t.Errorf("ExtractionError = %q", s.ExtractionError)
		}
	}
}

func TestRunPartialExtraction(t *testing.T) {
	store := newStore(t)
	synthStub := &stubSynth{report: goodReport}
	p := New(
		&stubSearch{results: twoResults},
		&stubExtractor{fn: func(url string) *extract.Result {
			if strings.HasSuffix(url, "/a") {
				return okExtract(url)
			}
			return &extract.Result{URL: url, Reason: extract.ReasonBlocked, Detail: "challenged by Cloudflare"}
		}},
		synthStub,
		store,
		Config{},
	)

	q, err := p.Run(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.Status != storage.StatusCompleted {
		t.Fatalf("Status = %s, want completed despite one blocked source", q.Status)
	}
	if q.SourcesFound != 2 || q.SourcesExtracted != 1 {
		t.Errorf("counts = %d/%d, want 2 found, 1 extracted", q.SourcesFound, q.SourcesExtracted)
	}
	if synthStub.gotCount != 1 {
		t.Errorf("synthesis received %d sources, want 1", synthStub.gotCount)
	}

	report, err := store.GetReport(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report.SourcesAnalyzed != 1 {
		t.Errorf("SourcesAnalyzed = %d, want 1", report.SourcesAnalyzed)
	}
}

func TestRunSynthesisFailed(t *testing.T) {
	store := newStore(t)
	p := New(
		&stubSearch{results: twoResults},
		&stubExtractor{fn: okExtract},
		&stubSynth{err: errors.New("all providers failed")},
		store,
		Config{},
	)

	q, err := p.Run(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.Status != storage.StatusFailed {
		t.Fatalf("Status = %s, want failed", q.Status)
	}
	if !strings.Contains(q.ErrorMessage, string(storage.ReasonSynthesisFailed)) {
		t.Errorf("ErrorMessage = %q", q.ErrorMessage)
	}
	// Extraction progress survives the synthesis failure.
	if q.SourcesExtracted != 2 {
		t.Errorf("SourcesExtracted = %d, want 2", q.SourcesExtracted)
	}
	if _, err := store.GetReport(context.Background(), q.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetReport err = %v, want ErrNotFound", err)
	}
}

func TestRunResubmissionIsIndependent(t *testing.T) {
	store := newStore(t)

	failing := New(&stubSearch{}, &stubExtractor{fn: okExtract}, &stubSynth{report: goodReport}, store, Config{})
	q1, err := failing.Run(context.Background(), "same question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	working := New(&stubSearch{results: twoResults}, &stubExtractor{fn: okExtract}, &stubSynth{report: goodReport}, store, Config{})
	q2, err := working.Run(context.Background(), "same question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if q1.ID == q2.ID {
		t.Fatal("resubmission reused the same query row")
	}
	if q1.Status != storage.StatusFailed || q2.Status != storage.StatusCompleted {
		t.Errorf("statuses = %s/%s", q1.Status, q2.Status)
	}
}

func TestRunOrdersSourcesByRelevance(t *testing.T) {
	store := newStore(t)

	var captured []synth.SourceText
	capturing := &capturingSynth{report: goodReport, captured: &captured}

	p := New(
		&stubSearch{results: twoResults},
		&stubExtractor{fn: func(url string) *extract.Result {
			if strings.HasSuffix(url, "/a") {
				return &extract.Result{URL: url, Title: "Off topic", Text: "gardening soil compost", WordCount: 3}
			}
			return &extract.Result{URL: url, Title: "On topic", Text: "quantum computing qubits entanglement quantum", WordCount: 5}
		}},
		capturing,
		store,
		Config{},
	)

	if _, err := p.Run(context.Background(), "quantum computing"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("captured %d sources, want 2", len(captured))
	}
	if captured[0].Title != "On topic" {
		t.Errorf("first source = %q, want the on-topic one", captured[0].Title)
	}
}

type capturingSynth struct {
	report   *storage.Report
	captured *[]synth.SourceText
}

func (c *capturingSynth) Synthesize(ctx context.Context, query string, sources []synth.SourceText) (*storage.Report, error) {
	*c.captured = append([]synth.SourceText(nil), sources...)
	r := *c.report
	r.SourcesAnalyzed = len(sources)
	r.GeneratedAt = time.Now().UTC()
	return &r, nil
}
