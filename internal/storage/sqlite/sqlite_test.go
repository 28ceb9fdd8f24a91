package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "research.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func intPtr(n int) *int { return &n }

func TestQueryLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	q, err := b.CreateQuery(ctx, "history of the transistor")
	if err != nil {
		t.Fatalf("CreateQuery failed: %v", err)
	}
	if q.ID == "" {
		t.Fatal("expected assigned query ID")
	}
	if q.Status != storage.StatusCreated {
		t.Fatalf("expected status created, got %s", q.Status)
	}

	if err := b.UpdateQueryStatus(ctx, q.ID, storage.StatusUpdate{Status: storage.StatusSearching}); err != nil {
		t.Fatalf("transition to searching failed: %v", err)
	}

	sources := []*storage.Source{
		{URL: "https://example.com/a", Title: "A", Snippet: "first"},
		{URL: "https://example.com/b", Title: "B", Snippet: "second"},
		{URL: "https://example.com/c", Title: "C", Snippet: "third"},
	}
	if err := b.AddSources(ctx, q.ID, sources); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	for _, s := range sources {
		if s.ID == "" {
			t.Fatal("expected assigned source ID")
		}
	}

	if err := b.UpdateQueryStatus(ctx, q.ID, storage.StatusUpdate{Status: storage.StatusExtracting}); err != nil {
		t.Fatalf("transition to extracting failed: %v", err)
	}

	if err := b.UpdateSourceExtraction(ctx, sources[0].ID, storage.ExtractionOutcome{
		Success: true, Text: "extracted body", WordCount: 2,
	}); err != nil {
		t.Fatalf("UpdateSourceExtraction (success) failed: %v", err)
	}
	if err := b.UpdateSourceExtraction(ctx, sources[1].ID, storage.ExtractionOutcome{
		Success: true, Text: "more text", WordCount: 2,
	}); err != nil {
		t.Fatalf("UpdateSourceExtraction (success) failed: %v", err)
	}
	if err := b.UpdateSourceExtraction(ctx, sources[2].ID, storage.ExtractionOutcome{
		Error: "UNREACHABLE",
	}); err != nil {
		t.Fatalf("UpdateSourceExtraction (failure) failed: %v", err)
	}

	if err := b.UpdateQueryStatus(ctx, q.ID, storage.StatusUpdate{
		Status:           storage.StatusSynthesizing,
		SourcesExtracted: intPtr(2),
	}); err != nil {
		t.Fatalf("transition to synthesizing failed: %v", err)
	}

	reportID, err := b.AddReport(ctx, &storage.Report{
		QueryID:         q.ID,
		Summary:         "summary text",
		KeyPoints:       []string{"point one", "point two"},
		Methodology:     "web research",
		Limitations:     "few sources",
		SourcesAnalyzed: 2,
	})
	if err != nil {
		t.Fatalf("AddReport failed: %v", err)
	}
	if reportID == "" {
		t.Fatal("expected assigned report ID")
	}

	got, err := b.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuery failed: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.SourcesFound != 3 {
		t.Errorf("expected sources_found 3, got %d", got.SourcesFound)
	}
	if got.SourcesExtracted != 2 {
		t.Errorf("expected sources_extracted 2, got %d", got.SourcesExtracted)
	}
	if !got.HasReport {
		t.Error("expected HasReport true")
	}

	gotSources, err := b.GetSources(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetSources failed: %v", err)
	}
	if len(gotSources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(gotSources))
	}
	if !gotSources[0].Extracted || gotSources[0].Text != "extracted body" {
		t.Errorf("unexpected first source: %+v", gotSources[0])
	}
	if gotSources[2].Extracted || gotSources[2].ExtractionError != "UNREACHABLE" {
		t.Errorf("unexpected third source: %+v", gotSources[2])
	}

	report, err := b.GetReport(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.Summary != "summary text" {
		t.Errorf("expected summary %q, got %q", "summary text", report.Summary)
	}
	if len(report.KeyPoints) != 2 || report.KeyPoints[0] != "point one" {
		t.Errorf("unexpected key points: %v", report.KeyPoints)
	}
	if report.SourcesAnalyzed != 2 {
		t.Errorf("expected 2 sources analyzed, got %d", report.SourcesAnalyzed)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("expected non-zero GeneratedAt")
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	q, err := b.CreateQuery(ctx, "q")
	if err != nil {
		t.Fatalf("CreateQuery failed: %v", err)
	}

	// Skipping a stage is rejected.
	err = b.UpdateQueryStatus(ctx, q.ID, storage.StatusUpdate{Status: storage.StatusSynthesizing})
	if !errors.Is(err, storage.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	// FAILED is terminal.
	if err := b.UpdateQueryStatus(ctx, q.ID, storage.StatusUpdate{
		Status:       storage.StatusFailed,
		ErrorMessage: string(storage.ReasonNoSourcesFound),
	}); err != nil {
		t.Fatalf("transition to failed: %v", err)
	}
	err = b.UpdateQueryStatus(ctx, q.ID, storage.StatusUpdate{Status: storage.StatusSearching})
	if !errors.Is(err, storage.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition from failed, got %v", err)
	}

	got, err := b.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuery failed: %v", err)
	}
	if got.ErrorMessage != string(storage.ReasonNoSourcesFound) {
		t.Errorf("expected error message %s, got %q", storage.ReasonNoSourcesFound, got.ErrorMessage)
	}
}

func TestOneReportPerQuery(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	q, err := b.CreateQuery(ctx, "q")
	if err != nil {
		t.Fatalf("CreateQuery failed: %v", err)
	}
	advanceToSynthesizing(t, b, q.ID)

	if _, err := b.AddReport(ctx, &storage.Report{QueryID: q.ID, Summary: "s", KeyPoints: []string{"k"}}); err != nil {
		t.Fatalf("first AddReport failed: %v", err)
	}
	_, err = b.AddReport(ctx, &storage.Report{QueryID: q.ID, Summary: "s2", KeyPoints: []string{"k2"}})
	if !errors.Is(err, storage.ErrReportExists) {
		t.Fatalf("expected ErrReportExists, got %v", err)
	}
}

// A report may only land on a synthesizing query; the insert and the
// COMPLETED transition are one unit, so a report beside an unfinished query
// is never observable.
func TestAddReportCompletesQueryAtomically(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	q, err := b.CreateQuery(ctx, "q")
	if err != nil {
		t.Fatalf("CreateQuery failed: %v", err)
	}

	_, err = b.AddReport(ctx, &storage.Report{QueryID: q.ID, Summary: "s", KeyPoints: []string{"k"}})
	if !errors.Is(err, storage.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if _, err := b.GetReport(ctx, q.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no report after rejected insert, got %v", err)
	}

	advanceToSynthesizing(t, b, q.ID)
	if _, err := b.AddReport(ctx, &storage.Report{QueryID: q.ID, Summary: "s", KeyPoints: []string{"k"}}); err != nil {
		t.Fatalf("AddReport failed: %v", err)
	}

	got, err := b.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuery failed: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Errorf("expected status completed after AddReport, got %s", got.Status)
	}
}

func advanceToSynthesizing(t *testing.T, b storage.Backend, queryID string) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []storage.Status{storage.StatusSearching, storage.StatusExtracting, storage.StatusSynthesizing} {
		if err := b.UpdateQueryStatus(ctx, queryID, storage.StatusUpdate{Status: s}); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func TestResubmissionCreatesIndependentQuery(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	first, err := b.CreateQuery(ctx, "same text")
	if err != nil {
		t.Fatalf("CreateQuery failed: %v", err)
	}
	second, err := b.CreateQuery(ctx, "same text")
	if err != nil {
		t.Fatalf("second CreateQuery failed: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct IDs for resubmitted query text")
	}

	if err := b.UpdateQueryStatus(ctx, second.ID, storage.StatusUpdate{Status: storage.StatusSearching}); err != nil {
		t.Fatalf("update second query: %v", err)
	}
	got, err := b.GetQuery(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetQuery first: %v", err)
	}
	if got.Status != storage.StatusCreated {
		t.Errorf("first query mutated by second submission: %s", got.Status)
	}
}

func TestListQueriesAndStats(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := b.CreateQuery(ctx, "q"); err != nil {
			t.Fatalf("CreateQuery failed: %v", err)
		}
	}

	page, err := b.ListQueries(ctx, storage.Page{Limit: 2})
	if err != nil {
		t.Fatalf("ListQueries failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(page))
	}

	rest, err := b.ListQueries(ctx, storage.Page{Limit: 10, Offset: 2})
	if err != nil {
		t.Fatalf("ListQueries offset failed: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 queries after offset, got %d", len(rest))
	}

	stats, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalQueries != 5 {
		t.Errorf("expected 5 total queries, got %d", stats.TotalQueries)
	}
	if stats.ByStatus[storage.StatusCreated] != 5 {
		t.Errorf("expected 5 created, got %d", stats.ByStatus[storage.StatusCreated])
	}
	if stats.TotalReports != 0 {
		t.Errorf("expected 0 reports, got %d", stats.TotalReports)
	}
}

func TestGetQueryNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetQuery(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
