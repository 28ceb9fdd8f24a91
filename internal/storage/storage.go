package storage

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle stage of a research query. A query only ever moves
// forward through the stage graph; Failed is reachable from any non-terminal
// stage and, like Completed, accepts no further transitions.
type Status string

const (
	StatusCreated      Status = "created"
	StatusSearching    Status = "searching"
	StatusExtracting   Status = "extracting"
	StatusSynthesizing Status = "synthesizing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// transitions is the closed set of legal status moves.
var transitions = map[Status][]Status{
	StatusCreated:      {StatusSearching, StatusFailed},
	StatusSearching:    {StatusExtracting, StatusFailed},
	StatusExtracting:   {StatusSynthesizing, StatusFailed},
	StatusSynthesizing: {StatusCompleted, StatusFailed},
	StatusCompleted:    {},
	StatusFailed:       {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next follows the stage graph.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FailureReason identifies which stage terminated a failed query.
type FailureReason string

const (
	ReasonNoSourcesFound       FailureReason = "NO_SOURCES_FOUND"
	ReasonAllExtractionsFailed FailureReason = "ALL_EXTRACTIONS_FAILED"
	ReasonSynthesisFailed      FailureReason = "SYNTHESIS_FAILED"
)

// Query is one research request and its lifecycle state.
type Query struct {
	ID               string
	Text             string
	Status           Status
	SourcesFound     int
	SourcesExtracted int
	ErrorMessage     string
	HasReport        bool
	CreatedAt        time.Time
}

// Source is one candidate document discovered for a query, together with its
// extraction outcome. Text stays empty until extraction succeeds.
type Source struct {
	ID              string
	QueryID         string
	URL             string
	Title           string
	Snippet         string
	Text            string
	Extracted       bool
	ExtractionError string
	WordCount       int
	CreatedAt       time.Time
}

// Report is the structured synthesis output for a completed query.
// Exactly one report exists per completed query; it is immutable once stored.
type Report struct {
	ID              string
	QueryID         string
	Summary         string
	KeyPoints       []string
	Methodology     string
	Limitations     string
	SourcesAnalyzed int
	GeneratedAt     time.Time
}

// StatusUpdate carries a status transition plus the optional count and error
// message written at the same stage boundary. A nil count pointer leaves the
// stored count untouched.
type StatusUpdate struct {
	Status           Status
	SourcesExtracted *int
	ErrorMessage     string
}

// ExtractionOutcome is the per-source result written back after extraction.
// Exactly one outcome is written per source; there are no retries.
type ExtractionOutcome struct {
	Success   bool
	Text      string
	WordCount int
	Error     string
}

// Page selects a window of the query listing.
type Page struct {
	Limit  int
	Offset int
}

// Stats summarizes the store contents.
type Stats struct {
	TotalQueries int
	TotalSources int
	TotalReports int
	ByStatus     map[Status]int
}

var (
	// ErrNotFound is returned when a query, source, or report does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrIllegalTransition is returned when a status update would regress,
	// skip a stage, or mutate a terminal query.
	ErrIllegalTransition = errors.New("storage: illegal status transition")
	// ErrReportExists is returned when a second report is added for a query.
	ErrReportExists = errors.New("storage: report already exists for query")
)

// Backend is the persistence contract consumed by the pipeline orchestrator
// and by the read-only presentation side. All writes belonging to a single
// stage transition are atomic: a partially written stage is never observable.
type Backend interface {
	// CreateQuery inserts a new query in StatusCreated and returns it with
	// its assigned ID. Resubmitting identical text creates an independent row.
	CreateQuery(ctx context.Context, text string) (*Query, error)

	// UpdateQueryStatus advances a query's status, optionally writing the
	// extracted count and an error message in the same unit. Illegal moves
	// return ErrIllegalTransition.
	UpdateQueryStatus(ctx context.Context, queryID string, upd StatusUpdate) error

	// AddSources inserts the full batch of discovered sources and sets the
	// query's sources_found count as one atomic unit. Source IDs are assigned
	// by the backend and written back into the slice elements.
	AddSources(ctx context.Context, queryID string, sources []*Source) error

	// UpdateSourceExtraction records one source's extraction outcome.
	UpdateSourceExtraction(ctx context.Context, sourceID string, outcome ExtractionOutcome) error

	// AddReport stores the report for a query and moves the query to
	// StatusCompleted in the same unit, so a report is never observable
	// beside an unfinished query. The query must be in StatusSynthesizing;
	// otherwise ErrIllegalTransition is returned. At most one report may
	// exist per query; a second insert returns ErrReportExists.
	AddReport(ctx context.Context, report *Report) (string, error)

	GetQuery(ctx context.Context, queryID string) (*Query, error)
	GetSources(ctx context.Context, queryID string) ([]*Source, error)
	GetReport(ctx context.Context, queryID string) (*Report, error)
	ListQueries(ctx context.Context, page Page) ([]*Query, error)
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
