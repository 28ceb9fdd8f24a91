// Package pipeline orchestrates a research query through its stages:
// searching for sources, extracting their content, synthesizing a report,
// and persisting every step. A query that fails keeps its failure reason in
// the store; Run only returns an error when the infrastructure itself breaks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/analyzer"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/extract"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/metrics"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/search"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/synth"
)

// Extractor extracts one URL's content. Failures are reported inside the
// Result rather than as errors so each source is recorded individually.
type Extractor interface {
	Extract(ctx context.Context, url string) *extract.Result
}

// Synthesizer produces a report from extracted sources.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, sources []synth.SourceText) (*storage.Report, error)
}

// Config tunes the pipeline.
type Config struct {
	// MaxSources caps how many search results are pursued.
	MaxSources int
	// ExtractWorkers bounds concurrent extractions.
	ExtractWorkers int
	Logger         *slog.Logger
}

// Pipeline runs research queries end to end.
type Pipeline struct {
	searcher  search.Provider
	extractor Extractor
	synth     Synthesizer
	store     storage.Backend
	cfg       Config
	logger    *slog.Logger
}

// New assembles a Pipeline from its stage implementations.
func New(searcher search.Provider, extractor Extractor, synthesizer Synthesizer, store storage.Backend, cfg Config) *Pipeline {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 3
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		searcher:  searcher,
		extractor: extractor,
		synth:     synthesizer,
		store:     store,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Run executes the full pipeline for the query text. The returned Query
// reflects the final stored state, COMPLETED or FAILED. An error is returned
// only for storage-level failures; research failures are recorded on the
// query itself.
func (p *Pipeline) Run(ctx context.Context, text string) (*storage.Query, error) {
	query, err := p.store.CreateQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}
	log := p.logger.With("query_id", query.ID)
	log.Info("research started", "query", text)

	// Searching.
	if err := p.transition(ctx, query.ID, storage.StatusSearching); err != nil {
		return nil, err
	}

	start := time.Now()
	results, searchErr := p.searcher.Search(ctx, text, p.cfg.MaxSources)
	metrics.RecordStage("searching", time.Since(start))

	if searchErr != nil || len(results) == 0 {
		if searchErr != nil {
			log.Warn("search failed", "err", searchErr)
		} else {
			log.Info("search returned no results")
		}
		return p.fail(ctx, query.ID, storage.ReasonNoSourcesFound, "")
	}
	log.Info("search complete", "results", len(results))

	sources := make([]*storage.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, &storage.Source{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Snippet,
		})
	}
	if err := p.store.AddSources(ctx, query.ID, sources); err != nil {
		return nil, fmt.Errorf("add sources: %w", err)
	}

	// Extracting.
	if err := p.transition(ctx, query.ID, storage.StatusExtracting); err != nil {
		return nil, err
	}

	start = time.Now()
	extracted := p.extractAll(ctx, sources)
	metrics.RecordStage("extracting", time.Since(start))
	log.Info("extraction complete", "extracted", len(extracted), "total", len(sources))

	if len(extracted) == 0 {
		return p.fail(ctx, query.ID, storage.ReasonAllExtractionsFailed, "")
	}

	// Synthesizing.
	count := len(extracted)
	if err := p.store.UpdateQueryStatus(ctx, query.ID, storage.StatusUpdate{
		Status:           storage.StatusSynthesizing,
		SourcesExtracted: &count,
	}); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	start = time.Now()
	report, synthErr := p.synth.Synthesize(ctx, text, orderByRelevance(text, extracted))
	metrics.RecordStage("synthesizing", time.Since(start))

	if synthErr != nil {
		log.Warn("synthesis failed", "err", synthErr)
		return p.fail(ctx, query.ID, storage.ReasonSynthesisFailed, synthErr.Error())
	}

	// The terminal write survives caller cancellation so a finished query is
	// never left mid-state. AddReport stores the report and marks the query
	// COMPLETED as one unit.
	final := context.WithoutCancel(ctx)
	report.QueryID = query.ID
	if _, err := p.store.AddReport(final, report); err != nil {
		return nil, fmt.Errorf("add report: %w", err)
	}
	metrics.RecordQuery(string(storage.StatusCompleted))
	log.Info("research completed", "sources_analyzed", report.SourcesAnalyzed)

	return p.store.GetQuery(final, query.ID)
}

// extractAll runs extraction across sources with bounded concurrency and
// records each outcome. It returns the successfully extracted sources with
// their text filled in.
func (p *Pipeline) extractAll(ctx context.Context, sources []*storage.Source) []*storage.Source {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ExtractWorkers)

	succeeded := make([]*storage.Source, len(sources))

	for i, src := range sources {
		g.Go(func() error {
			res := p.extractor.Extract(gctx, src.URL)

			outcome := storage.ExtractionOutcome{}
			if res.OK() {
				outcome.Success = true
				outcome.Text = res.Text
				outcome.WordCount = res.WordCount
				metrics.RecordExtraction("success")
			} else {
				outcome.Error = extractionError(res)
				metrics.RecordExtraction(string(res.Reason))
			}

			if err := p.store.UpdateSourceExtraction(gctx, src.ID, outcome); err != nil {
				p.logger.Warn("failed to record extraction", "source_id", src.ID, "err", err)
				return nil
			}

			if outcome.Success {
				copied := *src
				copied.Text = res.Text
				copied.WordCount = res.WordCount
				copied.Extracted = true
				if res.Title != "" {
					copied.Title = res.Title
				}
				succeeded[i] = &copied
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []*storage.Source
	for _, src := range succeeded {
		if src != nil {
			out = append(out, src)
		}
	}
	return out
}

// orderByRelevance sorts extracted sources so the ones most on-topic for the
// query lead the synthesis prompt.
func orderByRelevance(query string, sources []*storage.Source) []synth.SourceText {
	contents := make([]string, len(sources))
	for i, s := range sources {
		contents[i] = s.Text
	}

	ordered := make([]synth.SourceText, 0, len(sources))
	for _, r := range analyzer.Rank(query, contents) {
		s := sources[r.Index]
		ordered = append(ordered, synth.SourceText{Title: s.Title, URL: s.URL, Text: s.Text})
	}
	return ordered
}

func (p *Pipeline) transition(ctx context.Context, queryID string, next storage.Status) error {
	if err := p.store.UpdateQueryStatus(ctx, queryID, storage.StatusUpdate{Status: next}); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// fail marks the query FAILED with the given reason and returns its final
// state. The write uses a cancellation-proof context.
func (p *Pipeline) fail(ctx context.Context, queryID string, reason storage.FailureReason, detail string) (*storage.Query, error) {
	msg := string(reason)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", reason, detail)
	}

	final := context.WithoutCancel(ctx)
	if err := p.store.UpdateQueryStatus(final, queryID, storage.StatusUpdate{
		Status:       storage.StatusFailed,
		ErrorMessage: msg,
	}); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	metrics.RecordQuery(string(storage.StatusFailed))
	p.logger.Warn("research failed", "query_id", queryID, "reason", reason)

	return p.store.GetQuery(final, queryID)
}

func extractionError(res *extract.Result) string {
	if res.Detail == "" {
		return string(res.Reason)
	}
	return fmt.Sprintf("%s: %s", res.Reason, strings.TrimSpace(res.Detail))
}
