package jsonbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/google/uuid"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// snapshot is the on-disk shape: the whole store, rewritten atomically on
// every mutation. Fine for the single-process workloads this backend targets;
// anything bigger should use the sqlite or postgres backend.
type snapshot struct {
	Queries []*storage.Query           `json:"queries"`
	Sources map[string][]*storage.Source `json:"sources"` // keyed by query ID
	Reports map[string]*storage.Report `json:"reports"` // keyed by query ID
}

type jsonBackend struct {
	mu   sync.Mutex
	path string // empty means in-memory only
	data snapshot
}

// New creates a JSON-snapshot storage.Backend. If path is empty the store
// lives purely in memory, which is what the tests use.
func New(path string) (storage.Backend, error) {
	b := &jsonBackend{
		path: path,
		data: snapshot{
			Sources: make(map[string][]*storage.Source),
			Reports: make(map[string]*storage.Report),
		},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(raw, &b.data); err != nil {
				return nil, fmt.Errorf("load snapshot %s: %w", path, err)
			}
			if b.data.Sources == nil {
				b.data.Sources = make(map[string][]*storage.Source)
			}
			if b.data.Reports == nil {
				b.data.Reports = make(map[string]*storage.Report)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read snapshot %s: %w", path, err)
		}
	}

	return b, nil
}

// persist writes the snapshot via a temp file and rename, so a crashed write
// never leaves a truncated store behind. Callers hold b.mu.
func (b *jsonBackend) persist() error {
	if b.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(&b.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(b.path), "."+filepath.Base(b.path)+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (b *jsonBackend) findQuery(queryID string) *storage.Query {
	for _, q := range b.data.Queries {
		if q.ID == queryID {
			return q
		}
	}
	return nil
}

func (b *jsonBackend) CreateQuery(ctx context.Context, text string) (*storage.Query, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := &storage.Query{
		ID:        uuid.New().String(),
		Text:      text,
		Status:    storage.StatusCreated,
		CreatedAt: time.Now().UTC(),
	}
	b.data.Queries = append(b.data.Queries, q)

	if err := b.persist(); err != nil {
		b.data.Queries = b.data.Queries[:len(b.data.Queries)-1]
		return nil, err
	}
	return copyQuery(q), nil
}

func (b *jsonBackend) UpdateQueryStatus(ctx context.Context, queryID string, upd storage.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("unknown status %q", upd.Status)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.findQuery(queryID)
	if q == nil {
		return storage.ErrNotFound
	}
	if !q.Status.CanTransition(upd.Status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, q.Status, upd.Status)
	}

	prev := *q
	q.Status = upd.Status
	q.ErrorMessage = upd.ErrorMessage
	if upd.SourcesExtracted != nil {
		q.SourcesExtracted = *upd.SourcesExtracted
	}

	if err := b.persist(); err != nil {
		*q = prev
		return err
	}
	return nil
}

func (b *jsonBackend) AddSources(ctx context.Context, queryID string, sources []*storage.Source) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.findQuery(queryID)
	if q == nil {
		return storage.ErrNotFound
	}

	now := time.Now().UTC()
	stored := make([]*storage.Source, 0, len(sources))
	for _, s := range sources {
		s.ID = uuid.New().String()
		s.QueryID = queryID
		s.CreatedAt = now
		stored = append(stored, copySource(s))
	}

	prevSources := b.data.Sources[queryID]
	prevFound := q.SourcesFound
	b.data.Sources[queryID] = append(b.data.Sources[queryID], stored...)
	q.SourcesFound = len(b.data.Sources[queryID])

	if err := b.persist(); err != nil {
		b.data.Sources[queryID] = prevSources
		q.SourcesFound = prevFound
		return err
	}
	return nil
}

func (b *jsonBackend) UpdateSourceExtraction(ctx context.Context, sourceID string, outcome storage.ExtractionOutcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, list := range b.data.Sources {
		for _, s := range list {
			if s.ID != sourceID {
				continue
			}
			prev := *s
			s.Text = outcome.Text
			s.Extracted = outcome.Success
			s.ExtractionError = outcome.Error
			s.WordCount = outcome.WordCount
			if err := b.persist(); err != nil {
				*s = prev
				return err
			}
			return nil
		}
	}
	return storage.ErrNotFound
}

func (b *jsonBackend) AddReport(ctx context.Context, report *storage.Report) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.findQuery(report.QueryID)
	if q == nil {
		return "", storage.ErrNotFound
	}
	if _, exists := b.data.Reports[report.QueryID]; exists {
		return "", storage.ErrReportExists
	}
	if !q.Status.CanTransition(storage.StatusCompleted) {
		return "", fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, q.Status, storage.StatusCompleted)
	}

	report.ID = uuid.New().String()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	// Report and terminal status land in one snapshot write.
	prev := q.Status
	q.Status = storage.StatusCompleted
	b.data.Reports[report.QueryID] = copyReport(report)

	if err := b.persist(); err != nil {
		q.Status = prev
		delete(b.data.Reports, report.QueryID)
		return "", err
	}
	return report.ID, nil
}

func (b *jsonBackend) GetQuery(ctx context.Context, queryID string) (*storage.Query, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.findQuery(queryID)
	if q == nil {
		return nil, storage.ErrNotFound
	}
	out := copyQuery(q)
	_, out.HasReport = b.data.Reports[queryID]
	return out, nil
}

func (b *jsonBackend) GetSources(ctx context.Context, queryID string) ([]*storage.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.data.Sources[queryID]
	out := make([]*storage.Source, 0, len(list))
	for _, s := range list {
		out = append(out, copySource(s))
	}
	return out, nil
}

func (b *jsonBackend) GetReport(ctx context.Context, queryID string) (*storage.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.data.Reports[queryID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyReport(r), nil
}

func (b *jsonBackend) ListQueries(ctx context.Context, page storage.Page) ([]*storage.Query, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sorted := make([]*storage.Query, len(b.data.Queries))
	copy(sorted, b.data.Queries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if page.Offset > 0 {
		if page.Offset >= len(sorted) {
			return []*storage.Query{}, nil
		}
		sorted = sorted[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(sorted) {
		sorted = sorted[:page.Limit]
	}

	out := make([]*storage.Query, 0, len(sorted))
	for _, q := range sorted {
		c := copyQuery(q)
		_, c.HasReport = b.data.Reports[q.ID]
		out = append(out, c)
	}
	return out, nil
}

func (b *jsonBackend) Stats(ctx context.Context) (*storage.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := &storage.Stats{ByStatus: make(map[storage.Status]int)}
	stats.TotalQueries = len(b.data.Queries)
	for _, q := range b.data.Queries {
		stats.ByStatus[q.Status]++
	}
	for _, list := range b.data.Sources {
		stats.TotalSources += len(list)
	}
	stats.TotalReports = len(b.data.Reports)
	return stats, nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.persist()
}

func copyQuery(q *storage.Query) *storage.Query {
	c := *q
	return &c
}

func copySource(s *storage.Source) *storage.Source {
	c := *s
	return &c
}

func copyReport(r *storage.Report) *storage.Report {
	c := *r
	c.KeyPoints = append([]string(nil), r.KeyPoints...)
	return &c
}
