package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS research_queries (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	sources_found INTEGER NOT NULL DEFAULT 0,
	sources_extracted INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL REFERENCES research_queries(id),
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	extraction_success BOOLEAN NOT NULL DEFAULT FALSE,
	extraction_error TEXT NOT NULL DEFAULT '',
	word_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL UNIQUE REFERENCES research_queries(id),
	summary TEXT NOT NULL,
	key_points JSONB NOT NULL,
	methodology TEXT NOT NULL DEFAULT '',
	limitations TEXT NOT NULL DEFAULT '',
	sources_analyzed INTEGER NOT NULL DEFAULT 0,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queries_created_at ON research_queries(created_at);
CREATE INDEX IF NOT EXISTS idx_sources_query_id ON sources(query_id);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) CreateQuery(ctx context.Context, text string) (*storage.Query, error) {
	q := &storage.Query{
		ID:        uuid.New().String(),
		Text:      text,
		Status:    storage.StatusCreated,
		CreatedAt: time.Now().UTC(),
	}

	_, err := b.pool.Exec(ctx,
		`INSERT INTO research_queries (id, query, status, created_at) VALUES ($1, $2, $3, $4)`,
		q.ID, q.Text, string(q.Status), q.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert query: %w", err)
	}
	return q, nil
}

func (b *postgresBackend) UpdateQueryStatus(ctx context.Context, queryID string, upd storage.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("unknown status %q", upd.Status)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM research_queries WHERE id = $1 FOR UPDATE`, queryID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	if !storage.Status(current).CanTransition(upd.Status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, current, upd.Status)
	}

	if upd.SourcesExtracted != nil {
		_, err = tx.Exec(ctx,
			`UPDATE research_queries SET status = $1, error_message = $2, sources_extracted = $3 WHERE id = $4`,
			string(upd.Status), upd.ErrorMessage, *upd.SourcesExtracted, queryID,
		)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE research_queries SET status = $1, error_message = $2 WHERE id = $3`,
			string(upd.Status), upd.ErrorMessage, queryID,
		)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return tx.Commit(ctx)
}

func (b *postgresBackend) AddSources(ctx context.Context, queryID string, sources []*storage.Source) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, s := range sources {
		s.ID = uuid.New().String()
		s.QueryID = queryID
		s.CreatedAt = now

		_, err := tx.Exec(ctx,
			`INSERT INTO sources (id, query_id, url, title, snippet, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.QueryID, s.URL, s.Title, s.Snippet, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE research_queries SET sources_found = $1 WHERE id = $2`,
		len(sources), queryID,
	)
	if err != nil {
		return fmt.Errorf("update sources_found: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (b *postgresBackend) UpdateSourceExtraction(ctx context.Context, sourceID string, outcome storage.ExtractionOutcome) error {
	tag, err := b.pool.Exec(ctx,
		`UPDATE sources SET content = $1, extraction_success = $2, extraction_error = $3, word_count = $4 WHERE id = $5`,
		outcome.Text, outcome.Success, outcome.Error, outcome.WordCount, sourceID,
	)
	if err != nil {
		return fmt.Errorf("update source extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *postgresBackend) AddReport(ctx context.Context, report *storage.Report) (string, error) {
	keyPoints, err := json.Marshal(report.KeyPoints)
	if err != nil {
		return "", fmt.Errorf("marshal key points: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE query_id = $1`, report.QueryID).Scan(&exists); err != nil {
		return "", fmt.Errorf("check existing report: %w", err)
	}
	if exists > 0 {
		return "", storage.ErrReportExists
	}

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM research_queries WHERE id = $1 FOR UPDATE`, report.QueryID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	if !storage.Status(current).CanTransition(storage.StatusCompleted) {
		return "", fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, current, storage.StatusCompleted)
	}

	report.ID = uuid.New().String()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reports (id, query_id, summary, key_points, methodology, limitations, sources_analyzed, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.QueryID, report.Summary, keyPoints,
		report.Methodology, report.Limitations, report.SourcesAnalyzed, report.GeneratedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}

	// Report and terminal status land in one transaction.
	_, err = tx.Exec(ctx,
		`UPDATE research_queries SET status = $1 WHERE id = $2`,
		string(storage.StatusCompleted), report.QueryID,
	)
	if err != nil {
		return "", fmt.Errorf("complete query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit report: %w", err)
	}
	return report.ID, nil
}

const queryColumns = `q.id, q.query, q.status, q.sources_found, q.sources_extracted, q.error_message, q.created_at, r.id IS NOT NULL`

func (b *postgresBackend) GetQuery(ctx context.Context, queryID string) (*storage.Query, error) {
	var q storage.Query
	var status string
	err := b.pool.QueryRow(ctx,
		`SELECT `+queryColumns+` FROM research_queries q LEFT JOIN reports r ON q.id = r.query_id WHERE q.id = $1`,
		queryID,
	).Scan(&q.ID, &q.Text, &status, &q.SourcesFound, &q.SourcesExtracted, &q.ErrorMessage, &q.CreatedAt, &q.HasReport)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	q.Status = storage.Status(status)
	return &q, nil
}

func (b *postgresBackend) GetSources(ctx context.Context, queryID string) ([]*storage.Source, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT id, query_id, url, title, snippet, content, extraction_success, extraction_error, word_count, created_at
		 FROM sources WHERE query_id = $1 ORDER BY created_at, id`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}
	defer rows.Close()

	var sources []*storage.Source
	for rows.Next() {
		var s storage.Source
		if err := rows.Scan(&s.ID, &s.QueryID, &s.URL, &s.Title, &s.Snippet, &s.Text,
			&s.Extracted, &s.ExtractionError, &s.WordCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}

func (b *postgresBackend) GetReport(ctx context.Context, queryID string) (*storage.Report, error) {
	var r storage.Report
	var keyPoints []byte
	err := b.pool.QueryRow(ctx,
		`SELECT id, query_id, summary, key_points, methodology, limitations, sources_analyzed, generated_at
		 FROM reports WHERE query_id = $1`,
		queryID,
	).Scan(&r.ID, &r.QueryID, &r.Summary, &keyPoints, &r.Methodology, &r.Limitations, &r.SourcesAnalyzed, &r.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal(keyPoints, &r.KeyPoints); err != nil {
		return nil, fmt.Errorf("unmarshal key points: %w", err)
	}
	return &r, nil
}

func (b *postgresBackend) ListQueries(ctx context.Context, page storage.Page) ([]*storage.Query, error) {
	query := `SELECT ` + queryColumns + ` FROM research_queries q LEFT JOIN reports r ON q.id = r.query_id ORDER BY q.created_at DESC, q.id`
	args := []any{}
	param := 1

	if page.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, param)
		args = append(args, page.Limit)
		param++
	}
	if page.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, param)
		args = append(args, page.Offset)
		param++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var queries []*storage.Query
	for rows.Next() {
		var q storage.Query
		var status string
		if err := rows.Scan(&q.ID, &q.Text, &status, &q.SourcesFound, &q.SourcesExtracted,
			&q.ErrorMessage, &q.CreatedAt, &q.HasReport); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		q.Status = storage.Status(status)
		queries = append(queries, &q)
	}
	return queries, rows.Err()
}

func (b *postgresBackend) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{ByStatus: make(map[storage.Status]int)}

	rows, err := b.pool.Query(ctx, `SELECT status, COUNT(*) FROM research_queries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[storage.Status(status)] = count
		stats.TotalQueries += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := b.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sources`).Scan(&stats.TotalSources); err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	if err := b.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&stats.TotalReports); err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	return stats, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
