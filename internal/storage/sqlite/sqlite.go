package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS research_queries (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	sources_found INTEGER NOT NULL DEFAULT 0,
	sources_extracted INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
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
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL UNIQUE REFERENCES research_queries(id),
	summary TEXT NOT NULL,
	key_points TEXT NOT NULL,
	methodology TEXT NOT NULL DEFAULT '',
	limitations TEXT NOT NULL DEFAULT '',
	sources_analyzed INTEGER NOT NULL DEFAULT 0,
	generated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queries_created_at ON research_queries(created_at);
CREATE INDEX IF NOT EXISTS idx_sources_query_id ON sources(query_id);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc sqlite serializes writes through a single connection anyway;
	// capping the pool avoids SQLITE_BUSY under concurrent queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) CreateQuery(ctx context.Context, text string) (*storage.Query, error) {
	q := &storage.Query{
		ID:        uuid.New().String(),
		Text:      text,
		Status:    storage.StatusCreated,
		CreatedAt: time.Now().UTC(),
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO research_queries (id, query, status, created_at) VALUES (?, ?, ?, ?)`,
		q.ID, q.Text, string(q.Status), q.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert query: %w", err)
	}
	return q, nil
}

func (b *sqliteBackend) UpdateQueryStatus(ctx context.Context, queryID string, upd storage.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("unknown status %q", upd.Status)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM research_queries WHERE id = ?`, queryID).Scan(&current)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	if !storage.Status(current).CanTransition(upd.Status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, current, upd.Status)
	}

	query := `UPDATE research_queries SET status = ?, error_message = ?`
	args := []any{string(upd.Status), upd.ErrorMessage}
	if upd.SourcesExtracted != nil {
		query += `, sources_extracted = ?`
		args = append(args, *upd.SourcesExtracted)
	}
	query += ` WHERE id = ?`
	args = append(args, queryID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return tx.Commit()
}

func (b *sqliteBackend) AddSources(ctx context.Context, queryID string, sources []*storage.Source) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, s := range sources {
		s.ID = uuid.New().String()
		s.QueryID = queryID
		s.CreatedAt = now

		_, err := tx.ExecContext(ctx,
			`INSERT INTO sources (id, query_id, url, title, snippet, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.QueryID, s.URL, s.Title, s.Snippet, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE research_queries SET sources_found = ? WHERE id = ?`,
		len(sources), queryID,
	)
	if err != nil {
		return fmt.Errorf("update sources_found: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}

	return tx.Commit()
}

func (b *sqliteBackend) UpdateSourceExtraction(ctx context.Context, sourceID string, outcome storage.ExtractionOutcome) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE sources SET content = ?, extraction_success = ?, extraction_error = ?, word_count = ? WHERE id = ?`,
		outcome.Text, outcome.Success, outcome.Error, outcome.WordCount, sourceID,
	)
	if err != nil {
		return fmt.Errorf("update source extraction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *sqliteBackend) AddReport(ctx context.Context, report *storage.Report) (string, error) {
	keyPoints, err := json.Marshal(report.KeyPoints)
	if err != nil {
		return "", fmt.Errorf("marshal key points: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE query_id = ?`, report.QueryID).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("check existing report: %w", err)
	}
	if exists > 0 {
		return "", storage.ErrReportExists
	}

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM research_queries WHERE id = ?`, report.QueryID).Scan(&current)
	if err == sql.ErrNoRows {
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

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, query_id, summary, key_points, methodology, limitations, sources_analyzed, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.QueryID, report.Summary, string(keyPoints),
		report.Methodology, report.Limitations, report.SourcesAnalyzed, report.GeneratedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}

	// Report and terminal status land in one transaction.
	_, err = tx.ExecContext(ctx,
		`UPDATE research_queries SET status = ? WHERE id = ?`,
		string(storage.StatusCompleted), report.QueryID,
	)
	if err != nil {
		return "", fmt.Errorf("complete query: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit report: %w", err)
	}
	return report.ID, nil
}

const queryColumns = `q.id, q.query, q.status, q.sources_found, q.sources_extracted, q.error_message, q.created_at, r.id IS NOT NULL`

func scanQuery(row interface{ Scan(...any) error }) (*storage.Query, error) {
	var q storage.Query
	var status string
	if err := row.Scan(&q.ID, &q.Text, &status, &q.SourcesFound, &q.SourcesExtracted, &q.ErrorMessage, &q.CreatedAt, &q.HasReport); err != nil {
		return nil, err
	}
	q.Status = storage.Status(status)
	return &q, nil
}

func (b *sqliteBackend) GetQuery(ctx context.Context, queryID string) (*storage.Query, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT `+queryColumns+` FROM research_queries q LEFT JOIN reports r ON q.id = r.query_id WHERE q.id = ?`,
		queryID,
	)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	return q, nil
}

func (b *sqliteBackend) GetSources(ctx context.Context, queryID string) ([]*storage.Source, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, query_id, url, title, snippet, content, extraction_success, extraction_error, word_count, created_at
		 FROM sources WHERE query_id = ? ORDER BY created_at, id`,
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

func (b *sqliteBackend) GetReport(ctx context.Context, queryID string) (*storage.Report, error) {
	var r storage.Report
	var keyPoints string
	err := b.db.QueryRowContext(ctx,
		`SELECT id, query_id, summary, key_points, methodology, limitations, sources_analyzed, generated_at
		 FROM reports WHERE query_id = ?`,
		queryID,
	).Scan(&r.ID, &r.QueryID, &r.Summary, &keyPoints, &r.Methodology, &r.Limitations, &r.SourcesAnalyzed, &r.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal([]byte(keyPoints), &r.KeyPoints); err != nil {
		return nil, fmt.Errorf("unmarshal key points: %w", err)
	}
	return &r, nil
}

func (b *sqliteBackend) ListQueries(ctx context.Context, page storage.Page) ([]*storage.Query, error) {
	query := `SELECT ` + queryColumns + ` FROM research_queries q LEFT JOIN reports r ON q.id = r.query_id ORDER BY q.created_at DESC, q.id`
	args := []any{}

	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
	}
	if page.Offset > 0 {
		if page.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, page.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var queries []*storage.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (b *sqliteBackend) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{ByStatus: make(map[storage.Status]int)}

	rows, err := b.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM research_queries GROUP BY status`)
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

	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&stats.TotalSources); err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&stats.TotalReports); err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	return stats, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
