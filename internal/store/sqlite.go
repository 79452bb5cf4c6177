// Package store implements the local reporting database: the document chunk
// index used for retrieval and the report run log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/recap/internal/types"
	"github.com/hyperengineering/recap/internal/vector"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed local reporting database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the local database at dbPath.
// It enables WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertChunks inserts or replaces document chunks, keyed on
// (file_id, page, filename). Chunks without an ID are assigned a ULID.
// Returns the number of chunks written.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []types.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, directory, filename, page, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, page, filename) DO UPDATE SET
			directory = excluded.directory,
			content = excluded.content,
			embedding = excluded.embedding
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = ulid.Make().String()
		}
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var embedding []byte
		if len(chunk.Embedding) > 0 {
			embedding = vector.Pack(chunk.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, id, chunk.FileID, chunk.Directory, chunk.Filename,
			chunk.Page, chunk.Content, embedding, createdAt.Format(timeFormat)); err != nil {
			return written, fmt.Errorf("upsert chunk %s: %w", id, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// AllChunks returns every chunk that has an embedding, ready for scoring.
func (s *SQLiteStore) AllChunks(ctx context.Context) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, directory, filename, page, content, embedding, created_at
		FROM chunks
		WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// PendingEmbeddings returns up to limit chunks that have no embedding yet.
func (s *SQLiteStore) PendingEmbeddings(ctx context.Context, limit int) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, directory, filename, page, content, embedding, created_at
		FROM chunks
		WHERE embedding IS NULL
		ORDER BY created_at
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending embeddings: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// UpdateEmbedding stores the embedding for a chunk.
func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET embedding = ? WHERE id = ?`, vector.Pack(embedding), id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ChunkCount returns the number of indexed chunks.
func (s *SQLiteStore) ChunkCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

func scanChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for rows.Next() {
		var (
			chunk     types.Chunk
			embedding []byte
			createdAt string
		)
		if err := rows.Scan(&chunk.ID, &chunk.FileID, &chunk.Directory, &chunk.Filename,
			&chunk.Page, &chunk.Content, &embedding, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(embedding) > 0 {
			chunk.Embedding = vector.Unpack(embedding)
		}
		if parsed, err := time.Parse(timeFormat, createdAt); err == nil {
			chunk.CreatedAt = parsed
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// RecordRun persists one job run. Runs without an ID are assigned a ULID.
func (s *SQLiteStore) RecordRun(ctx context.Context, run types.ReportRun) error {
	id := run.ID
	if id == "" {
		id = ulid.Make().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_runs (id, job, window_start, window_end, rows_exported, questions, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, run.Job, nullTime(run.WindowStart), nullTime(run.WindowEnd),
		run.Rows, run.Questions, string(run.Status), run.Error,
		run.StartedAt.UTC().Format(timeFormat), run.FinishedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]types.ReportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, window_start, window_end, rows_exported, questions, status, error, started_at, finished_at
		FROM report_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []types.ReportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run of the named job, or ErrNotFound.
func (s *SQLiteStore) LastRun(ctx context.Context, job string) (*types.ReportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, window_start, window_end, rows_exported, questions, status, error, started_at, finished_at
		FROM report_runs
		WHERE job = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, job)
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	run, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (types.ReportRun, error) {
	var (
		run                 types.ReportRun
		windowStart         sql.NullString
		windowEnd           sql.NullString
		status              string
		startedAt, finished string
	)
	if err := row.Scan(&run.ID, &run.Job, &windowStart, &windowEnd,
		&run.Rows, &run.Questions, &status, &run.Error, &startedAt, &finished); err != nil {
		return types.ReportRun{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = types.RunStatus(status)
	run.WindowStart = parseNullTime(windowStart)
	run.WindowEnd = parseNullTime(windowEnd)
	if parsed, err := time.Parse(timeFormat, startedAt); err == nil {
		run.StartedAt = parsed
	}
	if parsed, err := time.Parse(timeFormat, finished); err == nil {
		run.FinishedAt = parsed
	}
	return run, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	parsed, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &parsed
}
