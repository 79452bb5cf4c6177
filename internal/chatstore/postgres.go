// Package chatstore reads chat transcripts and feedback from the platform's
// Postgres database. It is a read-only collaborator: the reporting jobs own
// no data here.
package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hyperengineering/recap/internal/types"
)

// Reader is the query contract the reporting jobs depend on.
type Reader interface {
	FeedbackRows(ctx context.Context, emails []string, chunkSize int, fn func([]types.FeedbackRow) error) (int, error)
	Metrics(ctx context.Context, emails []string, dayStart, dayEnd time.Time) (types.Metrics, error)
	UncitedQuestions(ctx context.Context, departmentID string, since time.Time) ([]string, error)
}

// Compile-time interface check
var _ Reader = (*Postgres)(nil)

// Postgres implements Reader over the platform database.
type Postgres struct {
	db *sql.DB
}

// Open connects to the platform database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewWithDB wraps an existing connection. Used for testing.
func NewWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// uncitedFilter matches chats whose citations are the empty JSONB object or
// an empty JSONB array.
const uncitedFilter = `(c.citations::jsonb = '{}'::jsonb
		OR (jsonb_typeof(c.citations::jsonb) = 'array' AND jsonb_array_length(c.citations::jsonb) = 0))`

// feedbackRowsQuery joins users, chats, and feedback for the CSV export.
const feedbackRowsQuery = `
	SELECT u.id, u.username, u.email,
	       c.id, c.conv_id, c.question, c.sig_response,
	       f.rating, f.rating_2, f.rating_3, f.comment,
	       c.response, c.citations, c.created_at
	FROM users u
	JOIN chats c ON c.user_id = u.id
	LEFT JOIN pdf_chat_feedback f ON f.chat_id = c.id
	WHERE u.email = ANY($1)
	ORDER BY c.created_at DESC`

// FeedbackRows streams the joined feedback export in chunks of chunkSize rows,
// invoking fn for every chunk. Returns the total number of rows delivered.
func (p *Postgres) FeedbackRows(ctx context.Context, emails []string, chunkSize int, fn func([]types.FeedbackRow) error) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 10000
	}

	rows, err := p.db.QueryContext(ctx, feedbackRowsQuery, emails)
	if err != nil {
		return 0, fmt.Errorf("query feedback rows: %w", err)
	}
	defer rows.Close()

	total := 0
	chunk := make([]types.FeedbackRow, 0, chunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		total += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	for rows.Next() {
		var (
			row       types.FeedbackRow
			convID    sql.NullString
			sig       sql.NullString
			response  sql.NullString
			citations sql.NullString
		)
		if err := rows.Scan(&row.UserID, &row.Username, &row.Email,
			&row.ChatID, &convID, &row.Question, &sig,
			&row.RatingFactual, &row.RatingRelevant, &row.RatingReferences, &row.Comment,
			&response, &citations, &row.CreatedAt); err != nil {
			return total, fmt.Errorf("scan feedback row: %w", err)
		}
		row.ConvID = convID.String
		row.InterpretedQuestion = sig.String
		row.Response = response.String
		row.Citations = citations.String

		chunk = append(chunk, row)
		if len(chunk) == chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, fmt.Errorf("iterate feedback rows: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// Metrics returns the headline counts for the report email: all-time and
// same-day chats, feedback entries, and uncited answers, restricted to the
// audience email list. The day bounds are half-open [dayStart, dayEnd).
func (p *Postgres) Metrics(ctx context.Context, emails []string, dayStart, dayEnd time.Time) (types.Metrics, error) {
	var m types.Metrics

	counts := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{
			dest: &m.TotalChats,
			query: `SELECT COUNT(c.id) FROM chats c
				JOIN users u ON c.user_id = u.id
				WHERE u.email = ANY($1)`,
			args: []any{emails},
		},
		{
			dest: &m.TotalFeedback,
			query: `SELECT COUNT(f.id) FROM pdf_chat_feedback f
				JOIN chats c ON f.chat_id = c.id
				JOIN users u ON c.user_id = u.id
				WHERE u.email = ANY($1)`,
			args: []any{emails},
		},
		{
			dest: &m.TotalUncited,
			query: `SELECT COUNT(c.id) FROM chats c
				JOIN users u ON c.user_id = u.id
				WHERE u.email = ANY($1) AND ` + uncitedFilter,
			args: []any{emails},
		},
		{
			dest: &m.ChatsToday,
			query: `SELECT COUNT(c.id) FROM chats c
				JOIN users u ON c.user_id = u.id
				WHERE u.email = ANY($1) AND c.created_at >= $2 AND c.created_at < $3`,
			args: []any{emails, dayStart, dayEnd},
		},
		{
			dest: &m.FeedbackToday,
			query: `SELECT COUNT(f.id) FROM pdf_chat_feedback f
				JOIN chats c ON f.chat_id = c.id
				JOIN users u ON c.user_id = u.id
				WHERE u.email = ANY($1) AND f.created_at >= $2 AND f.created_at < $3`,
			args: []any{emails, dayStart, dayEnd},
		},
		{
			dest: &m.UncitedToday,
			query: `SELECT COUNT(c.id) FROM chats c
				JOIN users u ON c.user_id = u.id
				WHERE u.email = ANY($1) AND c.created_at >= $2 AND c.created_at < $3 AND ` + uncitedFilter,
			args: []any{emails, dayStart, dayEnd},
		},
	}

	for _, count := range counts {
		if err := p.db.QueryRowContext(ctx, count.query, count.args...).Scan(count.dest); err != nil {
			return types.Metrics{}, fmt.Errorf("count metrics: %w", err)
		}
	}
	return m, nil
}

// UncitedQuestions returns the interpreted questions of uncited chats created
// at or after since, for users belonging to the given department, newest
// first. This window-bounded variant feeds the citation gap job.
func (p *Postgres) UncitedQuestions(ctx context.Context, departmentID string, since time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.sig_response
		FROM chats c
		WHERE c.user_id IN (
			SELECT ud.user_id FROM user_departments ud WHERE ud.department_id = $1
		)
		AND `+uncitedFilter+`
		AND c.created_at >= $2
		ORDER BY c.created_at DESC
	`, departmentID, since)
	if err != nil {
		return nil, fmt.Errorf("query uncited questions: %w", err)
	}
	defer rows.Close()

	var questions []string
	for rows.Next() {
		var question sql.NullString
		if err := rows.Scan(&question); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if question.Valid && question.String != "" {
			questions = append(questions, question.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}
