// Package report assembles the artifacts the jobs send out: the feedback CSV,
// the HTML email body, and the citation gap text report.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/recap/internal/types"
)

// csvHeader matches the column labels of the legacy export so downstream
// spreadsheets keep working.
var csvHeader = []string{
	"user_id",
	"username",
	"email",
	"chat_id",
	"conv_id",
	"question",
	"interpreted question",
	"Is response factually correct?",
	"Is response relevant and focused?",
	"Accurate references?",
	"comment",
	"response",
	"citations",
	"created_at",
}

// CSVBuilder accumulates feedback rows into an in-memory CSV document.
// The header is written once, ahead of the first row chunk.
type CSVBuilder struct {
	buf    bytes.Buffer
	writer *csv.Writer
	rows   int
}

// NewCSVBuilder creates a builder with the export header already written.
func NewCSVBuilder() (*CSVBuilder, error) {
	b := &CSVBuilder{}
	b.writer = csv.NewWriter(&b.buf)
	if err := b.writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return b, nil
}

// Append writes one chunk of rows.
func (b *CSVBuilder) Append(rows []types.FeedbackRow) error {
	for _, row := range rows {
		record := []string{
			row.UserID,
			row.Username,
			row.Email,
			row.ChatID,
			row.ConvID,
			row.Question,
			row.InterpretedQuestion,
			deref(row.RatingFactual),
			deref(row.RatingRelevant),
			deref(row.RatingReferences),
			deref(row.Comment),
			normalizeResponse(row.Response),
			row.Citations,
			row.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := b.writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		b.rows++
	}
	return nil
}

// Rows returns the number of data rows written so far.
func (b *CSVBuilder) Rows() int {
	return b.rows
}

// Bytes flushes the writer and returns the CSV document.
func (b *CSVBuilder) Bytes() ([]byte, error) {
	b.writer.Flush()
	if err := b.writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return b.buf.Bytes(), nil
}

// Filename returns the dated export filename, e.g. feedback_data_02-03-2025.csv.
func Filename(now time.Time) string {
	return fmt.Sprintf("feedback_data_%s.csv", now.Format("02-01-2006"))
}

// normalizeResponse unwraps responses that were stored as JSON-encoded
// strings; anything that does not parse is passed through untouched.
func normalizeResponse(response string) string {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return response
	}
	var decoded string
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return response
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
