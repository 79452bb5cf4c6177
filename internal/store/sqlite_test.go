package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/recap/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recap.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertChunks_AssignsIDsAndRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	written, err := s.UpsertChunks(ctx, []types.Chunk{
		{FileID: "f1", Directory: "/docs", Filename: "manual.pdf", Page: 3, Content: "transformer maintenance", Embedding: []float32{0.1, 0.2}},
		{FileID: "f1", Directory: "/docs", Filename: "manual.pdf", Page: 4, Content: "fuse replacement"},
	})
	if err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}
	if written != 2 {
		t.Errorf("written = %d, want 2", written)
	}

	// Only the embedded chunk is visible to retrieval.
	chunks, err := s.AllChunks(ctx)
	if err != nil {
		t.Fatalf("AllChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("AllChunks returned %d chunks, want 1", len(chunks))
	}
	got := chunks[0]
	if got.ID == "" {
		t.Error("chunk ID was not assigned")
	}
	if got.Content != "transformer maintenance" || got.Page != 3 {
		t.Errorf("chunk round-trip mismatch: %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.1 {
		t.Errorf("embedding round-trip mismatch: %v", got.Embedding)
	}

	count, err := s.ChunkCount(ctx)
	if err != nil {
		t.Fatalf("ChunkCount: %v", err)
	}
	if count != 2 {
		t.Errorf("ChunkCount = %d, want 2", count)
	}
}

func TestUpsertChunks_ReplacesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []types.Chunk{{FileID: "f1", Filename: "a.pdf", Page: 1, Content: "old", Embedding: []float32{1}}}
	if _, err := s.UpsertChunks(ctx, first); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}
	second := []types.Chunk{{FileID: "f1", Filename: "a.pdf", Page: 1, Content: "new", Embedding: []float32{2}}}
	if _, err := s.UpsertChunks(ctx, second); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	chunks, err := s.AllChunks(ctx)
	if err != nil {
		t.Fatalf("AllChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 after conflict replace", len(chunks))
	}
	if chunks[0].Content != "new" {
		t.Errorf("Content = %q, want %q", chunks[0].Content, "new")
	}
}

func TestPendingEmbeddings_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertChunks(ctx, []types.Chunk{
		{FileID: "f1", Filename: "a.pdf", Page: 1, Content: "first"},
		{FileID: "f1", Filename: "a.pdf", Page: 2, Content: "second"},
	}); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	pending, err := s.PendingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEmbeddings: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := s.UpdateEmbedding(ctx, pending[0].ID, []float32{0.5, 0.5}); err != nil {
		t.Fatalf("UpdateEmbedding: %v", err)
	}

	pending, err = s.PendingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEmbeddings: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending after update = %d, want 1", len(pending))
	}

	if err := s.UpdateEmbedding(ctx, "no-such-id", []float32{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEmbedding(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRunLog_RecordAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, time.March, 10, 4, 30, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 10, 7, 30, 0, 0, time.UTC)

	runs := []types.ReportRun{
		{
			Job:        types.JobFeedbackReport,
			Rows:       120,
			Status:     types.RunSucceeded,
			StartedAt:  end.Add(time.Minute),
			FinishedAt: end.Add(2 * time.Minute),
		},
		{
			Job:         types.JobCitationGap,
			WindowStart: &start,
			WindowEnd:   &end,
			Questions:   7,
			Status:      types.RunFailed,
			Error:       "smtp: connection refused",
			StartedAt:   end.Add(3 * time.Minute),
			FinishedAt:  end.Add(4 * time.Minute),
		},
	}
	for _, run := range runs {
		if err := s.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	recent, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentRuns = %d, want 2", len(recent))
	}
	// Newest first.
	if recent[0].Job != types.JobCitationGap {
		t.Errorf("first run = %q, want citation-gap", recent[0].Job)
	}
	if recent[0].WindowStart == nil || !recent[0].WindowStart.Equal(start) {
		t.Errorf("WindowStart = %v, want %v", recent[0].WindowStart, start)
	}
	if recent[0].Error != "smtp: connection refused" {
		t.Errorf("Error = %q", recent[0].Error)
	}

	last, err := s.LastRun(ctx, types.JobFeedbackReport)
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if last.Rows != 120 || last.Status != types.RunSucceeded {
		t.Errorf("LastRun = %+v", last)
	}
	if last.WindowStart != nil {
		t.Errorf("WindowStart = %v, want nil", last.WindowStart)
	}

	if _, err := s.LastRun(ctx, "no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LastRun(unknown) = %v, want ErrNotFound", err)
	}
}
