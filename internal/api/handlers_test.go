package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hyperengineering/recap/internal/schedule"
	"github.com/hyperengineering/recap/internal/store"
	"github.com/hyperengineering/recap/internal/types"
)

type fakeStore struct {
	runs       []types.ReportRun
	chunkCount int64
	runsErr    error
	countErr   error
}

func (f *fakeStore) UpsertChunks(ctx context.Context, chunks []types.Chunk) (int, error) {
	return 0, nil
}

func (f *fakeStore) AllChunks(ctx context.Context) ([]types.Chunk, error) { return nil, nil }

func (f *fakeStore) PendingEmbeddings(ctx context.Context, limit int) ([]types.Chunk, error) {
	return nil, nil
}

func (f *fakeStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	return nil
}

func (f *fakeStore) ChunkCount(ctx context.Context) (int64, error) {
	return f.chunkCount, f.countErr
}

func (f *fakeStore) RecordRun(ctx context.Context, run types.ReportRun) error { return nil }

func (f *fakeStore) RecentRuns(ctx context.Context, limit int) ([]types.ReportRun, error) {
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeStore) LastRun(ctx context.Context, job string) (*types.ReportRun, error) {
	for i := range f.runs {
		if f.runs[i].Job == job {
			return &f.runs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

func newTestRouter(t *testing.T, s store.Store, now time.Time) http.Handler {
	t.Helper()
	resolver, err := schedule.NewResolver([]int{4, 7, 10, 13}, 30, time.UTC)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	h := NewHandler(s, resolver, "test", clockwork.NewFakeClockAt(now))
	return NewRouter(h)
}

func TestHealth(t *testing.T) {
	s := &fakeStore{chunkCount: 42, runs: []types.ReportRun{{
		Job:        types.JobFeedbackReport,
		Status:     types.RunSucceeded,
		FinishedAt: time.Date(2025, time.March, 10, 7, 31, 0, 0, time.UTC),
	}}}
	router := newTestRouter(t, s, time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ChunkCount != 42 {
		t.Errorf("chunk count = %d", resp.ChunkCount)
	}
	if len(resp.Checkpoints) != 4 {
		t.Errorf("checkpoints = %v", resp.Checkpoints)
	}
	if resp.LastRunAt == nil {
		t.Error("missing last run timestamp")
	}
}

func TestRuns(t *testing.T) {
	s := &fakeStore{runs: []types.ReportRun{
		{ID: "r2", Job: types.JobCitationGap, Status: types.RunSucceeded},
		{ID: "r1", Job: types.JobFeedbackReport, Status: types.RunFailed},
	}}
	router := newTestRouter(t, s, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Runs []types.ReportRun `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 2 || resp.Runs[0].ID != "r2" {
		t.Errorf("runs = %+v", resp.Runs)
	}
}

func TestRuns_Limit(t *testing.T) {
	s := &fakeStore{runs: []types.ReportRun{{ID: "r2"}, {ID: "r1"}}}
	router := newTestRouter(t, s, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=1", nil))

	var resp struct {
		Runs []types.ReportRun `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 1 {
		t.Errorf("runs = %+v", resp.Runs)
	}
}

func TestRuns_InvalidLimit(t *testing.T) {
	router := newTestRouter(t, &fakeStore{}, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=zero", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestLastRun(t *testing.T) {
	s := &fakeStore{runs: []types.ReportRun{{ID: "r1", Job: types.JobFeedbackReport, Rows: 12}}}
	router := newTestRouter(t, s, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/feedback-report/latest", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run types.ReportRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "r1" || run.Rows != 12 {
		t.Errorf("run = %+v", run)
	}
}

func TestLastRun_UnknownJob(t *testing.T) {
	router := newTestRouter(t, &fakeStore{}, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/compaction/latest", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLastRun_NoRuns(t *testing.T) {
	router := newTestRouter(t, &fakeStore{}, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/citation-gap/latest", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWindow(t *testing.T) {
	// 08:00 UTC: the window is [04:30, 07:30) of the same day.
	router := newTestRouter(t, &fakeStore{}, time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/window", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp WindowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantStart := time.Date(2025, time.March, 10, 4, 30, 0, 0, time.UTC)
	wantEnd := time.Date(2025, time.March, 10, 7, 30, 0, 0, time.UTC)
	if !resp.Start.Equal(wantStart) || !resp.End.Equal(wantEnd) {
		t.Errorf("window = %+v", resp)
	}
	if resp.Duration != "3h0m0s" {
		t.Errorf("duration = %q", resp.Duration)
	}
}

func TestHealth_StoreError(t *testing.T) {
	router := newTestRouter(t, &fakeStore{countErr: errors.New("db closed")}, time.Now())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
