package store

import (
	"context"
	"time"

	"github.com/hyperengineering/recap/internal/types"
)

// ChunkIndex defines the operations the retrieval layer needs from the local
// chunk index.
type ChunkIndex interface {
	UpsertChunks(ctx context.Context, chunks []types.Chunk) (int, error)
	AllChunks(ctx context.Context) ([]types.Chunk, error)
	PendingEmbeddings(ctx context.Context, limit int) ([]types.Chunk, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	ChunkCount(ctx context.Context) (int64, error)
}

// RunLog defines the operations the jobs and the status API need from the
// run history.
type RunLog interface {
	RecordRun(ctx context.Context, run types.ReportRun) error
	RecentRuns(ctx context.Context, limit int) ([]types.ReportRun, error)
	LastRun(ctx context.Context, job string) (*types.ReportRun, error)
}

// Store is the full local reporting database contract.
type Store interface {
	ChunkIndex
	RunLog
	Close() error
}

// timeFormat is the canonical timestamp encoding in the local database.
const timeFormat = time.RFC3339Nano
