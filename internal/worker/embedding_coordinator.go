package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/recap/internal/types"
)

// EmbeddingStore defines the chunk index operations the coordinator needs.
// Implemented by store.SQLiteStore.
type EmbeddingStore interface {
	PendingEmbeddings(ctx context.Context, limit int) ([]types.Chunk, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Embedder generates embeddings for chunk content.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCoordinator backfills embeddings for chunks imported without one.
// Chunks whose embedding calls failed stay pending and are retried on the
// next cycle.
type EmbeddingCoordinator struct {
	store     EmbeddingStore
	embedder  Embedder
	interval  time.Duration
	batchSize int
}

// NewEmbeddingCoordinator creates a coordinator that embeds pending chunks
// in batches at the given interval.
func NewEmbeddingCoordinator(store EmbeddingStore, embedder Embedder, interval time.Duration, batchSize int) *EmbeddingCoordinator {
	return &EmbeddingCoordinator{
		store:     store,
		embedder:  embedder,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
//
// The first batch is processed immediately on start so chunks imported while
// the service was down do not wait a full interval.
func (c *EmbeddingCoordinator) Run(ctx context.Context) {
	slog.Info("embedding coordinator started",
		"component", "worker",
		"worker", "embedding-coordinator",
		"interval", c.interval.String(),
		"batch_size", c.batchSize,
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("embedding coordinator stopped",
				"component", "worker",
				"worker", "embedding-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.processBatch(ctx)
		}
	}
}

// processBatch embeds one batch of pending chunks.
func (c *EmbeddingCoordinator) processBatch(ctx context.Context) {
	chunks, err := c.store.PendingEmbeddings(ctx, c.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		slog.Error("failed to load pending chunks",
			"component", "worker",
			"worker", "embedding-coordinator",
			"error", err,
		)
		return
	}
	if len(chunks) == 0 {
		return
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	embeddings, err := c.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		slog.Warn("embedding batch failed, will retry",
			"component", "worker",
			"worker", "embedding-coordinator",
			"chunks", len(chunks),
			"error", err,
		)
		return
	}

	var succeeded int
	for i, chunk := range chunks {
		if err := c.store.UpdateEmbedding(ctx, chunk.ID, embeddings[i]); err != nil {
			slog.Error("failed to store embedding",
				"component", "worker",
				"worker", "embedding-coordinator",
				"chunk_id", chunk.ID,
				"error", err,
			)
			continue
		}
		succeeded++
	}

	if succeeded > 0 {
		slog.Info("embedded pending chunks",
			"component", "worker",
			"worker", "embedding-coordinator",
			"chunks_embedded", succeeded,
		)
	}
}
