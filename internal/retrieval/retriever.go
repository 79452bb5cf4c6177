// Package retrieval finds the document chunks most relevant to a question.
// Candidates are scored by cosine similarity against the query embedding,
// then re-ranked with Maximal Marginal Relevance to trade relevance against
// diversity before the final cut.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperengineering/recap/internal/embedding"
	"github.com/hyperengineering/recap/internal/types"
	"github.com/hyperengineering/recap/internal/vector"
)

// ChunkSource supplies the candidate chunks for scoring.
// Implemented by store.SQLiteStore.
type ChunkSource interface {
	AllChunks(ctx context.Context) ([]types.Chunk, error)
}

// Options control how many candidates are fetched and how the final set is
// diversified. Lambda 1 is pure relevance, 0 pure diversity.
type Options struct {
	K      int
	FetchK int
	Lambda float64
}

// Retriever embeds queries and selects relevant chunks from a chunk source.
type Retriever struct {
	source   ChunkSource
	embedder embedding.Embedder
	opts     Options
}

// NewRetriever creates a retriever over the given source and embedder.
func NewRetriever(source ChunkSource, embedder embedding.Embedder, opts Options) (*Retriever, error) {
	if opts.K <= 0 {
		return nil, fmt.Errorf("retrieval: k must be positive, got %d", opts.K)
	}
	if opts.FetchK < opts.K {
		return nil, fmt.Errorf("retrieval: fetch_k %d below k %d", opts.FetchK, opts.K)
	}
	if opts.Lambda < 0 || opts.Lambda > 1 {
		return nil, fmt.Errorf("retrieval: lambda %v out of range [0,1]", opts.Lambda)
	}
	return &Retriever{source: source, embedder: embedder, opts: opts}, nil
}

// scored pairs a chunk with its query relevance.
type scored struct {
	chunk     types.Chunk
	relevance float64
}

// Retrieve returns up to K chunks for the question, most relevant first
// after MMR re-ranking.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]types.RetrievedChunk, error) {
	query, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	chunks, err := r.source.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	candidates := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		candidates = append(candidates, scored{
			chunk:     chunk,
			relevance: vector.CosineSimilarity(query, chunk.Embedding),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].relevance > candidates[j].relevance
	})
	if len(candidates) > r.opts.FetchK {
		candidates = candidates[:r.opts.FetchK]
	}

	selected := maximalMarginalRelevance(candidates, r.opts.K, r.opts.Lambda)

	results := make([]types.RetrievedChunk, 0, len(selected))
	for _, s := range selected {
		results = append(results, types.RetrievedChunk{
			FileID:    s.chunk.FileID,
			MMRScore:  s.relevance,
			Directory: s.chunk.Directory,
			Filename:  s.chunk.Filename,
			Page:      s.chunk.Page,
			Content:   s.chunk.Content,
		})
	}
	return results, nil
}

// maximalMarginalRelevance greedily picks up to k candidates maximizing
// lambda*relevance - (1-lambda)*max_similarity_to_selected. Candidates must
// arrive sorted by relevance; the first pick is the most relevant one.
func maximalMarginalRelevance(candidates []scored, k int, lambda float64) []scored {
	if len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]scored, 0, k)
	remaining := make([]scored, len(candidates))
	copy(remaining, candidates)

	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := -2.0

		for i, candidate := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				sim := vector.CosineSimilarity(candidate.chunk.Embedding, s.chunk.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*candidate.relevance - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
