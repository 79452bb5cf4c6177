// Package embedding generates query and chunk embeddings for retrieval.
package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Compile-time interface check
var _ Embedder = (*OpenAI)(nil)

// EmbeddingsService defines the interface for making embedding API calls.
// This abstraction enables testing without calling the real OpenAI API.
type EmbeddingsService interface {
	New(ctx context.Context, params openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAI implements the embedding service using OpenAI's API.
type OpenAI struct {
	embeddings EmbeddingsService
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAI creates a new OpenAI embedding service. A dimensions value of 0
// leaves the model default in place.
func NewOpenAI(apiKey, model string, dimensions int) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		embeddings: client.Embeddings,
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}
}

// Embed generates an embedding for the given text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.embeddings.New(ctx, o.params([]string{text}))
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding generation failed: no data returned")
	}

	return toFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := o.embeddings.New(ctx, o.params(texts))
	if err != nil {
		return nil, fmt.Errorf("batch embedding generation failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("batch embedding generation failed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Sort by index to guarantee order matches input
	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = toFloat32(data.Embedding)
	}

	return embeddings, nil
}

// ModelName returns the embedding model name.
func (o *OpenAI) ModelName() string {
	return string(o.model)
}

func (o *OpenAI) params(texts []string) openai.EmbeddingNewParams {
	params := openai.EmbeddingNewParams{
		Input: openai.F[openai.EmbeddingNewParamsInputUnion](
			openai.EmbeddingNewParamsInputArrayOfStrings(texts),
		),
		Model: openai.F(o.model),
	}
	if o.dimensions > 0 {
		params.Dimensions = openai.F(int64(o.dimensions))
	}
	return params
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
