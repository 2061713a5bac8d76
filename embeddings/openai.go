package embeddings

import (
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai embeddings: %w", err)
	}

	results := make([][]float32, len(resp.Data))
	for i, datum := range resp.Data {
		if e.dimension > 0 && len(datum.Embedding) != e.dimension {
			log.Printf("openai embedding dimension mismatch for item %d: expected %d, got %d; leaving slot empty", i, e.dimension, len(datum.Embedding))
			continue
		}
		results[i] = datum.Embedding
	}

	return results, nil
}

// Dimension reports the configured embedding width. OpenAI's embedding
// models have a fixed output size per model name, but we trust the
// configured dimension rather than hardcoding a per-model table.
func (e *openAIEmbedder) Dimension(model string) int {
	if model != "" && model != e.model {
		return 0
	}
	return e.dimension
}
