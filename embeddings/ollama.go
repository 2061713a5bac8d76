package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type ollamaEmbedder struct {
	host      string
	model     string
	dimension int
	client    *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(opts Options) Embedder {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaEmbedder{
		host:      host,
		model:     opts.Model,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Embed requests an embedding per text. A text whose request fails, or
// whose returned vector doesn't match the configured dimension, leaves a
// nil slot at that index rather than failing the batch.
func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	url := fmt.Sprintf("%s/api/embeddings", e.host)

	for i, text := range texts {
		vec, err := e.embedOne(ctx, url, text)
		if err != nil {
			log.Printf("ollama embedding failed for item %d: %v; leaving slot empty", i, err)
			continue
		}
		if e.dimension > 0 && len(vec) != e.dimension {
			log.Printf("ollama embedding dimension mismatch for item %d: expected %d, got %d; leaving slot empty", i, e.dimension, len(vec))
			continue
		}
		results[i] = vec
	}

	return results, nil
}

func (e *ollamaEmbedder) embedOne(ctx context.Context, url, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ollama embeddings API: %w", err)
	}
	defer resp.Body.Close()

	var payload ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	vec := make([]float32, len(payload.Embedding))
	for i, value := range payload.Embedding {
		vec[i] = float32(value)
	}
	return vec, nil
}

// Dimension reports the configured embedding width for model, matching
// the model this embedder was constructed for.
func (e *ollamaEmbedder) Dimension(model string) int {
	if model != "" && model != e.model {
		return 0
	}
	return e.dimension
}
