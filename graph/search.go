package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const vectorIndexName = "chunk_embedding_index"

// VectorSearch returns the chunks whose embedding is most similar to
// embedding, restricted to score >= minScore and at most limit results,
// ordered by descending score.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, minScore float64, limit int) ([]ChunkMatch, error) {
	results, err := s.BulkVectorSearch(ctx, [][]float32{embedding}, minScore, limit)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// BulkVectorSearch runs one vector_search per embedding, preserving input
// order in the returned slice of result slices.
func (s *Store) BulkVectorSearch(ctx context.Context, embeddings [][]float32, minScore float64, limit int) ([][]ChunkMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	out := make([][]ChunkMatch, len(embeddings))
	for i, embedding := range embeddings {
		vec := make([]float64, len(embedding))
		for j, v := range embedding {
			vec[j] = float64(v)
		}

		raw, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, fmt.Sprintf(`
				CALL db.index.vector.queryNodes('%s', $limit, $embedding)
				YIELD node, score
				WHERE score >= $min_score
				RETURN node.id AS id, node.book_id AS book_id, node.text AS text, node.concept AS concept, score
				ORDER BY score DESC
			`, vectorIndexName), map[string]any{
				"limit": limit, "embedding": vec, "min_score": minScore,
			})
			if err != nil {
				return nil, err
			}
			var matches []ChunkMatch
			for result.Next(ctx) {
				record := result.Record()
				id, _ := record.Get("id")
				bookID, _ := record.Get("book_id")
				text, _ := record.Get("text")
				concept, _ := record.Get("concept")
				score, _ := record.Get("score")
				match := ChunkMatch{}
				match.ChunkID, _ = id.(string)
				match.BookID, _ = bookID.(string)
				match.Text, _ = text.(string)
				match.Concept, _ = concept.(string)
				match.Score, _ = score.(float64)
				matches = append(matches, match)
			}
			if err := result.Err(); err != nil {
				return nil, err
			}
			return matches, nil
		})
		if err != nil {
			return nil, err
		}
		out[i] = raw.([]ChunkMatch)
	}

	return out, nil
}
