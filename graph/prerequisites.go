package graph

import (
	"fmt"

	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CreatePrerequisite records that fromChunkID must be learned before
// toChunkID, creating a PREREQUISITE_FOR edge and reconciling both chunks'
// denormalized has_prerequisite/prerequisite_for arrays so they always
// agree with the actual graph edges.
func (s *Store) CreatePrerequisite(ctx context.Context, fromChunkID, toChunkID, requirementType string) error {
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (from:Chunk {id: $from}), (to:Chunk {id: $to})
			MERGE (from)-[r:PREREQUISITE_FOR]->(to)
			SET r.requirement_type = $type
		`, map[string]any{"from": fromChunkID, "to": toChunkID, "type": requirementType}); err != nil {
			return nil, fmt.Errorf("create prerequisite edge: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (to:Chunk {id: $to})
			SET to.has_prerequisite = CASE
				WHEN $from IN coalesce(to.has_prerequisite, []) THEN to.has_prerequisite
				ELSE coalesce(to.has_prerequisite, []) + $from
			END
		`, map[string]any{"to": toChunkID, "from": fromChunkID}); err != nil {
			return nil, fmt.Errorf("reconcile has_prerequisite: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (from:Chunk {id: $from})
			SET from.prerequisite_for = CASE
				WHEN $to IN coalesce(from.prerequisite_for, []) THEN from.prerequisite_for
				ELSE coalesce(from.prerequisite_for, []) + $to
			END
		`, map[string]any{"from": fromChunkID, "to": toChunkID}); err != nil {
			return nil, fmt.Errorf("reconcile prerequisite_for: %w", err)
		}

		return nil, nil
	})
}

// PrerequisiteChain returns the distinct chunk ids that must be learned
// before chunkID, following PREREQUISITE_FOR edges backwards up to
// maxDepth hops.
func (s *Store) PrerequisiteChain(ctx context.Context, chunkID string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	raw, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (p:Chunk)-[:PREREQUISITE_FOR*1..%d]->(target:Chunk {id: $id})
			RETURN DISTINCT p.id AS id
		`, maxDepth), map[string]any{"id": chunkID})
		if err != nil {
			return nil, err
		}
		return collectIDs(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return raw.([]string), nil
}

// Dependents returns the distinct chunk ids that require chunkID as a
// prerequisite, following PREREQUISITE_FOR edges forward up to maxDepth
// hops.
func (s *Store) Dependents(ctx context.Context, chunkID string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	raw, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (source:Chunk {id: $id})-[:PREREQUISITE_FOR*1..%d]->(dep:Chunk)
			RETURN DISTINCT dep.id AS id
		`, maxDepth), map[string]any{"id": chunkID})
		if err != nil {
			return nil, err
		}
		return collectIDs(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return raw.([]string), nil
}

func collectIDs(ctx context.Context, result neo4j.ResultWithContext) ([]string, error) {
	var ids []string
	for result.Next(ctx) {
		if id, ok := result.Record().Get("id"); ok {
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return ids, result.Err()
}
