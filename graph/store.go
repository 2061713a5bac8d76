package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/learntrac/backend/apperr"
)

// Store is the Neo4j-backed GraphStore implementation. All writes are
// idempotent MERGEs, following the teacher's knowledge.SyncDocument
// pattern, so re-ingesting a textbook never duplicates nodes.
type Store struct {
	driver    neo4j.DriverWithContext
	dimension int
}

func NewStore(driver neo4j.DriverWithContext, dimension int) *Store {
	return &Store{driver: driver, dimension: dimension}
}

func (s *Store) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) error {
	if s.driver == nil {
		return apperr.Internal("neo4j driver is nil", nil)
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, fn)
	if err != nil {
		return apperr.Dependency("neo4j write", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	if s.driver == nil {
		return nil, apperr.Internal("neo4j driver is nil", nil)
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, fn)
	if err != nil {
		return nil, apperr.Dependency("neo4j read", err)
	}
	return result, nil
}

// UpsertTextbook idempotently creates or updates a Textbook node.
func (s *Store) UpsertTextbook(ctx context.Context, t Textbook) error {
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (b:Textbook {id: $id})
			SET b.title = $title, b.subject = $subject
		`, map[string]any{"id": t.ID, "title": t.Title, "subject": t.Subject})
	})
}

// UpsertChapter idempotently creates or updates a Chapter node and links
// it to its Textbook.
func (s *Store) UpsertChapter(ctx context.Context, c Chapter) error {
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (b:Textbook {id: $book_id})
			MERGE (c:Chapter {id: $id})
			SET c.number = $number, c.title = $title, c.pages = $pages
			MERGE (b)-[:HAS_CHAPTER {order: $number}]->(c)
		`, map[string]any{
			"book_id": c.TextbookID, "id": c.ID, "number": c.Number, "title": c.Title, "pages": c.Pages,
		})
	})
}

// UpsertSection idempotently creates or updates a Section node and links
// it to its Chapter.
func (s *Store) UpsertSection(ctx context.Context, sec Section) error {
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (c:Chapter {id: $chapter_id})
			MERGE (s:Section {id: $id})
			SET s.title = $title, s.level = $level, s.order = $order
			MERGE (c)-[:HAS_SECTION {order: $order}]->(s)
		`, map[string]any{
			"chapter_id": sec.ChapterID, "id": sec.ID, "title": sec.Title, "level": sec.Level, "order": sec.Order,
		})
	})
}

// UpsertConcept idempotently creates a Concept node, deduplicated by name.
func (s *Store) UpsertConcept(ctx context.Context, c Concept) error {
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `MERGE (:Concept {name: $name})`, map[string]any{"name": c.Name})
	})
}

// UpsertChunk idempotently creates or updates a Chunk node, links it to its
// Section and Concept, and stores its embedding for vector search.
func (s *Store) UpsertChunk(ctx context.Context, c Chunk) error {
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{
			"id":                c.ID,
			"section_id":        c.SectionID,
			"book_id":           c.BookID,
			"text":              c.Text,
			"concept":           c.Concept,
			"subject":           c.Subject,
			"content_type":      c.ContentType,
			"difficulty":        c.Difficulty,
			"confidence_score":  c.ConfidenceScore,
			"start_offset":      c.StartOffset,
			"end_offset":        c.EndOffset,
			"has_prerequisite":  c.HasPrerequisite,
			"prerequisite_for":  c.PrerequisiteFor,
		}
		if c.Embedding != nil {
			vec := make([]float64, len(c.Embedding))
			for i, v := range c.Embedding {
				vec[i] = float64(v)
			}
			params["embedding"] = vec
		}

		if _, err := tx.Run(ctx, `
			MERGE (ch:Chunk {id: $id})
			SET ch.book_id = $book_id,
			    ch.text = $text,
			    ch.concept = $concept,
			    ch.subject = $subject,
			    ch.content_type = $content_type,
			    ch.difficulty = $difficulty,
			    ch.confidence_score = $confidence_score,
			    ch.start_offset = $start_offset,
			    ch.end_offset = $end_offset,
			    ch.has_prerequisite = $has_prerequisite,
			    ch.prerequisite_for = $prerequisite_for
		`, params); err != nil {
			return nil, fmt.Errorf("upsert chunk node: %w", err)
		}

		if c.Embedding != nil {
			if _, err := tx.Run(ctx, `
				MATCH (ch:Chunk {id: $id}) SET ch.embedding = $embedding
			`, map[string]any{"id": c.ID, "embedding": params["embedding"]}); err != nil {
				return nil, fmt.Errorf("set chunk embedding: %w", err)
			}
		}

		if c.SectionID != "" {
			if _, err := tx.Run(ctx, `
				MATCH (s:Section {id: $section_id}), (ch:Chunk {id: $id})
				MERGE (s)-[:HAS_CHUNK]->(ch)
			`, map[string]any{"section_id": c.SectionID, "id": c.ID}); err != nil {
				return nil, fmt.Errorf("link chunk to section: %w", err)
			}
		}

		if c.Concept != "" {
			if _, err := tx.Run(ctx, `
				MATCH (ch:Chunk {id: $id})
				MERGE (concept:Concept {name: $concept})
				MERGE (ch)-[:COVERS]->(concept)
			`, map[string]any{"id": c.ID, "concept": c.Concept}); err != nil {
				return nil, fmt.Errorf("link chunk to concept: %w", err)
			}
		}

		return nil, nil
	})
}

// Link creates an idempotent, possibly-propertied edge of edgeType
// between two nodes identified by their id property. edgeType must be one
// of the whitelisted types since Cypher relationship types can't be
// parameterized.
func (s *Store) Link(ctx context.Context, edgeType, fromID, toID string, props map[string]any) error {
	if !allowedEdgeTypes[edgeType] {
		return apperr.Validation("edge_type", fmt.Sprintf("unsupported edge type %q", edgeType))
	}
	query := fmt.Sprintf(`
		MATCH (a {id: $from_id}), (b {id: $to_id})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
	`, edgeType)
	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"from_id": fromID, "to_id": toID, "props": props})
	})
}
