package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// EnsureIndexes creates the native vector index on Chunk.embedding plus the
// uniqueness/lookup indexes the graph's MERGE-by-id pattern relies on for
// performance.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE VECTOR INDEX %s IF NOT EXISTS
			FOR (c:Chunk) ON (c.embedding)
			OPTIONS {indexConfig: {
				` + "`vector.dimensions`" + `: %d,
				` + "`vector.similarity_function`" + `: 'cosine'
			}}
		`, vectorIndexName, s.dimension),
		"CREATE CONSTRAINT textbook_id IF NOT EXISTS FOR (b:Textbook) REQUIRE b.id IS UNIQUE",
		"CREATE CONSTRAINT chapter_id IF NOT EXISTS FOR (c:Chapter) REQUIRE c.id IS UNIQUE",
		"CREATE CONSTRAINT section_id IF NOT EXISTS FOR (s:Section) REQUIRE s.id IS UNIQUE",
		"CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE",
		"CREATE CONSTRAINT concept_name IF NOT EXISTS FOR (c:Concept) REQUIRE c.name IS UNIQUE",
		"CREATE INDEX chunk_book_id IF NOT EXISTS FOR (c:Chunk) ON (c.book_id)",
	}

	for _, stmt := range stmts {
		if err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, stmt, nil)
		}); err != nil {
			return fmt.Errorf("ensure index %q: %w", stmt, err)
		}
	}
	return nil
}
