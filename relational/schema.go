package relational

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the learning-path tables if they don't already
// exist, including a pgvector-backed chunk_embeddings mirror table that
// Store.GetChunksByID reads chunk content from. Vector search itself runs
// against Neo4j, not this table.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS learning_paths (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			query TEXT NOT NULL,
			title TEXT,
			difficulty TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ticket (
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL DEFAULT 'learning_concept',
			summary TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'new',
			resolution TEXT,
			milestone TEXT,
			owner TEXT,
			reporter TEXT,
			keywords TEXT,
			time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			changetime TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_custom (
			ticket_id BIGINT NOT NULL REFERENCES ticket(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			value TEXT,
			PRIMARY KEY (ticket_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_change (
			ticket_id BIGINT NOT NULL REFERENCES ticket(id) ON DELETE CASCADE,
			time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			author TEXT,
			field TEXT NOT NULL,
			oldvalue TEXT,
			newvalue TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS learning.concept_metadata (
			id UUID PRIMARY KEY,
			learning_path_id UUID NOT NULL REFERENCES learning_paths(id) ON DELETE CASCADE,
			ticket_id BIGINT NOT NULL REFERENCES ticket(id) ON DELETE CASCADE,
			concept_name TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			sequence_order INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS learning.prerequisites (
			id UUID PRIMARY KEY,
			from_concept_id UUID NOT NULL REFERENCES learning.concept_metadata(id) ON DELETE CASCADE,
			to_concept_id UUID NOT NULL REFERENCES learning.concept_metadata(id) ON DELETE CASCADE,
			requirement_type TEXT NOT NULL DEFAULT 'mandatory'
		)`,
		`CREATE TABLE IF NOT EXISTS learning.progress (
			student_id TEXT NOT NULL,
			concept_id UUID NOT NULL REFERENCES learning.concept_metadata(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'in_progress',
			time_spent_minutes INT NOT NULL DEFAULT 0,
			attempt_count INT NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ,
			notes TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (student_id, concept_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
			chunk_id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_book ON chunk_embeddings(book_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_vector ON chunk_embeddings USING ivfflat (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_ticket_custom_name ON ticket_custom(name)",
		"CREATE INDEX IF NOT EXISTS idx_concept_metadata_path ON learning.concept_metadata(learning_path_id)",
	}

	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS learning"); err != nil {
		return fmt.Errorf("create learning schema: %w", err)
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
