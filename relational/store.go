package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/learntrac/backend/apperr"
)

// Store is the relational persistence layer for the learning-path domain.
// Every write that must be transactional accepts an optional pgx.Tx; when
// tx is nil the method runs against the pool directly.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BeginTx starts a transaction callers drive through the Store's other
// methods, passing the returned tx as their tx argument.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Dependency("begin transaction", err)
	}
	return tx, nil
}

func (s *Store) q(tx pgx.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.pool
}

// InsertLearningPath inserts a new learning_paths row and returns its id.
func (s *Store) InsertLearningPath(ctx context.Context, tx pgx.Tx, path LearningPath) (string, error) {
	id := path.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.q(tx).Exec(ctx, `
		INSERT INTO learning_paths (id, user_id, query, title, difficulty, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, id, path.UserID, path.Query, path.Title, path.Difficulty)
	if err != nil {
		return "", apperr.Dependency("insert learning path", err)
	}
	return id, nil
}

// InsertTicket inserts a core ticket row and returns its generated id.
func (s *Store) InsertTicket(ctx context.Context, tx pgx.Tx, t Ticket) (int64, error) {
	var id int64
	ticketType := t.Type
	if ticketType == "" {
		ticketType = "learning_concept"
	}
	err := s.q(tx).QueryRow(ctx, `
		INSERT INTO ticket (type, summary, description, status, resolution, milestone, owner, reporter, keywords, time, changetime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`, ticketType, t.Summary, t.Description, t.Status, t.Resolution, t.Milestone, t.Owner, t.Reporter, t.Keywords).Scan(&id)
	if err != nil {
		return 0, apperr.Dependency("insert ticket", err)
	}
	return id, nil
}

// InsertTicketCustomFields writes the sparse ticket_custom rows for a
// ticket, one row per non-empty field.
func (s *Store) InsertTicketCustomFields(ctx context.Context, tx pgx.Tx, ticketID int64, fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			continue
		}
		if _, err := s.q(tx).Exec(ctx, `
			INSERT INTO ticket_custom (ticket_id, name, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (ticket_id, name) DO UPDATE SET value = EXCLUDED.value
		`, ticketID, name, value); err != nil {
			return apperr.Dependency("insert ticket custom field", err)
		}
	}
	return nil
}

// InsertConceptRecordsBatch batch-inserts one concept_metadata row per
// chunk in a learning path, each carrying its position in the path.
func (s *Store) InsertConceptRecordsBatch(ctx context.Context, tx pgx.Tx, records []ConceptRecord) ([]string, error) {
	ids := make([]string, len(records))
	batch := &pgx.Batch{}
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		batch.Queue(`
			INSERT INTO learning.concept_metadata (id, learning_path_id, ticket_id, concept_name, chunk_id, sequence_order)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, r.LearningPathID, r.TicketID, r.ConceptName, r.ChunkID, r.SequenceOrder)
	}

	br := s.q(tx).(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	}).SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return nil, apperr.Dependency("insert concept record", err)
		}
	}
	return ids, nil
}

// ResolveConceptIDsByName returns the concept_metadata id for each distinct
// concept name within a learning path, preferring the earliest
// sequence_order on a collision so callers get a deterministic match when a
// path repeats a concept name.
func (s *Store) ResolveConceptIDsByName(ctx context.Context, tx pgx.Tx, learningPathID string) (map[string]string, error) {
	rows, err := s.q(tx).Query(ctx, `
		SELECT DISTINCT ON (concept_name) concept_name, id
		FROM learning.concept_metadata
		WHERE learning_path_id = $1
		ORDER BY concept_name, sequence_order ASC
	`, learningPathID)
	if err != nil {
		return nil, apperr.Dependency("resolve concept ids", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, apperr.Dependency("scan concept id", err)
		}
		out[name] = id
	}
	return out, rows.Err()
}

// InsertPrerequisite inserts a prerequisite edge between two concept
// records within the same learning path.
func (s *Store) InsertPrerequisite(ctx context.Context, tx pgx.Tx, p Prerequisite) error {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	reqType := p.RequirementType
	if reqType == "" {
		reqType = "mandatory"
	}
	_, err := s.q(tx).Exec(ctx, `
		INSERT INTO learning.prerequisites (id, from_concept_id, to_concept_id, requirement_type)
		VALUES ($1, $2, $3, $4)
	`, id, p.FromConceptID, p.ToConceptID, reqType)
	if err != nil {
		return apperr.Dependency("insert prerequisite", err)
	}
	return nil
}

// QuestionData is the ticket_custom pivot AnswerEvaluator needs to grade a
// student's answer.
type QuestionData struct {
	Question       string
	ExpectedAnswer string
	Context        string
	Difficulty     string
	ConceptID      string
}

// GetQuestionData loads the question/expected-answer/context/difficulty
// custom fields for a ticket, plus the concept_metadata id its question
// belongs to. Returns apperr NotFound if the ticket has no question field.
func (s *Store) GetQuestionData(ctx context.Context, ticketID int64) (QuestionData, error) {
	var data QuestionData
	var conceptID *string
	err := s.pool.QueryRow(ctx, `
		SELECT
			MAX(CASE WHEN tc.name = 'question' THEN tc.value END) AS question,
			MAX(CASE WHEN tc.name = 'expected_answer' THEN tc.value END) AS expected_answer,
			MAX(CASE WHEN tc.name = 'question_context' THEN tc.value END) AS context,
			MAX(CASE WHEN tc.name = 'question_difficulty' THEN tc.value END) AS difficulty,
			cm.id AS concept_id
		FROM ticket_custom tc
		LEFT JOIN learning.concept_metadata cm ON cm.ticket_id = tc.ticket_id
		WHERE tc.ticket_id = $1
		GROUP BY cm.id
	`, ticketID).Scan(&data.Question, &data.ExpectedAnswer, &data.Context, &data.Difficulty, &conceptID)
	if err != nil {
		return QuestionData{}, apperr.NotFound(fmt.Sprintf("question not found for ticket %d", ticketID))
	}
	if data.Question == "" {
		return QuestionData{}, apperr.NotFound(fmt.Sprintf("question not found for ticket %d", ticketID))
	}
	if conceptID != nil {
		data.ConceptID = *conceptID
	}
	return data, nil
}

// UpsertProgress accumulates time spent and attempt count for a
// (student, concept) pair, setting completed_at only on the first
// transition into a completed/mastered status.
func (s *Store) UpsertProgress(ctx context.Context, studentID, conceptID, status string, timeSpentMinutes int, notes string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learning.progress (student_id, concept_id, status, time_spent_minutes, attempt_count, completed_at, notes, updated_at)
		VALUES ($1, $2, $3, $4, 1,
			CASE WHEN $3 IN ('completed', 'mastered') THEN NOW() ELSE NULL END,
			$5, NOW())
		ON CONFLICT (student_id, concept_id) DO UPDATE SET
			status = EXCLUDED.status,
			time_spent_minutes = learning.progress.time_spent_minutes + EXCLUDED.time_spent_minutes,
			attempt_count = learning.progress.attempt_count + 1,
			completed_at = CASE
				WHEN learning.progress.completed_at IS NOT NULL THEN learning.progress.completed_at
				WHEN EXCLUDED.status IN ('completed', 'mastered') THEN NOW()
				ELSE NULL
			END,
			notes = EXCLUDED.notes,
			updated_at = NOW()
	`, studentID, conceptID, status, timeSpentMinutes, notes)
	if err != nil {
		return apperr.Dependency("upsert progress", err)
	}
	return nil
}

// UpdateTicketStatus transitions a ticket's status/resolution and appends
// matching ticket_change audit rows.
func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID int64, status, resolution, author string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ticket SET status = $2, resolution = $3, changetime = NOW() WHERE id = $1
	`, ticketID, status, resolution)
	if err != nil {
		return apperr.Dependency("update ticket status", err)
	}
	for _, change := range [][2]string{{"status", status}, {"resolution", resolution}} {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO ticket_change (ticket_id, time, author, field, oldvalue, newvalue)
			VALUES ($1, NOW(), $2, $3, '', $4)
		`, ticketID, author, change[0], change[1])
		if err != nil {
			return apperr.Dependency("insert ticket change", err)
		}
	}
	return nil
}

// UpsertChunkEmbedding mirrors a chunk's content and embedding into the
// chunk_embeddings table, where GetChunksByID looks chunks up by id.
func (s *Store) UpsertChunkEmbedding(ctx context.Context, chunkID, bookID, content string, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, book_id, content, embedding, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (chunk_id) DO UPDATE SET
			content = EXCLUDED.content, embedding = EXCLUDED.embedding, updated_at = NOW()
	`, chunkID, bookID, content, pgvector.NewVector(embedding))
	if err != nil {
		return apperr.Dependency("upsert chunk embedding", err)
	}
	return nil
}

// ChunkContent is one chunk's text, looked up by id from the
// chunk_embeddings mirror for the POST /llm/generate-from-chunks endpoint.
type ChunkContent struct {
	ChunkID string
	BookID  string
	Content string
}

// GetChunksByID loads the text of the given chunk ids, in no particular
// order; ids with no matching row are simply omitted from the result.
func (s *Store) GetChunksByID(ctx context.Context, chunkIDs []string) ([]ChunkContent, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, book_id, content FROM chunk_embeddings WHERE chunk_id = ANY($1)
	`, chunkIDs)
	if err != nil {
		return nil, apperr.Dependency("query chunks by id", err)
	}
	defer rows.Close()

	var out []ChunkContent
	for rows.Next() {
		var c ChunkContent
		if err := rows.Scan(&c.ChunkID, &c.BookID, &c.Content); err != nil {
			return nil, apperr.Dependency("scan chunk content", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetTicketMilestone returns a ticket's milestone, used to invalidate the
// per-milestone learning-graph caches after an evaluation.
func (s *Store) GetTicketMilestone(ctx context.Context, ticketID int64) (string, error) {
	var milestone *string
	err := s.pool.QueryRow(ctx, `SELECT milestone FROM ticket WHERE id = $1`, ticketID).Scan(&milestone)
	if err != nil {
		return "", apperr.Dependency("look up ticket milestone", err)
	}
	if milestone == nil {
		return "", nil
	}
	return *milestone, nil
}

// EvaluationRecord is one past evaluation, joined from progress + notes.
type EvaluationRecord struct {
	ConceptID   string
	Status      string
	LastAnswer  string
	LastFeedback string
	EvaluatedAt time.Time
}

// GetLearningPathTickets returns the tickets belonging to a learning path
// in sequence order, for the GET /tickets/learning-paths/{id}/tickets
// endpoint.
func (s *Store) GetLearningPathTickets(ctx context.Context, learningPathID string) ([]Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.type, t.summary, t.description, t.status, t.resolution, t.milestone, t.owner, t.reporter, t.keywords, t.time, t.changetime
		FROM ticket t
		JOIN learning.concept_metadata cm ON cm.ticket_id = t.id
		WHERE cm.learning_path_id = $1
		ORDER BY cm.sequence_order ASC
	`, learningPathID)
	if err != nil {
		return nil, apperr.Dependency("query learning path tickets", err)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Type, &t.Summary, &t.Description, &t.Status, &t.Resolution, &t.Milestone, &t.Owner, &t.Reporter, &t.Keywords, &t.Time, &t.ChangeTime); err != nil {
			return nil, apperr.Dependency("scan ticket", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// GetEvaluationHistory returns the progress row for the concept a ticket's
// question belongs to, including the last-answer/last-feedback JSON blob
// stashed in notes by the evaluator.
func (s *Store) GetEvaluationHistory(ctx context.Context, ticketID int64) (*EvaluationRecord, error) {
	var rec EvaluationRecord
	err := s.pool.QueryRow(ctx, `
		SELECT p.concept_id, p.status, p.notes, p.updated_at
		FROM learning.progress p
		JOIN learning.concept_metadata cm ON cm.id = p.concept_id
		WHERE cm.ticket_id = $1
	`, ticketID).Scan(&rec.ConceptID, &rec.Status, &rec.LastFeedback, &rec.EvaluatedAt)
	if err != nil {
		return nil, apperr.NotFound(fmt.Sprintf("no evaluation history for ticket %d", ticketID))
	}
	return &rec, nil
}
