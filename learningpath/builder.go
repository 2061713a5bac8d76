package learningpath

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/learntrac/backend/apperr"
	"github.com/learntrac/backend/llm"
	"github.com/learntrac/backend/relational"
)

// Builder turns a set of retrieved chunks into a learning path: one ticket
// per chunk carrying a generated study question, plus the concept
// prerequisite graph between them. Ported from ticket_service.py's
// TicketCreationService.create_learning_path.
type Builder struct {
	store        *relational.Store
	orchestrator *llm.Orchestrator
}

func NewBuilder(store *relational.Store, orchestrator *llm.Orchestrator) *Builder {
	return &Builder{store: store, orchestrator: orchestrator}
}

type ticketPlan struct {
	chunk    ChunkInput
	question llm.QuestionResult
	ticketID int64
}

// CreatePath validates the input, then in a single transaction: inserts
// the learning_paths row, generates one question per chunk in parallel and
// creates its ticket, batch-inserts concept records in chunk order, and
// resolves has_prerequisite concept names into prerequisite rows
// (prerequisite_for is not read). The whole transaction rolls back if any step fails.
func (b *Builder) CreatePath(ctx context.Context, userID, query string, chunks []ChunkInput, title, difficulty string) (Result, error) {
	if err := validate(userID, query, chunks); err != nil {
		return Result{}, err
	}

	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return Result{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	pathID, err := b.store.InsertLearningPath(ctx, tx, relational.LearningPath{
		UserID:     userID,
		Query:      query,
		Title:      title,
		Difficulty: difficulty,
	})
	if err != nil {
		return Result{}, err
	}

	plans, err := b.generateQuestions(ctx, chunks)
	if err != nil {
		return Result{}, err
	}

	for i := range plans {
		ticketID, err := b.createTicketWithQuestion(ctx, tx, userID, difficulty, plans[i].chunk, plans[i].question)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindInternal, fmt.Sprintf("create ticket for chunk %s", plans[i].chunk.ID), err)
		}
		plans[i].ticketID = ticketID
	}

	records := make([]relational.ConceptRecord, len(plans))
	for i, p := range plans {
		records[i] = relational.ConceptRecord{
			LearningPathID: pathID,
			TicketID:       p.ticketID,
			ConceptName:    p.chunk.Concept,
			ChunkID:        p.chunk.ID,
			SequenceOrder:  i + 1,
		}
	}
	if _, err := b.store.InsertConceptRecordsBatch(ctx, tx, records); err != nil {
		return Result{}, err
	}

	conceptIDs, err := b.store.ResolveConceptIDsByName(ctx, tx, pathID)
	if err != nil {
		return Result{}, err
	}
	b.createPrerequisites(ctx, tx, chunks, conceptIDs)

	if err := tx.Commit(ctx); err != nil {
		return Result{}, apperr.Dependency("commit learning path transaction", err)
	}
	committed = true

	ticketIDs := make([]int64, len(plans))
	for i, p := range plans {
		ticketIDs[i] = p.ticketID
	}
	return Result{LearningPathID: pathID, TicketIDs: ticketIDs}, nil
}

// generateQuestions fans out one GenerateQuestion call per chunk,
// preserving chunk order in the returned plans.
func (b *Builder) generateQuestions(ctx context.Context, chunks []ChunkInput) ([]ticketPlan, error) {
	plans := make([]ticketPlan, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		plans[i].chunk = chunk
		group.Go(func() error {
			result, err := b.orchestrator.GenerateQuestion(groupCtx, llm.QuestionRequest{
				ChunkContent: chunk.Content,
				Concept:      chunk.Concept,
				Subject:      chunk.Subject,
				Difficulty:   3,
			})
			if err != nil {
				return err
			}
			plans[i].question = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// createTicketWithQuestion inserts the ticket core row and its custom
// fields (question, expected answer, relevance score, chunk linkage, and
// any scalar metadata passed through as metadata_<key>).
func (b *Builder) createTicketWithQuestion(ctx context.Context, tx pgx.Tx, userID, difficulty string, chunk ChunkInput, question llm.QuestionResult) (int64, error) {
	ticketID, err := b.store.InsertTicket(ctx, tx, relational.Ticket{
		Type:     "learning_concept",
		Summary:  fmt.Sprintf("Learn: %s", chunk.Concept),
		Status:   "new",
		Owner:    userID,
		Reporter: "learning-system",
	})
	if err != nil {
		return 0, err
	}

	fields := map[string]string{
		"question":             question.Question,
		"expected_answer":      question.ExpectedAnswer,
		"question_difficulty":  difficulty,
		"question_context":     chunk.Subject,
		"chunk_id":             chunk.ID,
		"cognito_user_id":      userID,
		"relevance_score":      strconv.FormatFloat(chunk.Score, 'f', -1, 64),
		"learning_type":        "concept",
		"auto_generated":       "true",
	}
	for key, value := range chunk.Metadata {
		if s, ok := scalarString(value); ok {
			fields["metadata_"+key] = s
		}
	}

	if err := b.store.InsertTicketCustomFields(ctx, tx, ticketID, fields); err != nil {
		return 0, err
	}
	return ticketID, nil
}

// createPrerequisites resolves each chunk's has_prerequisite concept names
// against the path's name->concept_id map and inserts the corresponding
// edges; unresolvable names are logged and skipped rather than failing the
// transaction.
func (b *Builder) createPrerequisites(ctx context.Context, tx pgx.Tx, chunks []ChunkInput, conceptIDs map[string]string) {
	for _, chunk := range chunks {
		toID, ok := conceptIDs[chunk.Concept]
		if !ok {
			continue
		}
		for _, prereqName := range chunk.HasPrerequisite {
			fromID, ok := conceptIDs[prereqName]
			if !ok {
				log.Printf("learning path: could not resolve prerequisite concept %q for %q", prereqName, chunk.Concept)
				continue
			}
			if err := b.store.InsertPrerequisite(ctx, tx, relational.Prerequisite{
				FromConceptID: fromID,
				ToConceptID:   toID,
			}); err != nil {
				log.Printf("learning path: insert prerequisite %q -> %q: %v", prereqName, chunk.Concept, err)
			}
		}
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", t), true
	default:
		return "", false
	}
}
