package evaluation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/learntrac/backend/apperr"
	"github.com/learntrac/backend/cache"
	"github.com/learntrac/backend/config"
	"github.com/learntrac/backend/llm"
	"github.com/learntrac/backend/relational"
)

// Evaluator grades student answers and drives the progress/ticket/cache
// side effects of a successful grade.
type Evaluator struct {
	store        *relational.Store
	orchestrator *llm.Orchestrator
	cache        *cache.Cache
	cfg          config.LearningConfig
}

func NewEvaluator(store *relational.Store, orchestrator *llm.Orchestrator, ch *cache.Cache, cfg config.LearningConfig) *Evaluator {
	return &Evaluator{store: store, orchestrator: orchestrator, cache: ch, cfg: cfg}
}

// Evaluate loads the ticket's question, grades studentAnswer against it,
// then records progress, closes the ticket on mastery, and caches/
// invalidates the result. Only the load and grade steps can fail the
// call; progress/ticket/cache side effects are logged and swallowed so a
// secondary failure never hides a successful evaluation, matching
// evaluate_answer's try/except-per-step shape.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, ticketID int64, studentAnswer string, timeSpentMinutes int) (Result, error) {
	question, err := e.store.GetQuestionData(ctx, ticketID)
	if err != nil {
		return Result{}, err
	}

	grade, err := e.orchestrator.EvaluateAnswer(ctx, llm.EvaluationRequest{
		Question:       question.Question,
		ExpectedAnswer: question.ExpectedAnswer,
		StudentAnswer:  studentAnswer,
		Context:        question.Context,
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "evaluate answer", err)
	}

	status := "completed"
	mastered := grade.Score >= e.cfg.MasteryThreshold
	if mastered {
		status = "mastered"
	}

	if question.ConceptID == "" {
		log.Printf("evaluation: ticket %d has no concept_metadata row, skipping progress update", ticketID)
	} else {
		notes, err := json.Marshal(progressNotes{
			LastAnswer:    studentAnswer,
			LastFeedback:  grade.Feedback,
			LastEvaluated: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			log.Printf("evaluation: encode progress notes for ticket %d: %v", ticketID, err)
		} else if err := e.store.UpsertProgress(ctx, userID, question.ConceptID, status, timeSpentMinutes, string(notes)); err != nil {
			log.Printf("evaluation: update progress for ticket %d: %v", ticketID, err)
		}
	}

	if mastered {
		if err := e.store.UpdateTicketStatus(ctx, ticketID, "closed", "fixed", "learntrac-system"); err != nil {
			log.Printf("evaluation: close ticket %d on mastery: %v", ticketID, err)
		}
	}

	e.cacheResult(ctx, userID, ticketID, grade)
	e.invalidateCaches(ctx, userID, ticketID)

	return Result{
		Score:           grade.Score,
		Feedback:        grade.Feedback,
		Suggestions:     grade.Suggestions,
		Status:          status,
		MasteryAchieved: mastered,
	}, nil
}

func (e *Evaluator) cacheResult(ctx context.Context, userID string, ticketID int64, grade llm.EvaluationResult) {
	if e.cache == nil {
		return
	}
	data := cachedEvaluation{
		Score:       grade.Score,
		Feedback:    grade.Feedback,
		Suggestions: grade.Suggestions,
		EvaluatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.cache.Set(ctx, cache.EvaluationKey(userID, ticketID), data, time.Hour); err != nil {
		log.Printf("evaluation: cache result for ticket %d: %v", ticketID, err)
	}
}

// invalidateCaches drops the learning-graph, milestone-graph, user-progress
// and trac-plugin progress caches an evaluation's status change can make
// stale. The milestone lookup and every delete are best-effort.
func (e *Evaluator) invalidateCaches(ctx context.Context, userID string, ticketID int64) {
	if e.cache == nil {
		return
	}
	keys := []string{
		cache.UserProgressKey(userID),
		cache.LearntracProgressKey(ticketID, userID),
	}
	if milestone, err := e.store.GetTicketMilestone(ctx, ticketID); err != nil {
		log.Printf("evaluation: look up milestone for ticket %d: %v", ticketID, err)
	} else if milestone != "" {
		keys = append(keys, cache.LearningGraphKey(milestone, userID), cache.MilestoneGraphKey(milestone))
	}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		log.Printf("evaluation: invalidate caches for ticket %d: %v", ticketID, err)
	}
}

// History returns the recorded progress/notes for a ticket's concept, or
// (nil, nil) if the student has no recorded progress yet.
func (e *Evaluator) History(ctx context.Context, ticketID int64) (*History, error) {
	rec, err := e.store.GetEvaluationHistory(ctx, ticketID)
	if err != nil {
		if apperr.HTTPStatus(err) == 404 {
			return nil, nil
		}
		return nil, err
	}

	h := &History{Status: rec.Status}
	var notes progressNotes
	if rec.LastFeedback != "" {
		if err := json.Unmarshal([]byte(rec.LastFeedback), &notes); err == nil {
			h.LastAnswer = notes.LastAnswer
			h.LastFeedback = notes.LastFeedback
			h.LastEvaluatedAt = notes.LastEvaluated
		}
	}
	return h, nil
}
