package cache

import "fmt"

// Key conventions ported from evaluation_service.py / llm_service.py, kept
// identical so a deployment migrating from the Python service can share a
// Redis instance during cutover.

func EvaluationKey(userID string, ticketID int64) string {
	return fmt.Sprintf("evaluation:%s:%d", userID, ticketID)
}

func LearningGraphKey(milestone, userID string) string {
	return fmt.Sprintf("learning_graph:%s:%s", milestone, userID)
}

func MilestoneGraphKey(milestone string) string {
	return fmt.Sprintf("milestone_graph:%s", milestone)
}

func UserProgressKey(userID string) string {
	return fmt.Sprintf("user_progress:%s", userID)
}

func LearntracProgressKey(ticketID int64, userID string) string {
	return fmt.Sprintf("learntrac_progress:%d_%s", ticketID, userID)
}

// QuestionCacheKey is the LLM question-generation cache key: a hash of the
// prompt shape plus its inputs, computed by the caller (llm.Orchestrator)
// so this package stays format-agnostic.
func QuestionCacheKey(hash string) string {
	return fmt.Sprintf("question:%s", hash)
}
