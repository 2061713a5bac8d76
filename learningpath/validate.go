package learningpath

import (
	"fmt"
	"strings"

	"github.com/learntrac/backend/apperr"
)

// validate checks CreatePath's input against spec.md §4.10's rules: a
// non-empty user id, a query between 1 and 1000 characters, at least one
// chunk, and every chunk carrying an id/content/concept/subject and a
// non-negative score.
func validate(userID, query string, chunks []ChunkInput) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user_id", "user_id must be a non-empty string")
	}
	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return apperr.Validation("query", "query must be a non-empty string")
	}
	if len(query) > 1000 {
		return apperr.Validation("query", "query must be at most 1000 characters")
	}
	if len(chunks) == 0 {
		return apperr.Validation("chunks", "at least one chunk is required")
	}
	for i, c := range chunks {
		if strings.TrimSpace(c.ID) == "" {
			return apperr.Validation("chunks", fmt.Sprintf("chunk at index %d is missing an id", i))
		}
		if strings.TrimSpace(c.Content) == "" {
			return apperr.Validation("chunks", "chunk "+c.ID+" is missing content")
		}
		if strings.TrimSpace(c.Concept) == "" {
			return apperr.Validation("chunks", "chunk "+c.ID+" is missing a concept")
		}
		if strings.TrimSpace(c.Subject) == "" {
			return apperr.Validation("chunks", "chunk "+c.ID+" is missing a subject")
		}
		if c.Score < 0 {
			return apperr.Validation("chunks", "chunk "+c.ID+" has a negative score")
		}
	}
	return nil
}
