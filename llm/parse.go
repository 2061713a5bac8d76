package llm

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	questionRE       = regexp.MustCompile(`(?is)QUESTION:\s*(.+?)(?:EXPECTED_ANSWER:|$)`)
	expectedAnswerRE = regexp.MustCompile(`(?is)EXPECTED_ANSWER:\s*(.+?)$`)
	scoreRE          = regexp.MustCompile(`(?i)SCORE:\s*([\d.]+)`)
	feedbackRE       = regexp.MustCompile(`(?is)FEEDBACK:\s*(.+?)(?:SUGGESTIONS:|$)`)
	suggestionsRE    = regexp.MustCompile(`(?is)SUGGESTIONS:\s*(.+?)$`)
	suggestionSplitRE = regexp.MustCompile(`[,;]|\d+\.\s*|\n-\s*`)
	placeholderTokens = []string{"...", "todo", "["}
)

func cleanText(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\n\r\t "))
}

// parseQuestionResponse extracts QUESTION:/EXPECTED_ANSWER: fields from a
// raw LLM response, falling back to a line-based heuristic (first line
// ending in "?" is the question, the longest remaining line is the
// answer) when the model didn't follow the requested format.
func parseQuestionResponse(raw string) (question, answer string) {
	if m := questionRE.FindStringSubmatch(raw); len(m) == 2 {
		question = cleanText(m[1])
	}
	if m := expectedAnswerRE.FindStringSubmatch(raw); len(m) == 2 {
		answer = cleanText(m[1])
	}
	if question != "" && answer != "" {
		return question, answer
	}

	lines := strings.Split(raw, "\n")
	var longest string
	for _, line := range lines {
		line = cleanText(line)
		if line == "" {
			continue
		}
		if question == "" && strings.HasSuffix(line, "?") {
			question = line
			continue
		}
		if len(line) > len(longest) {
			longest = line
		}
	}
	if answer == "" {
		answer = longest
	}
	return question, answer
}

// validateQuestionQuality applies the spec's quality gate: length bounds,
// the question must end with "?", no placeholder tokens, and the
// question+answer text must reference at least 30% of the concept's words.
func validateQuestionQuality(question, answer, concept string) bool {
	if len(question) < 100 || len(question) > 500 {
		return false
	}
	if len(answer) < 200 || len(answer) > 1000 {
		return false
	}
	if !strings.HasSuffix(strings.TrimSpace(question), "?") {
		return false
	}
	lower := strings.ToLower(question + " " + answer)
	for _, token := range placeholderTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	return conceptRelevance(question+" "+answer, concept) >= 0.3
}

func conceptRelevance(text, concept string) float64 {
	conceptWords := strings.Fields(strings.ToLower(concept))
	if len(conceptWords) == 0 {
		return 1
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range conceptWords {
		if w == "" {
			continue
		}
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(conceptWords))
}

// parseEvaluationResponse extracts SCORE:/FEEDBACK:/SUGGESTIONS: fields
// from a raw LLM response. The score is clamped to [0,1]; suggestions are
// split on commas/semicolons/numbered-list markers, filtered to entries
// longer than 10 characters, and capped at 3.
func parseEvaluationResponse(raw string) (score float64, feedback string, suggestions []string) {
	if m := scoreRE.FindStringSubmatch(raw); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			score = v
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	if m := feedbackRE.FindStringSubmatch(raw); len(m) == 2 {
		feedback = cleanText(m[1])
	}

	if m := suggestionsRE.FindStringSubmatch(raw); len(m) == 2 {
		for _, part := range suggestionSplitRE.Split(m[1], -1) {
			part = cleanText(part)
			if len(part) > 10 {
				suggestions = append(suggestions, part)
			}
			if len(suggestions) >= 3 {
				break
			}
		}
	}

	return score, feedback, suggestions
}

func validateEvaluation(score float64, feedback string, suggestions []string) bool {
	if score < 0 || score > 1 {
		return false
	}
	if len(feedback) < 20 {
		return false
	}
	if score < 0.8 && len(suggestions) == 0 {
		return false
	}
	return true
}
