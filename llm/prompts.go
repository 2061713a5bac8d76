package llm

import "fmt"

var difficultyDescriptions = map[int]string{
	1: "very basic, testing simple recall of a definition or fact",
	2: "basic, testing understanding of a single concept",
	3: "moderate, testing application of a concept to a simple scenario",
	4: "challenging, testing analysis or synthesis across related concepts",
	5: "advanced, testing deep understanding and the ability to critique or extend the concept",
}

var questionTemplates = map[string]string{
	"conceptual":   "Ask the student to explain the concept in their own words.",
	"application":  "Ask the student to apply the concept to a new, concrete scenario.",
	"analytical":   "Ask the student to compare, contrast or analyze the concept against a related idea.",
	"recall":       "Ask the student to state a definition, fact, or formula directly.",
}

func difficultyDescription(level int) string {
	if d, ok := difficultyDescriptions[level]; ok {
		return d
	}
	return difficultyDescriptions[3]
}

func questionTemplate(questionType string) string {
	if t, ok := questionTemplates[questionType]; ok {
		return t
	}
	return questionTemplates["conceptual"]
}

// questionPrompt builds the structured prompt generate_question sends the
// LLM, demanding a QUESTION:/EXPECTED_ANSWER: response shape so parseQuestionResponse
// can extract it deterministically.
func questionPrompt(req QuestionRequest) string {
	questionType := req.QuestionType
	if questionType == "" {
		questionType = "conceptual"
	}
	return fmt.Sprintf(`You are writing a study question for a student learning from a textbook.

Concept: %s
Difficulty: %d/5 (%s)
Question style: %s

Source material:
%s

%s

Respond in exactly this format:
QUESTION: <the question text>
EXPECTED_ANSWER: <a model answer a student should give>`,
		req.Concept, req.Difficulty, difficultyDescription(req.Difficulty), questionType, req.ChunkContent, questionTemplate(questionType))
}

// evaluationPrompt builds the structured prompt evaluate_answer sends the
// LLM, demanding a SCORE:/FEEDBACK:/SUGGESTIONS: response shape.
func evaluationPrompt(req EvaluationRequest) string {
	return fmt.Sprintf(`You are grading a student's answer to a study question.

Question: %s
Expected answer: %s
Student's answer: %s

Score the student's answer from 0.0 (completely wrong) to 1.0 (fully correct and complete).
Give constructive feedback, and if the score is below 0.8 suggest concrete improvements.

Respond in exactly this format:
SCORE: <a number between 0.0 and 1.0>
FEEDBACK: <your feedback, at least a sentence>
SUGGESTIONS: <comma separated list of improvements, or "none">`,
		req.Question, req.ExpectedAnswer, req.StudentAnswer)
}

// expandQueryPrompt builds the prompt expand_query sends the LLM to
// generate alternative phrasings of a user's query for retrieval recall.
func expandQueryPrompt(text string, n int) string {
	return fmt.Sprintf(`Given the following search query, produce %d alternative phrasings that
would help retrieve the same information from a textbook, one per line, with
no numbering or extra commentary.

Query: %s`, n, text)
}
