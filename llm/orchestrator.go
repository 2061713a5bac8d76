package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/learntrac/backend/apperr"
	"github.com/learntrac/backend/cache"
	"github.com/learntrac/backend/config"
)

// QuestionRequest is the input to GenerateQuestion: one chunk of source
// material plus the concept/difficulty/style of question to ask about it.
type QuestionRequest struct {
	ChunkContent string
	Concept      string
	Subject      string
	Difficulty   int
	Context      string
	QuestionType string
}

// QuestionResult is a generated question with its model answer.
type QuestionResult struct {
	Question       string
	ExpectedAnswer string
	FromFallback   bool
}

// EvaluationRequest is the input to EvaluateAnswer.
type EvaluationRequest struct {
	Question       string
	ExpectedAnswer string
	StudentAnswer  string
	Context        string
}

// EvaluationResult is a graded answer.
type EvaluationResult struct {
	Score        float64
	Feedback     string
	Suggestions  []string
	FromFallback bool
}

// Orchestrator wraps a Client transport with the reliability contract
// spec.md §4.9 requires: a response cache, retry with exponential backoff,
// a circuit breaker, deterministic prompt templates, structured response
// parsing with a heuristic fallback, and a quality gate. Ported from
// llm_service.py's LLMService.
type Orchestrator struct {
	client  Client
	cache   *cache.Cache
	breaker *CircuitBreaker
	cfg     config.LearningConfig
}

// NewOrchestrator constructs an Orchestrator with its own CircuitBreaker,
// sized from cfg. The breaker is owned by this Orchestrator instance
// rather than a package-level global, so tests and multiple orchestrators
// never share state.
func NewOrchestrator(client Client, ch *cache.Cache, cfg config.LearningConfig) *Orchestrator {
	return &Orchestrator{
		client:  client,
		cache:   ch,
		breaker: NewCircuitBreaker(cfg.CircuitFailureMax, cfg.CircuitOpenTimeout),
		cfg:     cfg,
	}
}

// CircuitState reports the orchestrator's breaker state, for the /health
// component-health aggregator.
func (o *Orchestrator) CircuitState() CircuitState {
	return o.breaker.State()
}

// retryableHTTPError wraps a transport error whose status is worth retrying
// (429 or 5xx). callLLM does not produce it; it classifies errors with
// isRetryable instead.
type retryableHTTPError struct{ err error }

func (e *retryableHTTPError) Error() string { return e.err.Error() }
func (e *retryableHTTPError) Unwrap() error { return e.err }

// callLLM runs prompt through the circuit breaker and retry/backoff
// policy, returning the raw model text.
func (o *Orchestrator) callLLM(ctx context.Context, prompt string) (string, error) {
	if !o.breaker.CanExecute() {
		return "", apperr.Dependency("llm circuit breaker open", nil)
	}

	messages := []Message{{Role: RoleUser, Content: prompt}}

	var lastErr error
	attempts := o.cfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		text, err := o.client.Generate(ctx, messages)
		if err == nil {
			o.breaker.RecordSuccess()
			return text, nil
		}
		lastErr = err

		if !isRetryable(err) {
			o.breaker.RecordFailure()
			return "", apperr.Dependency("llm request failed", err)
		}

		if attempt == attempts-1 {
			break
		}
		delay := backoffDelay(o.cfg, attempt)
		log.Printf("llm request failed (attempt %d/%d), retrying in %s: %v", attempt+1, attempts, delay, err)
		select {
		case <-ctx.Done():
			o.breaker.RecordFailure()
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	o.breaker.RecordFailure()
	return "", apperr.Dependency("llm request failed after retries", lastErr)
}

// isRetryable classifies a transport error as retryable (connection
// failure, timeout, 5xx, 429) or not (other 4xx), mirroring
// llm_service.py's retry_config: retry on transport/5xx/429, not on other
// 4xx.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	// The Ollama client and network-level failures don't carry a
	// structured status; treat them as transient and retry.
	return true
}

// backoffDelay computes base * expBase^attempt, clamped to maxDelay.
func backoffDelay(cfg config.LearningConfig, attempt int) time.Duration {
	delay := float64(cfg.RetryBaseDelay) * math.Pow(cfg.RetryExpBase, float64(attempt))
	max := float64(cfg.RetryMaxDelay)
	if max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// questionCacheKey hashes the prompt's shape and inputs, matching
// llm_service.py's _generate_cache_key.
func questionCacheKey(req QuestionRequest) string {
	raw := fmt.Sprintf("%s:%s:%d:%s:%s", req.ChunkContent, req.Concept, req.Difficulty, req.Context, req.QuestionType)
	sum := md5.Sum([]byte(raw))
	return cache.QuestionCacheKey(hex.EncodeToString(sum[:]))
}

// GenerateQuestion produces a study question for one chunk, checking the
// response cache first and falling back to a canned question/answer if the
// LLM call or quality gate fails.
func (o *Orchestrator) GenerateQuestion(ctx context.Context, req QuestionRequest) (QuestionResult, error) {
	key := questionCacheKey(req)
	if o.cache != nil {
		var cached QuestionResult
		if hit, err := o.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	raw, err := o.callLLM(ctx, questionPrompt(req))
	if err != nil {
		return fallbackQuestion(req), nil
	}

	question, answer := parseQuestionResponse(raw)
	if !validateQuestionQuality(question, answer, req.Concept) {
		return fallbackQuestion(req), nil
	}

	result := QuestionResult{Question: question, ExpectedAnswer: answer}
	if o.cache != nil {
		ttl := o.cfg.QuestionCacheTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		if err := o.cache.Set(ctx, key, result, ttl); err != nil {
			log.Printf("cache question result: %v", err)
		}
	}
	return result, nil
}

func fallbackQuestion(req QuestionRequest) QuestionResult {
	concept := req.Concept
	if concept == "" {
		concept = "this material"
	}
	return QuestionResult{
		Question:       fmt.Sprintf("In your own words, explain the key idea behind %s and why it matters.", concept),
		ExpectedAnswer: fmt.Sprintf("A complete answer describes %s, how it relates to the surrounding material, and gives an example drawn from the source text.", concept),
		FromFallback:   true,
	}
}

// GenerateQuestions generates one question per request in parallel,
// preserving input order in the returned slice (gather-best semantics: a
// single request's failure degrades to its fallback rather than failing
// the whole batch).
func (o *Orchestrator) GenerateQuestions(ctx context.Context, reqs []QuestionRequest) ([]QuestionResult, error) {
	results := make([]QuestionResult, len(reqs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		group.Go(func() error {
			result, err := o.GenerateQuestion(groupCtx, req)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExpandQuery asks the LLM for n alternative phrasings of text to widen
// retrieval recall, falling back to just the original text if the call
// fails.
func (o *Orchestrator) ExpandQuery(ctx context.Context, text string, n int) ([]string, error) {
	if n <= 0 {
		n = 5
	}
	raw, err := o.callLLM(ctx, expandQueryPrompt(text, n))
	if err != nil {
		return []string{text}, nil
	}

	var variants []string
	for _, line := range strings.Split(raw, "\n") {
		line = cleanText(line)
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) >= n {
			break
		}
	}
	if len(variants) == 0 {
		return []string{text}, nil
	}
	return variants, nil
}

// EvaluateAnswer grades a student's answer against the expected answer,
// falling back to word-overlap scoring if the LLM call or response
// validation fails.
func (o *Orchestrator) EvaluateAnswer(ctx context.Context, req EvaluationRequest) (EvaluationResult, error) {
	raw, err := o.callLLM(ctx, evaluationPrompt(req))
	if err != nil {
		return fallbackEvaluation(req), nil
	}

	score, feedback, suggestions := parseEvaluationResponse(raw)
	if !validateEvaluation(score, feedback, suggestions) {
		return fallbackEvaluation(req), nil
	}
	return EvaluationResult{Score: score, Feedback: feedback, Suggestions: suggestions}, nil
}

// fallbackEvaluation scores a student's answer by word overlap with the
// expected answer when the LLM is unavailable or its response is
// malformed. Ported from evaluation_service.py's _fallback_evaluation.
func fallbackEvaluation(req EvaluationRequest) EvaluationResult {
	expectedWords := wordSet(req.ExpectedAnswer)
	studentWords := wordSet(req.StudentAnswer)

	overlap := 0
	for w := range studentWords {
		if expectedWords[w] {
			overlap++
		}
	}

	var score float64
	if len(expectedWords) > 0 {
		score = math.Min(0.9, float64(overlap)/float64(len(expectedWords)))
	}
	if len(req.StudentAnswer) < 50 {
		score *= 0.8
	}

	var feedback string
	var suggestions []string
	switch {
	case score >= 0.8:
		feedback = "Good answer — it covers most of the key points."
	case score >= 0.5:
		feedback = "Partially correct, but missing some important details."
		suggestions = []string{"Review the source material for missing points", "Be more specific in your explanation"}
	default:
		feedback = "The answer doesn't cover the expected concept well."
		suggestions = []string{"Re-read the relevant section and try again", "Focus on the core definition before giving examples"}
	}

	return EvaluationResult{Score: score, Feedback: feedback, Suggestions: suggestions, FromFallback: true}
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// AnalyzeContent asks the LLM for a short structural summary of a content
// snippet, returning raw key/value lines. The ingestion pipeline does not
// call it.
func (o *Orchestrator) AnalyzeContent(ctx context.Context, text string) (map[string]string, error) {
	prompt := "Summarize the following content in one sentence and list its primary topic as TOPIC: <topic>.\n\n" + text
	raw, err := o.callLLM(ctx, prompt)
	if err != nil {
		return nil, err
	}
	out := map[string]string{"summary": cleanText(raw)}
	if idx := strings.Index(strings.ToUpper(raw), "TOPIC:"); idx >= 0 {
		out["topic"] = cleanText(raw[idx+len("TOPIC:"):])
	}
	return out, nil
}
