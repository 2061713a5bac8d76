package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/learntrac/backend/apperr"
	"github.com/learntrac/backend/cache"
	"github.com/learntrac/backend/config"
	"github.com/learntrac/backend/database"
	"github.com/learntrac/backend/embeddings"
	"github.com/learntrac/backend/evaluation"
	"github.com/learntrac/backend/graph"
	"github.com/learntrac/backend/learningpath"
	"github.com/learntrac/backend/llm"
	"github.com/learntrac/backend/relational"
)

const defaultSearchLimit = 10

// Server exposes the learning-content HTTP API: vector search, question
// generation, learning-path assembly and answer evaluation.
type Server struct {
	cfg          config.Config
	logger       *log.Logger
	handler      http.Handler
	pgPool       *pgxpool.Pool
	neo4jDriver  neo4j.DriverWithContext
	cache        *cache.Cache
	embedder     embeddings.Embedder
	graphStore   *graph.Store
	relStore     *relational.Store
	orchestrator *llm.Orchestrator
	pathBuilder  *learningpath.Builder
	evaluator    *evaluation.Evaluator
}

// CleanupFunc releases resources New acquired.
type CleanupFunc func()

// New wires the full dependency graph — Postgres pool, Neo4j driver, Redis
// cache, embedder, LLM orchestrator — and the domain services built on top
// of them, then builds the routed handler.
func New(cfg config.Config, logger *log.Logger) (*Server, CleanupFunc, error) {
	if logger == nil {
		logger = log.Default()
	}

	ctx := context.Background()

	pgPool, err := relationalPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	neo4jDriver, err := neo4jDriverFor(ctx, cfg)
	if err != nil {
		pgPool.Close()
		return nil, nil, err
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		neo4jDriver.Close(ctx)
		pgPool.Close()
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		neo4jDriver.Close(ctx)
		pgPool.Close()
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	redisCache := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	relStore := relational.NewStore(pgPool)
	graphStore := graph.NewStore(neo4jDriver, cfg.Embeddings.Dimension)
	orchestrator := llm.NewOrchestrator(llmClient, redisCache, cfg.Learning)

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		pgPool:       pgPool,
		neo4jDriver:  neo4jDriver,
		cache:        redisCache,
		embedder:     embedder,
		graphStore:   graphStore,
		relStore:     relStore,
		orchestrator: orchestrator,
		pathBuilder:  learningpath.NewBuilder(relStore, orchestrator),
		evaluator:    evaluation.NewEvaluator(relStore, orchestrator, redisCache, cfg.Learning),
	}
	s.handler = s.routes()

	cleanup := func() {
		if neo4jDriver != nil {
			neo4jDriver.Close(ctx)
		}
		if pgPool != nil {
			pgPool.Close()
		}
	}

	return s, cleanup, nil
}

func relationalPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := relational.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure relational schema: %w", err)
	}
	return pool, nil
}

func neo4jDriverFor(ctx context.Context, cfg config.Config) (neo4j.DriverWithContext, error) {
	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		return nil, err
	}
	if err := graph.NewStore(driver, cfg.Embeddings.Dimension).EnsureIndexes(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("ensure graph indexes: %w", err)
	}
	return driver, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }
func (s *Server) Handler() http.Handler                            { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/vector/search", s.handleVectorSearch)
	mux.HandleFunc("/vector/search/enhanced", s.handleVectorSearchEnhanced)
	mux.HandleFunc("/vector/search/compare", s.handleVectorSearchCompare)
	mux.HandleFunc("/vector/chunks", s.handleInsertChunk)
	mux.HandleFunc("/vector/prerequisites", s.handleCreatePrerequisite)
	mux.HandleFunc("/vector/chunks/{id}/prerequisites", s.handlePrerequisiteChain)
	mux.HandleFunc("/vector/chunks/{id}/dependents", s.handleDependents)

	mux.HandleFunc("/llm/generate-question", s.handleGenerateQuestion)
	mux.HandleFunc("/llm/generate-multiple-questions", s.handleGenerateQuestions)
	mux.HandleFunc("/llm/generate-from-chunks", s.handleGenerateFromChunks)

	mux.HandleFunc("/tickets/learning-paths", s.handleCreateLearningPath)
	mux.HandleFunc("/tickets/learning-paths/from-vector-search", s.handleCreateLearningPathFromSearch)
	mux.HandleFunc("/tickets/learning-paths/{id}/tickets", s.handleLearningPathTickets)
	mux.HandleFunc("/tickets/tickets/{id}/progress", s.handleUpdateProgress)

	mux.HandleFunc("/evaluation/evaluate", s.handleEvaluate)
	mux.HandleFunc("/evaluation/history/{ticket_id}", s.handleEvaluationHistory)

	return mux
}

// --- /health ---

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	components := map[string]string{}
	healthy := true

	if err := s.pgPool.Ping(ctx); err != nil {
		components["postgres"] = "down: " + err.Error()
		healthy = false
	} else {
		components["postgres"] = "ok"
	}

	if err := s.neo4jDriver.VerifyConnectivity(ctx); err != nil {
		components["neo4j"] = "down: " + err.Error()
		healthy = false
	} else {
		components["neo4j"] = "ok"
	}

	if err := s.cache.Ping(ctx); err != nil {
		components["redis"] = "down: " + err.Error()
		healthy = false
	} else {
		components["redis"] = "ok"
	}

	components["llm_circuit_breaker"] = s.orchestrator.CircuitState().String()

	status := "ok"
	if !healthy {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: status, Components: components})
}

// --- /vector/search family ---

type vectorSearchRequest struct {
	Query                string    `json:"query"`
	Embedding            []float32 `json:"embedding,omitempty"`
	MinScore             float64   `json:"min_score"`
	Limit                int       `json:"limit"`
	IncludePrerequisites bool      `json:"include_prerequisites,omitempty"`
	IncludeDependents    bool      `json:"include_dependents,omitempty"`
}

type chunkMatchPayload struct {
	ChunkID       string   `json:"chunk_id"`
	BookID        string   `json:"book_id"`
	Text          string   `json:"text"`
	Concept       string   `json:"concept"`
	Score         float64  `json:"score"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Dependents    []string `json:"dependents,omitempty"`
}

type vectorSearchResponse struct {
	Results []chunkMatchPayload `json:"results"`
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req vectorSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	matches, err := s.searchOnce(ctx, req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, vectorSearchResponse{Results: s.decorateMatches(ctx, matches, req.IncludePrerequisites, req.IncludeDependents)})
}

func (s *Server) handleVectorSearchEnhanced(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req vectorSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	matches, err := s.searchEnhanced(ctx, req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, vectorSearchResponse{Results: s.decorateMatches(ctx, matches, req.IncludePrerequisites, req.IncludeDependents)})
}

type compareResponse struct {
	Regular  []chunkMatchPayload `json:"regular"`
	Enhanced []chunkMatchPayload `json:"enhanced"`
}

func (s *Server) handleVectorSearchCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req vectorSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	regular, err := s.searchOnce(ctx, req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	enhanced, err := s.searchEnhanced(ctx, req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, compareResponse{
		Regular:  s.decorateMatches(ctx, regular, req.IncludePrerequisites, req.IncludeDependents),
		Enhanced: s.decorateMatches(ctx, enhanced, req.IncludePrerequisites, req.IncludeDependents),
	})
}

// searchOnce embeds req.Query (unless an embedding was supplied) and runs a
// single vector search.
func (s *Server) searchOnce(ctx context.Context, req vectorSearchRequest) ([]graph.ChunkMatch, error) {
	if strings.TrimSpace(req.Query) == "" && len(req.Embedding) == 0 {
		return nil, apperr.Validation("query", "query or embedding is required")
	}
	embedding := req.Embedding
	if len(embedding) == 0 {
		vecs, err := s.embedder.Embed(ctx, []string{req.Query})
		if err != nil {
			return nil, apperr.Dependency("embed query", err)
		}
		if len(vecs) == 0 || vecs[0] == nil {
			return nil, apperr.Dependency("embed query", nil)
		}
		embedding = vecs[0]
	}
	return s.graphStore.VectorSearch(ctx, embedding, req.MinScore, resolveLimit(req.Limit))
}

// searchEnhanced expands req.Query into several phrasings via the LLM,
// embeds and searches each in one batch, then merges results keeping each
// chunk's best score.
func (s *Server) searchEnhanced(ctx context.Context, req vectorSearchRequest) ([]graph.ChunkMatch, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperr.Validation("query", "query is required for enhanced search")
	}
	variants, err := s.orchestrator.ExpandQuery(ctx, req.Query, 5)
	if err != nil {
		return nil, apperr.Dependency("expand query", err)
	}

	vecs, err := s.embedder.Embed(ctx, variants)
	if err != nil {
		return nil, apperr.Dependency("embed query variants", err)
	}
	nonNil := make([][]float32, 0, len(vecs))
	for _, v := range vecs {
		if v != nil {
			nonNil = append(nonNil, v)
		}
	}

	perVariant, err := s.graphStore.BulkVectorSearch(ctx, nonNil, req.MinScore, resolveLimit(req.Limit))
	if err != nil {
		return nil, err
	}

	best := map[string]graph.ChunkMatch{}
	for _, matches := range perVariant {
		for _, m := range matches {
			if existing, ok := best[m.ChunkID]; !ok || m.Score > existing.Score {
				best[m.ChunkID] = m
			}
		}
	}
	merged := make([]graph.ChunkMatch, 0, len(best))
	for _, m := range best {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if limit := resolveLimit(req.Limit); len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *Server) decorateMatches(ctx context.Context, matches []graph.ChunkMatch, includePrereqs, includeDependents bool) []chunkMatchPayload {
	out := make([]chunkMatchPayload, len(matches))
	for i, m := range matches {
		payload := chunkMatchPayload{ChunkID: m.ChunkID, BookID: m.BookID, Text: m.Text, Concept: m.Concept, Score: m.Score}
		if includePrereqs {
			if ids, err := s.graphStore.PrerequisiteChain(ctx, m.ChunkID, 0); err == nil {
				payload.Prerequisites = ids
			} else {
				s.logger.Printf("prerequisite chain for %s: %v", m.ChunkID, err)
			}
		}
		if includeDependents {
			if ids, err := s.graphStore.Dependents(ctx, m.ChunkID, 0); err == nil {
				payload.Dependents = ids
			} else {
				s.logger.Printf("dependents for %s: %v", m.ChunkID, err)
			}
		}
		out[i] = payload
	}
	return out
}

func resolveLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return limit
}

// --- /vector/chunks, /vector/prerequisites ---

type insertChunkRequest struct {
	ID          string    `json:"id"`
	BookID      string    `json:"book_id"`
	SectionID   string    `json:"section_id"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Concept     string    `json:"concept"`
	Subject     string    `json:"subject"`
	ContentType string    `json:"content_type"`
	Difficulty  int       `json:"difficulty"`
}

func (s *Server) handleInsertChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req insertChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.BookID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("id, book_id and text are required"))
		return
	}

	ctx := r.Context()
	embedding := req.Embedding
	if len(embedding) == 0 {
		vecs, err := s.embedder.Embed(ctx, []string{req.Text})
		if err != nil {
			s.writeAppError(w, apperr.Dependency("embed chunk text", err))
			return
		}
		if len(vecs) == 0 || vecs[0] == nil {
			s.writeAppError(w, apperr.Dependency("embed chunk text", nil))
			return
		}
		embedding = vecs[0]
	}

	chunk := graph.Chunk{
		ID: req.ID, BookID: req.BookID, SectionID: req.SectionID, Text: req.Text,
		Embedding: embedding, Concept: req.Concept, Subject: req.Subject,
		ContentType: req.ContentType, Difficulty: req.Difficulty,
	}
	if err := s.graphStore.UpsertChunk(ctx, chunk); err != nil {
		s.writeAppError(w, err)
		return
	}
	if embedding != nil {
		if err := s.relStore.UpsertChunkEmbedding(ctx, req.ID, req.BookID, req.Text, embedding); err != nil {
			s.writeAppError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusCreated, chunkMatchPayload{ChunkID: req.ID, BookID: req.BookID, Text: req.Text, Concept: req.Concept})
}

type createPrerequisiteRequest struct {
	FromChunkID     string `json:"from_chunk_id"`
	ToChunkID       string `json:"to_chunk_id"`
	RequirementType string `json:"requirement_type"`
}

func (s *Server) handleCreatePrerequisite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req createPrerequisiteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.FromChunkID) == "" || strings.TrimSpace(req.ToChunkID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("from_chunk_id and to_chunk_id are required"))
		return
	}
	reqType := req.RequirementType
	if reqType == "" {
		reqType = "mandatory"
	}

	if err := s.graphStore.CreatePrerequisite(r.Context(), req.FromChunkID, req.ToChunkID, reqType); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageResponse{Message: "prerequisite created"})
}

type chainResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
}

func (s *Server) handlePrerequisiteChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	depth := queryInt(r, "max_depth", 0)
	ids, err := s.graphStore.PrerequisiteChain(r.Context(), id, depth)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chainResponse{ChunkIDs: ids})
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	depth := queryInt(r, "max_depth", 0)
	ids, err := s.graphStore.Dependents(r.Context(), id, depth)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chainResponse{ChunkIDs: ids})
}

// --- /llm family ---

type questionRequestPayload struct {
	ChunkContent string `json:"chunk_content"`
	Concept      string `json:"concept"`
	Subject      string `json:"subject"`
	Difficulty   int    `json:"difficulty"`
	Context      string `json:"context"`
	QuestionType string `json:"question_type"`
}

func (p questionRequestPayload) toRequest() llm.QuestionRequest {
	return llm.QuestionRequest{
		ChunkContent: p.ChunkContent, Concept: p.Concept, Subject: p.Subject,
		Difficulty: p.Difficulty, Context: p.Context, QuestionType: p.QuestionType,
	}
}

type questionResponsePayload struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
	FromFallback   bool   `json:"from_fallback,omitempty"`
}

func toQuestionResponse(r llm.QuestionResult) questionResponsePayload {
	return questionResponsePayload{Question: r.Question, ExpectedAnswer: r.ExpectedAnswer, FromFallback: r.FromFallback}
}

func (s *Server) handleGenerateQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req questionRequestPayload
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ChunkContent) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("chunk_content is required"))
		return
	}

	result, err := s.orchestrator.GenerateQuestion(r.Context(), req.toRequest())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuestionResponse(result))
}

type generateQuestionsRequest struct {
	Requests []questionRequestPayload `json:"requests"`
}

type questionsResponse struct {
	Questions []questionResponsePayload `json:"questions"`
}

func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req generateQuestionsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Requests) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("at least one request is required"))
		return
	}

	reqs := make([]llm.QuestionRequest, len(req.Requests))
	for i, p := range req.Requests {
		reqs[i] = p.toRequest()
	}
	results, err := s.orchestrator.GenerateQuestions(r.Context(), reqs)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	out := make([]questionResponsePayload, len(results))
	for i, res := range results {
		out[i] = toQuestionResponse(res)
	}
	s.writeJSON(w, http.StatusOK, questionsResponse{Questions: out})
}

type generateFromChunksRequest struct {
	ChunkIDs     []string `json:"chunk_ids"`
	Concept      string   `json:"concept"`
	Subject      string   `json:"subject"`
	Difficulty   int      `json:"difficulty"`
	QuestionType string   `json:"question_type"`
}

func (s *Server) handleGenerateFromChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req generateFromChunksRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.ChunkIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("chunk_ids is required"))
		return
	}

	ctx := r.Context()
	chunks, err := s.relStore.GetChunksByID(ctx, req.ChunkIDs)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if len(chunks) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no chunks found for the given ids"))
		return
	}

	reqs := make([]llm.QuestionRequest, len(chunks))
	for i, c := range chunks {
		reqs[i] = llm.QuestionRequest{
			ChunkContent: c.Content, Concept: req.Concept, Subject: req.Subject,
			Difficulty: req.Difficulty, QuestionType: req.QuestionType,
		}
	}
	results, err := s.orchestrator.GenerateQuestions(ctx, reqs)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	out := make([]questionResponsePayload, len(results))
	for i, res := range results {
		out[i] = toQuestionResponse(res)
	}
	s.writeJSON(w, http.StatusOK, questionsResponse{Questions: out})
}

// --- /tickets family ---

type chunkInputPayload struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	Concept         string         `json:"concept"`
	Subject         string         `json:"subject"`
	Score           float64        `json:"score"`
	HasPrerequisite []string       `json:"has_prerequisite,omitempty"`
	PrerequisiteFor []string       `json:"prerequisite_for,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (p chunkInputPayload) toChunkInput() learningpath.ChunkInput {
	return learningpath.ChunkInput{
		ID: p.ID, Content: p.Content, Concept: p.Concept, Subject: p.Subject, Score: p.Score,
		HasPrerequisite: p.HasPrerequisite, PrerequisiteFor: p.PrerequisiteFor, Metadata: p.Metadata,
	}
}

type createLearningPathRequest struct {
	UserID     string              `json:"user_id"`
	Query      string              `json:"query"`
	Title      string              `json:"title"`
	Difficulty string              `json:"difficulty"`
	Chunks     []chunkInputPayload `json:"chunks"`
}

type learningPathResponse struct {
	LearningPathID string  `json:"learning_path_id"`
	TicketIDs      []int64 `json:"ticket_ids"`
}

func (s *Server) handleCreateLearningPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req createLearningPathRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	chunks := make([]learningpath.ChunkInput, len(req.Chunks))
	for i, c := range req.Chunks {
		chunks[i] = c.toChunkInput()
	}

	result, err := s.pathBuilder.CreatePath(r.Context(), req.UserID, req.Query, chunks, req.Title, req.Difficulty)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, learningPathResponse{LearningPathID: result.LearningPathID, TicketIDs: result.TicketIDs})
}

type createLearningPathFromSearchRequest struct {
	UserID     string  `json:"user_id"`
	Query      string  `json:"query"`
	Title      string  `json:"title"`
	Difficulty string  `json:"difficulty"`
	Subject    string  `json:"subject"`
	MinScore   float64 `json:"min_score"`
	Limit      int     `json:"limit"`
}

func (s *Server) handleCreateLearningPathFromSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req createLearningPathFromSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	matches, err := s.searchOnce(ctx, vectorSearchRequest{Query: req.Query, MinScore: req.MinScore, Limit: req.Limit})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if len(matches) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no chunks matched the search query"))
		return
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	contents, err := s.relStore.GetChunksByID(ctx, ids)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	contentByID := make(map[string]string, len(contents))
	for _, c := range contents {
		contentByID[c.ChunkID] = c.Content
	}

	chunks := make([]learningpath.ChunkInput, len(matches))
	for i, m := range matches {
		content := contentByID[m.ChunkID]
		if content == "" {
			content = m.Text
		}
		chunks[i] = learningpath.ChunkInput{ID: m.ChunkID, Content: content, Concept: m.Concept, Subject: req.Subject, Score: m.Score}
	}

	result, err := s.pathBuilder.CreatePath(ctx, req.UserID, req.Query, chunks, req.Title, req.Difficulty)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, learningPathResponse{LearningPathID: result.LearningPathID, TicketIDs: result.TicketIDs})
}

type ticketPayload struct {
	ID          int64  `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Resolution  string `json:"resolution"`
	Milestone   string `json:"milestone"`
	Owner       string `json:"owner"`
}

type learningPathTicketsResponse struct {
	Tickets []ticketPayload `json:"tickets"`
}

func (s *Server) handleLearningPathTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	tickets, err := s.relStore.GetLearningPathTickets(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	out := make([]ticketPayload, len(tickets))
	for i, t := range tickets {
		out[i] = ticketPayload{ID: t.ID, Summary: t.Summary, Description: t.Description, Status: t.Status, Resolution: t.Resolution, Milestone: t.Milestone, Owner: t.Owner}
	}
	s.writeJSON(w, http.StatusOK, learningPathTicketsResponse{Tickets: out})
}

type updateProgressRequest struct {
	StudentID        string `json:"student_id"`
	Status           string `json:"status"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
	Notes            string `json:"notes"`
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.methodNotAllowed(w, http.MethodPut)
		return
	}
	ticketID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ticket id: %w", err))
		return
	}
	var req updateProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.StudentID) == "" || strings.TrimSpace(req.Status) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("student_id and status are required"))
		return
	}

	ctx := r.Context()
	question, err := s.relStore.GetQuestionData(ctx, ticketID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if question.ConceptID == "" {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("ticket %d has no associated concept", ticketID))
		return
	}
	if err := s.relStore.UpsertProgress(ctx, req.StudentID, question.ConceptID, req.Status, req.TimeSpentMinutes, req.Notes); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "progress updated"})
}

// --- /evaluation family ---

type evaluateRequest struct {
	UserID           string `json:"user_id"`
	TicketID         int64  `json:"ticket_id"`
	StudentAnswer    string `json:"student_answer"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
}

type evaluateResponse struct {
	Score           float64  `json:"score"`
	Feedback        string   `json:"feedback"`
	Suggestions     []string `json:"suggestions,omitempty"`
	Status          string   `json:"status"`
	MasteryAchieved bool     `json:"mastery_achieved"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || req.TicketID == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id and ticket_id are required"))
		return
	}

	result, err := s.evaluator.Evaluate(r.Context(), req.UserID, req.TicketID, req.StudentAnswer, req.TimeSpentMinutes)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evaluateResponse{
		Score: result.Score, Feedback: result.Feedback, Suggestions: result.Suggestions,
		Status: result.Status, MasteryAchieved: result.MasteryAchieved,
	})
}

type evaluationHistoryResponse struct {
	Status          string `json:"status"`
	LastAnswer      string `json:"last_answer,omitempty"`
	LastFeedback    string `json:"last_feedback,omitempty"`
	LastEvaluatedAt string `json:"last_evaluated_at,omitempty"`
}

func (s *Server) handleEvaluationHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	ticketID, err := strconv.ParseInt(r.PathValue("ticket_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ticket_id: %w", err))
		return
	}

	hist, err := s.evaluator.History(r.Context(), ticketID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if hist == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no evaluation history for ticket %d", ticketID))
		return
	}
	s.writeJSON(w, http.StatusOK, evaluationHistoryResponse{
		Status: hist.Status, LastAnswer: hist.LastAnswer, LastFeedback: hist.LastFeedback, LastEvaluatedAt: hist.LastEvaluatedAt,
	})
}

// --- shared helpers ---

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError reports err at the caller-chosen status, for request decoding
// and validation failures that precede any domain call.
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeAppError reports err at the status apperr.HTTPStatus derives from
// its Kind, per spec.md §7's error response shape.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	s.logger.Printf("api error (%d): %v", status, err)
	resp := errorResponse{Error: http.StatusText(status)}
	var appErr *apperr.Error
	if ok := asAppErr(err, &appErr); ok {
		resp.Detail = appErr.Error()
	} else {
		resp.Detail = err.Error()
	}
	s.writeJSON(w, status, resp)
}

func asAppErr(err error, target **apperr.Error) bool {
	for err != nil {
		if e, ok := err.(*apperr.Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
