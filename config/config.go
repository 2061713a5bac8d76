// Package config loads runtime configuration for the learning-content backend
// from environment variables, with optional .env file support for local
// development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbeddingsConfig configures the EmbeddingClient backend.
type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

// LLMConfig configures the LLMOrchestrator's transport backend.
type LLMConfig struct {
	Provider string
	Model    string
}

// ChunkingConfig mirrors the spec's ChunkerConfig design note: explicit
// thresholds rather than a keyword-argument bag.
type ChunkingConfig struct {
	Target             int
	MinSize            int
	MaxSize            int
	Overlap            int
	PreserveMath       bool
	PreserveDefinition bool
	PreserveExample    bool
	ThreadSafe         bool
	MaxWorkers         int
}

// LearningConfig carries domain thresholds that the original source hard-coded
// inline (mastery threshold, circuit breaker tuning, retry policy).
type LearningConfig struct {
	MasteryThreshold   float64
	CircuitFailureMax  int
	CircuitOpenTimeout time.Duration
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	RetryExpBase       float64
	QuestionCacheTTL   time.Duration
	EvaluationCacheTTL time.Duration
}

type Config struct {
	PostgresDSN string
	RedisAddr   string
	RedisPass   string
	RedisDB     int

	Neo4jURI  string
	Neo4jUser string
	Neo4jPass string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Chunking   ChunkingConfig
	Learning   LearningConfig

	DataDir         string
	ListenAddr      string
	LogLevel        string
	Environment     string
	AllowedOrigins  string
	APIGatewayURL   string
}

// Load resolves configuration from the environment. A .env file in the
// working directory is loaded first (when present) so environment variables
// set by the shell still take precedence.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		PostgresDSN: getEnv("DATABASE_URL", "postgres://localhost:5432/learntrac?sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:     getEnvInt("REDIS_DB", 0),

		Neo4jURI:  getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass: getEnv("NEO4J_PASSWORD", "password"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Chunking: ChunkingConfig{
			Target:             getEnvInt("CHUNK_TARGET_SIZE", 1000),
			MinSize:            getEnvInt("CHUNK_MIN_SIZE", 200),
			MaxSize:            getEnvInt("CHUNK_MAX_SIZE", 2000),
			Overlap:            getEnvInt("CHUNK_OVERLAP", 100),
			PreserveMath:       getEnvBool("CHUNK_PRESERVE_MATH", true),
			PreserveDefinition: getEnvBool("CHUNK_PRESERVE_DEFINITIONS", true),
			PreserveExample:    getEnvBool("CHUNK_PRESERVE_EXAMPLES", true),
			ThreadSafe:         getEnvBool("CHUNK_THREAD_SAFE", true),
			MaxWorkers:         getEnvInt("CHUNK_MAX_WORKERS", 4),
		},
		Learning: LearningConfig{
			MasteryThreshold:   getEnvFloat("MASTERY_THRESHOLD", 0.8),
			CircuitFailureMax:  getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			CircuitOpenTimeout: time.Duration(getEnvInt("CIRCUIT_OPEN_TIMEOUT_SECONDS", 60)) * time.Second,
			RetryMaxAttempts:   getEnvInt("LLM_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:     time.Duration(getEnvInt("LLM_RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
			RetryMaxDelay:      time.Duration(getEnvInt("LLM_RETRY_MAX_DELAY_MS", 8000)) * time.Millisecond,
			RetryExpBase:       getEnvFloat("LLM_RETRY_EXP_BASE", 2.0),
			QuestionCacheTTL:   time.Duration(getEnvInt("QUESTION_CACHE_TTL_SECONDS", 3600)) * time.Second,
			EvaluationCacheTTL: time.Duration(getEnvInt("EVALUATION_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},

		DataDir:        getEnv("DATA_DIR", "./data"),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		APIGatewayURL:  getEnv("API_GATEWAY_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
