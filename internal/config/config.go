package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI         string
	DBName           string
	ChunksCollection string
	Port             string
	GinMode          string
	CORSOrigins      []string

	// Ollama endpoints and models
	OllamaBaseURL   string
	EmbeddingModel  string
	GenerationModel string

	// Embedding behavior
	VectorDimensions    int
	EmbedTimeout        time.Duration
	EmbedMaxRetries     int
	EmbedRetryBaseDelay time.Duration
	DegradedModeEnabled bool
	EmbedRateLimit      int
	EmbedConcurrency    int

	// Generation behavior
	GenerateTimeout time.Duration
	Temperature     float64
	MaxTokens       int

	// Chunking
	TargetChunkSize  int
	MinChunkSize     int
	MinContentLength int

	// Retrieval
	TopK int

	// Embedding pacing: sleep PacingDelay after every PacingEvery texts
	// on the sequential batch path
	PacingEvery int
	PacingDelay time.Duration

	// Status probes
	ProbeTimeout   time.Duration
	LiveEmbedProbe bool

	// Redis / async queue
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Per-IP request rate limiting (requests per window)
	RateLimitReqs   int
	RateLimitWindow int

	// Query answer cache; zero TTL disables caching
	QueryCacheTTL time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017/knowledgebase"),
		DBName:           getEnv("DB_NAME", "knowledgebase"),
		ChunksCollection: getEnv("CHUNKS_COLLECTION", "chunks"),
		Port:             getEnv("PORT", "8080"),
		GinMode:          getEnv("GIN_MODE", "debug"),
		CORSOrigins:      strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "qwen3-embedding"),
		GenerationModel: getEnv("GENERATION_MODEL", "mistral"),

		VectorDimensions:    getEnvInt("VECTOR_DIM", 1024),
		EmbedTimeout:        getEnvDuration("EMBED_TIMEOUT", 15*time.Second),
		EmbedMaxRetries:     getEnvInt("EMBED_MAX_RETRIES", 3),
		EmbedRetryBaseDelay: getEnvDuration("EMBED_RETRY_BASE_DELAY", 500*time.Millisecond),
		DegradedModeEnabled: getEnvBool("DEGRADED_MODE_ENABLED", false),
		EmbedRateLimit:      getEnvInt("EMBED_RATE_LIMIT", 10),
		EmbedConcurrency:    getEnvInt("EMBED_CONCURRENCY", 1),

		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 60*time.Second),
		Temperature:     getEnvFloat64("GENERATION_TEMPERATURE", 0.1),
		MaxTokens:       getEnvInt("GENERATION_MAX_TOKENS", 2048),

		TargetChunkSize:  getEnvInt("TARGET_CHUNK_SIZE", 500),
		MinChunkSize:     getEnvInt("MIN_CHUNK_SIZE", 40),
		MinContentLength: getEnvInt("MIN_CONTENT_LENGTH", 50),

		TopK: getEnvInt("RETRIEVAL_TOP_K", 5),

		PacingEvery: getEnvInt("INDEX_PACING_EVERY", 10),
		PacingDelay: getEnvDuration("INDEX_PACING_DELAY", 200*time.Millisecond),

		ProbeTimeout:   getEnvDuration("PROBE_TIMEOUT", 5*time.Second),
		LiveEmbedProbe: getEnvBool("LIVE_EMBED_PROBE", false),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		QueryCacheTTL: getEnvDuration("QUERY_CACHE_TTL", 0),
	}

	// Validate required fields
	if cfg.VectorDimensions <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be a positive integer")
	}

	if cfg.TargetChunkSize <= cfg.MinChunkSize {
		return nil, fmt.Errorf("TARGET_CHUNK_SIZE (%d) must be greater than MIN_CHUNK_SIZE (%d)",
			cfg.TargetChunkSize, cfg.MinChunkSize)
	}

	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be a positive integer")
	}

	if cfg.EmbedConcurrency < 1 {
		cfg.EmbedConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
