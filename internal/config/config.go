package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	LogMode   string
	DBDSN     string
	JWTSecret string
	CORSAllow []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChunkTTL time.Duration

	ChatContextWindowSize int

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
	AIMaxTokens       int
	AITemperature     float64

	// embeddings
	EmbeddingsProvider  string
	EmbeddingsModel     string
	OpenAIAPIKey        string
	SimilarityThreshold float64

	// memory context
	MemoryMaxEntities  int
	MemoryMaxRelations int

	// video chunking
	Chunking       Chunking
	TranscriptURL  string
	DictionaryPath string

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	RabbitIngestQueue string

	MetricsEnabled bool
}

// Chunking holds the transcript windowing thresholds, in seconds.
type Chunking struct {
	TargetSeconds int
	MinSeconds    int
	MaxSeconds    int
	MaxSegments   int
}

func Load() Config {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	// DSN demo:
	// file:learning_buddy.db?_pragma=busy_timeout(5000)
	// app:apppass@tcp(127.0.0.1:3306)/learning_buddy?charset=utf8mb4&parseTime=true&loc=Local
	dsn := envString("DB_DSN", "file:learning_buddy.db")

	windowSize := envInt("CHAT_CONTEXT_WINDOW_SIZE", 20)

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		HTTPAddr:  envString("HTTP_ADDR", ":8080"),
		LogMode:   envString("LOG_MODE", "dev"),
		DBDSN:     dsn,
		JWTSecret: envString("JWT_SECRET", "dev-secret-change-me"),
		CORSAllow: origins,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisChunkTTL: envDuration("REDIS_CHUNK_TTL", 6*time.Hour),

		ChatContextWindowSize: windowSize,

		AIProvider:        envString("AI_PROVIDER", "ollama"),
		OllamaBaseURL:     envString("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       envString("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: envString("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   envString("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),
		AIMaxTokens:       envInt("AI_MAX_TOKENS", 1000),
		AITemperature:     envFloat("AI_TEMPERATURE", 0.7),

		EmbeddingsProvider:  strings.ToLower(os.Getenv("EMBEDDINGS_PROVIDER")),
		EmbeddingsModel:     os.Getenv("EMBEDDINGS_MODEL"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		SimilarityThreshold: envFloat("MEMORY_SIMILARITY_THRESHOLD", 0.75),

		MemoryMaxEntities:  envInt("MEMORY_CONTEXT_MAX_ENTITIES", 10),
		MemoryMaxRelations: envInt("MEMORY_CONTEXT_MAX_RELATIONS", 5),

		Chunking: Chunking{
			TargetSeconds: envInt("CHUNK_TARGET_SECONDS", 75),
			MinSeconds:    envInt("CHUNK_MIN_SECONDS", 45),
			MaxSeconds:    envInt("CHUNK_MAX_SECONDS", 90),
			MaxSegments:   envInt("CHUNK_MAX_SEGMENTS", 20),
		},
		TranscriptURL:  os.Getenv("TRANSCRIPT_BASE_URL"),
		DictionaryPath: os.Getenv("CHUNK_DICTIONARY_PATH"),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       envString("RABBIT_QUEUE", "chat_jobs"),
		RabbitIngestQueue: envString("RABBIT_INGEST_QUEUE", "video_ingest_jobs"),

		MetricsEnabled: envBool("METRICS_ENABLED", false),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
