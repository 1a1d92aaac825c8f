package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Provider string
	Model    string
}

type Config struct {
	TelegramToken  string
	TelegramAPIURL string
	PollTimeout    time.Duration

	Embeddings EmbeddingConfig
	LLM        LLMConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	VectorBackend string
	PostgresDSN   string

	ChunkSize      int
	ChunkOverlap   int
	RetrievalLimit int
	HistoryLimit   int

	RequestTimeout time.Duration
	UploadDir      string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	return Config{
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		PollTimeout:    time.Duration(getEnvAsInt("TELEGRAM_POLL_TIMEOUT", 30)) * time.Second,
		Embeddings: EmbeddingConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBEDDINGS_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		VectorBackend:  getEnv("VECTOR_BACKEND", BackendMemory),
		PostgresDSN:    getEnv("POSTGRES_DSN", "postgres://localhost:5432/medichat?sslmode=disable"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		RetrievalLimit: getEnvAsInt("RETRIEVAL_LIMIT", 4),
		HistoryLimit:   getEnvAsInt("HISTORY_LIMIT", 3),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT", 60)) * time.Second,
		UploadDir:      getEnv("UPLOAD_DIR", os.TempDir()),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
