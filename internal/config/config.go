package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Host        string
	Port        string
	Environment string
	GinMode     string

	// Database
	DatabaseURL string

	// Redis (metadata cache)
	RedisURL string

	// Embedding Service (OpenAI compatible)
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingDimensions int

	// OCR provider
	OCRBaseURL string
	OCRAPIKey  string
	OCREnabled bool

	// Upload policy
	MaxUploadSize  int64
	AllowedFormats []string

	// Chunking defaults
	ChunkMaxChars     int
	ChunkMinChars     int
	ChunkOverlapChars int

	// Ingestion worker pool
	EmbeddingWorkers int
}

func Load() *Config {
	return &Config{
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GinMode:     getEnv("GIN_MODE", "debug"),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/reservoir?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		EmbeddingAPIKey:     getEnv("OPENAI_API_KEY", ""),
		EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),

		OCRBaseURL: getEnv("OCR_BASE_URL", ""),
		OCRAPIKey:  getEnv("OCR_API_KEY", ""),
		OCREnabled: getEnvBool("OCR_ENABLED", false),

		MaxUploadSize:  getEnvInt64("MAX_UPLOAD_SIZE", 50*1024*1024), // 50MB
		AllowedFormats: getEnvList("ALLOWED_FORMATS", []string{".txt", ".md", ".markdown", ".csv", ".json", ".html", ".htm"}),

		ChunkMaxChars:     getEnvInt("CHUNK_MAX_CHARS", 2000),
		ChunkMinChars:     getEnvInt("CHUNK_MIN_CHARS", 100),
		ChunkOverlapChars: getEnvInt("CHUNK_OVERLAP_CHARS", 200),

		EmbeddingWorkers: getEnvInt("EMBEDDING_WORKERS", 4),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	return int(getEnvInt64(key, int64(defaultValue)))
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
