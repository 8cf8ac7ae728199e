// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob consumed by the pipeline.
type Config struct {
	AppName     string
	AppVersion  string
	Debug       bool
	Environment string
	APIPrefix   string
	SecretKey   string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CORSOrigins     []string

	DatabaseURL string
	DBPoolMin   int
	DBPoolMax   int

	StorageBucket string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	ConfidenceThreshold   float64
	AutoApproveThreshold  float64
	ClassifierThreshold   float64
	MaxChunkSize          int
	ChunkOverlap          int
	MaxTransactionsChunk  int
	MaxFileSizeMB         int
	AllowedMimeTypes      []string
	VectorDims            int
	WorkerPoolSize        int
	OCRWorkers            int
	DocumentTimeout       time.Duration
	StaleProcessingSweep  time.Duration
	StaleProcessingMaxAge time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppName:     getEnv("APP_NAME", "ai-expense-tracker"),
		AppVersion:  getEnv("APP_VERSION", "0.1.0"),
		Debug:       getBool("DEBUG", false),
		Environment: getEnv("ENVIRONMENT", "development"),
		APIPrefix:   getEnv("API_PREFIX", "/api/v1"),
		SecretKey:   getEnv("SECRET_KEY", ""),

		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CORSOrigins:     getList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPoolMin:   getInt("DB_POOL_MIN", 2),
		DBPoolMax:   getInt("DB_POOL_MAX", 10),

		StorageBucket: getEnv("STORAGE_BUCKET", "documents"),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getInt("LLM_MAX_TOKENS", 4096),
		LLMTemperature: getFloat("LLM_TEMPERATURE", 0.3),

		ConfidenceThreshold:  getFloat("EXTRACTION_CONFIDENCE_THRESHOLD", 0.7),
		AutoApproveThreshold: getFloat("AUTO_APPROVAL_THRESHOLD", 0.85),
		ClassifierThreshold:  getFloat("CLASSIFIER_CONFIDENCE_THRESHOLD", 0.5),
		MaxChunkSize:         getInt("MAX_CHUNK_SIZE", 4000),
		ChunkOverlap:         getInt("CHUNK_OVERLAP", 200),
		MaxTransactionsChunk: getInt("MAX_TRANSACTIONS_PER_CHUNK", 30),
		MaxFileSizeMB:        getInt("MAX_FILE_SIZE_MB", 50),
		AllowedMimeTypes: getList("ALLOWED_MIME_TYPES", []string{
			"application/pdf",
			"image/png",
			"image/jpeg",
			"text/csv",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}),
		VectorDims:            getInt("VECTOR_DIMS", 1024),
		WorkerPoolSize:        getInt("WORKER_POOL_SIZE", 4),
		OCRWorkers:            getInt("OCR_WORKERS", 2),
		DocumentTimeout:       getDuration("DOCUMENT_TIMEOUT", 10*time.Minute),
		StaleProcessingSweep:  getDuration("STALE_PROCESSING_SWEEP", 10*time.Minute),
		StaleProcessingMaxAge: getDuration("STALE_PROCESSING_MAX_AGE", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
