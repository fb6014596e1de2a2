package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Host           string
	Port           string
	Env            string
	AllowedOrigins string

	// Model backend
	ModelBackend   string // "llamacpp" or "gemini"
	ModelName      string
	LlamaServerURL string
	BOSToken       string
	EOSToken       string
	GeminiAPIKey   string
	GeminiModel    string

	// Generation
	MaxNewTokens           int
	GenerationConcurrency  int
	GenerationTimeout      time.Duration
	GenerationQueueTimeout time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Redis (optional, shared rate limiter)
	RedisURL string

	// Database (optional, exchange log)
	DatabaseURL     string
	ExchangeWorkers int
}

const (
	BackendLlamaCpp = "llamacpp"
	BackendGemini   = "gemini"
)

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "127.0.0.1"),
		Port:           getEnvOrDefault("PORT", "5000"),
		Env:            getEnvOrDefault("ENV", "development"),
		AllowedOrigins: getEnvOrDefault("ALLOWED_ORIGINS", "*"),

		ModelBackend:   getEnvOrDefault("MODEL_BACKEND", BackendLlamaCpp),
		ModelName:      getEnvOrDefault("MODEL_NAME", "TinyLlama/TinyLlama-1.1B-Chat-v1.0"),
		LlamaServerURL: getEnvOrDefault("LLAMA_SERVER_URL", "http://127.0.0.1:8080"),
		BOSToken:       getEnvOrDefault("BOS_TOKEN", "<s>"),
		EOSToken:       getEnvOrDefault("EOS_TOKEN", "</s>"),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),

		MaxNewTokens:           getEnvAsIntOrDefault("MAX_NEW_TOKENS", 256),
		GenerationConcurrency:  getEnvAsIntOrDefault("GENERATION_CONCURRENCY", 2),
		GenerationTimeout:      getEnvAsSecondsOrDefault("GENERATION_TIMEOUT_SECONDS", 120),
		GenerationQueueTimeout: getEnvAsSecondsOrDefault("GENERATION_QUEUE_TIMEOUT_SECONDS", 30),

		RateLimitPerMinute: getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 30),

		RedisURL:        getEnvOrDefault("REDIS_URL", ""),
		DatabaseURL:     getEnvOrDefault("DATABASE_URL", ""),
		ExchangeWorkers: getEnvAsIntOrDefault("EXCHANGE_WORKERS", 2),
	}

	switch cfg.ModelBackend {
	case BackendGemini:
		cfg.GeminiAPIKey = mustGetEnv("GEMINI_API_KEY")
	case BackendLlamaCpp:
	default:
		panic(fmt.Sprintf("unknown MODEL_BACKEND %q (want %q or %q)", cfg.ModelBackend, BackendLlamaCpp, BackendGemini))
	}

	return cfg
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsSecondsOrDefault(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsIntOrDefault(key, defaultSeconds)) * time.Second
}
