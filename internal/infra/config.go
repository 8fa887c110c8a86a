package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	DatabaseMaxConns int
	RedisURL         string

	AllowedOrigins []string

	PublicBaseURL string
	StoragePath   string
	SigningSecret string
	SignedURLTTL  time.Duration

	TemplatePath  string
	OperatorToken string

	EnhanceAPIKey  string
	EnhanceBaseURL string
	EnhanceModels  []string
	EnhanceTimeout time.Duration

	MetricsPort        string
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	RetryBaseDelay     time.Duration
	RetryMultiplier    int
	RetryMaxAttempts   int
	JobRetention       int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 10),
		RedisURL:         os.Getenv("REDIS_URL"),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),
		SigningSecret: os.Getenv("SIGNING_SECRET"),
		SignedURLTTL:  time.Minute * time.Duration(getEnvInt("SIGNED_URL_TTL_MINUTES", 15)),

		TemplatePath:  getEnv("CREDENTIAL_TEMPLATE_PATH", "./assets/idcard-template.png"),
		OperatorToken: os.Getenv("OPERATOR_TOKEN"),

		EnhanceAPIKey:  os.Getenv("ENHANCE_API_KEY"),
		EnhanceBaseURL: getEnv("ENHANCE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		EnhanceModels:  splitCSV(getEnv("ENHANCE_MODELS", "gemini-2.5-flash,gemini-2.0-flash,gemini-1.5-flash")),
		EnhanceTimeout: time.Second * time.Duration(getEnvInt("ENHANCE_TIMEOUT_SECONDS", 15)),

		MetricsPort:        getEnv("METRICS_PORT", "9090"),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_SECONDS", 2)),
		RetryBaseDelay:     time.Second * time.Duration(getEnvInt("RETRY_BASE_SECONDS", 5)),
		RetryMultiplier:    getEnvInt("RETRY_MULTIPLIER", 3),
		RetryMaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		JobRetention:       getEnvInt("JOB_RETENTION", 50),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SIGNING_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
