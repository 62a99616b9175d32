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
	Port     string
	Env      string
	LogLevel string

	// JWT
	JWTSecret string

	// Gemini AI
	GeminiAPIKey         string
	GeminiTierKeys       map[string]string
	GeminiTierModels     map[string]string
	GeminiBaseURL        string
	GeminiClient         string
	GeminiCandidateCount int
	GeminiRequestTimeout time.Duration

	// Retry
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	// Optional collaborators
	DatabaseURL string
	RedisURL    string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:         getEnvOrDefault("PORT", "8080"),
		Env:          getEnvOrDefault("ENV", "development"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		JWTSecret:    mustGetEnv("JWT_SECRET"),
		GeminiAPIKey: mustGetEnv("GEMINI_API_KEY"),
		GeminiTierKeys: map[string]string{
			"free":  os.Getenv("GEMINI_API_KEY_FREE"),
			"basic": os.Getenv("GEMINI_API_KEY_BASIC"),
			"pro":   os.Getenv("GEMINI_API_KEY_PRO"),
		},
		GeminiTierModels: map[string]string{
			"free":  getEnvOrDefault("GEMINI_MODEL_FREE", "gemini-2.0-flash-lite"),
			"basic": getEnvOrDefault("GEMINI_MODEL_BASIC", "gemini-2.0-flash"),
			"pro":   getEnvOrDefault("GEMINI_MODEL_PRO", "gemini-2.5-pro"),
		},
		GeminiBaseURL:        getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiClient:         getEnvOrDefault("GEMINI_CLIENT", "sdk"),
		GeminiCandidateCount: getEnvAsIntOrDefault("GEMINI_CANDIDATE_COUNT", 1),
		GeminiRequestTimeout: getEnvAsDurationOrDefault("GEMINI_REQUEST_TIMEOUT", 120*time.Second),
		RetryMaxAttempts:     getEnvAsIntOrDefault("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:       time.Duration(getEnvAsIntOrDefault("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// TierKey returns the credential for a tier, falling back to the shared key.
func (c *Config) TierKey(tier string) string {
	if k := c.GeminiTierKeys[tier]; k != "" {
		return k
	}
	return c.GeminiAPIKey
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

// getEnvAsDurationOrDefault accepts Go duration strings ("90s") or bare seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
