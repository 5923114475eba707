package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string // empty selects the in-memory backend
	JWKSURL     string // empty enables the dev auth stub
	CORSOrigins string
	TablePrefix string
	DevUserID   string // user id injected by the dev auth stub
	LogDir      string // empty logs to stdout only
	LogMaxFiles int
	// LLM Configuration
	AnthropicAPIKey string
	DefaultModel    string
	TierModel       string // model for tier summarization sub-calls; empty uses rule fallback
	// Search
	TavilyAPIKey  string
	SearchEnabled bool
	// Engine tuning
	PromptTokenBudget int
	TurnKeepFloor     int
	MaxLoop           int
	EpisodicK         int
	CallTimeout       time.Duration
	TurnDeadline      time.Duration
	SessionIdleTTL    time.Duration
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWKSURL:     getEnv("JWKS_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		DevUserID:   getEnv("DEV_USER_ID", "dev-user"),
		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 7),
		// LLM Configuration
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "claude-haiku-4-5-20251001"),
		TierModel:       getEnv("TIER_MODEL", ""),
		// Search
		TavilyAPIKey:  getEnv("TAVILY_API_KEY", ""),
		SearchEnabled: getEnv("SEARCH_ENABLED", "true") == "true",
		// Engine tuning
		PromptTokenBudget: getEnvInt("PROMPT_TOKEN_BUDGET", 30000),
		TurnKeepFloor:     getEnvInt("TURN_KEEP_FLOOR", 5),
		MaxLoop:           getEnvInt("MAX_LOOP", 2),
		EpisodicK:         getEnvInt("EPISODIC_K", 3),
		CallTimeout:       getEnvDuration("LLM_CALL_TIMEOUT", 60*time.Second),
		TurnDeadline:      getEnvDuration("USER_TURN_DEADLINE", 120*time.Second),
		SessionIdleTTL:    getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
	}
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
