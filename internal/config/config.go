// Package config provides configuration for the consultation service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the consultation service configuration.
type Config struct {
	// Server settings
	HTTPPort int
	// TrustedProxies lists the CIDR ranges whose X-Forwarded-For header is
	// believed. Empty means the socket peer address is the client address.
	TrustedProxies []string

	// Database
	DatabaseURL string

	// Identity settings
	IdentityBackend      string // "sqlite" or "http"
	IdentityURL          string
	IdentityCacheTTL     time.Duration
	IdentityTimeout      time.Duration
	BootstrapAdminToken  string
	BootstrapAdminUserID string
	SessionCookie        string

	// Context store settings
	ContextBackend   string // "memory", "sqlite" or "pebble"
	ContextMaxTurns  int
	ContextTTL       time.Duration
	PebblePath       string
	AnonymousContext bool
	RetentionCron    string

	// Reasoner settings
	ReasonerBackend  string // "rules" or "llm"
	ReasonerCatalog  string
	MinConfidence    float64
	MaxMessageLength int
	ReasoningTimeout time.Duration

	// LLM settings
	LiteLLMURL    string
	LiteLLMAPIKey string
	LLMModel      string
	LLMTimeout    time.Duration

	// Access policy
	PolicyPath string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// WebSocket settings
	WSMaxMessageSize int64
	WSReadTimeout    time.Duration
	WSWriteTimeout   time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables. A .env file in the
// working directory, if present, is read first and never overrides variables
// already set.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		TrustedProxies:       getEnvList("TRUSTED_PROXIES"),
		DatabaseURL:          getEnv("DATABASE_URL", "file:consult.db?mode=rwc&_journal_mode=WAL&_busy_timeout=5000"),
		IdentityBackend:      getEnv("IDENTITY_BACKEND", "sqlite"),
		IdentityURL:          getEnv("IDENTITY_URL", ""),
		IdentityCacheTTL:     time.Duration(getEnvInt("IDENTITY_CACHE_TTL_MS", 60000)) * time.Millisecond,
		IdentityTimeout:      time.Duration(getEnvInt("IDENTITY_TIMEOUT_MS", 3000)) * time.Millisecond,
		BootstrapAdminToken:  getEnv("BOOTSTRAP_ADMIN_TOKEN", ""),
		BootstrapAdminUserID: getEnv("BOOTSTRAP_ADMIN_USER_ID", "admin"),
		SessionCookie:        getEnv("SESSION_COOKIE", "session"),
		ContextBackend:       getEnv("CONTEXT_BACKEND", "memory"),
		ContextMaxTurns:      getEnvInt("CONTEXT_MAX_TURNS", 10),
		ContextTTL:           time.Duration(getEnvInt("CONTEXT_TTL_MS", 86400000)) * time.Millisecond,
		PebblePath:           getEnv("PEBBLE_PATH", "data/turns"),
		AnonymousContext:     getEnvBool("ANONYMOUS_CONTEXT", false),
		RetentionCron:        getEnv("RETENTION_CRON", "*/15 * * * *"),
		ReasonerBackend:      getEnv("REASONER_BACKEND", "rules"),
		ReasonerCatalog:      getEnv("REASONER_CATALOG", ""),
		MinConfidence:        getEnvFloat("MIN_CONFIDENCE", 0.15),
		MaxMessageLength:     getEnvInt("MAX_MESSAGE_LENGTH", 4000),
		ReasoningTimeout:     time.Duration(getEnvInt("REASONING_TIMEOUT_MS", 10000)) * time.Millisecond,
		LiteLLMURL:           getEnv("LITELLM_URL", "http://localhost:4000"),
		LiteLLMAPIKey:        getEnv("LITELLM_API_KEY", ""),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:           time.Duration(getEnvInt("LLM_TIMEOUT_MS", 30000)) * time.Millisecond,
		PolicyPath:           getEnv("POLICY_PATH", ""),
		RateLimitRPS:         getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:       getEnvInt("RATE_LIMIT_BURST", 10),
		WSMaxMessageSize:     int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		WSReadTimeout:        time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WSWriteTimeout:       time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// Default returns the configuration with every value at its default,
// ignoring the environment.
func Default() *Config {
	return &Config{
		HTTPPort:             8080,
		DatabaseURL:          ":memory:",
		IdentityBackend:      "sqlite",
		IdentityCacheTTL:     time.Minute,
		IdentityTimeout:      3 * time.Second,
		BootstrapAdminUserID: "admin",
		SessionCookie:        "session",
		ContextBackend:       "memory",
		ContextMaxTurns:      10,
		ContextTTL:           24 * time.Hour,
		RetentionCron:        "*/15 * * * *",
		ReasonerBackend:      "rules",
		MinConfidence:        0.15,
		MaxMessageLength:     4000,
		ReasoningTimeout:     10 * time.Second,
		LLMModel:             "gpt-4o-mini",
		LLMTimeout:           30 * time.Second,
		RateLimitRPS:         2,
		RateLimitBurst:       10,
		WSMaxMessageSize:     65536,
		WSReadTimeout:        time.Minute,
		WSWriteTimeout:       10 * time.Second,
		LogLevel:             "info",
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
