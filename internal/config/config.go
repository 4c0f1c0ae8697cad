// Package config reads the closed set of environment settings. A .env file
// in the working directory is honoured when present.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration. Every field has a default; only
// LLM_API_KEY is genuinely environment-dependent.
type Config struct {
	// LLM settings
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64

	// Agent settings
	MaxAgentIterations int
	MaxContextTokens   int
	ContextTokenBuffer int

	// Tool settings
	ListFilesLimit int

	// Execution registry settings
	ExecutionGraceSeconds int
	SubscriberBuffer      int
}

// Load reads the environment, after loading .env when one exists.
func Load() Config {
	// Missing .env is fine; explicit environment wins either way.
	_ = godotenv.Load()

	return Config{
		APIKey:                os.Getenv("LLM_API_KEY"),
		Model:                 envString("LLM_MODEL", "gpt-4o-mini"),
		BaseURL:               os.Getenv("LLM_BASE_URL"),
		Temperature:           envFloat("LLM_TEMPERATURE", 0.2),
		MaxAgentIterations:    envInt("MAX_AGENT_ITERATIONS", 10),
		MaxContextTokens:      envInt("MAX_CONTEXT_TOKENS", 25000),
		ContextTokenBuffer:    envInt("CONTEXT_TOKEN_BUFFER", 2000),
		ListFilesLimit:        envInt("LIST_FILES_LIMIT", 20),
		ExecutionGraceSeconds: envInt("EXECUTION_GRACE_SECONDS", 600),
		SubscriberBuffer:      envInt("SUBSCRIBER_BUFFER", 64),
	}
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
