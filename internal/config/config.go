// Package config provides configuration for the orchestrator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Ticketing backend
	TicketingURL    string
	TicketingAPIKey string

	// LLM provider
	LLMURL    string
	LLMAPIKey string
	LLMModel  string

	// Timeouts
	ToolTimeout time.Duration
	LLMTimeout  time.Duration

	// Logout detectors
	LivenessInterval time.Duration
	ProbeInterval    time.Duration

	// Retry policy for gateway calls
	ToolMaxRetries int
	RetryBackoff   time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:      getEnv("DATABASE_URL", "file:deskflow.db?cache=shared&mode=rwc"),
		TicketingURL:     getEnv("TICKETING_URL", "http://localhost:8090"),
		TicketingAPIKey:  getEnv("TICKETING_API_KEY", ""),
		LLMURL:           getEnv("LLM_URL", "http://localhost:4000"),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		ToolTimeout:      getEnvDuration("TOOL_TIMEOUT_MS", 15000),
		LLMTimeout:       getEnvDuration("LLM_TIMEOUT_MS", 60000),
		LivenessInterval: getEnvDuration("LIVENESS_INTERVAL_MS", 300000),
		ProbeInterval:    getEnvDuration("PROBE_INTERVAL_MS", 120000),
		ToolMaxRetries:   getEnvInt("TOOL_MAX_RETRIES", 3),
		RetryBackoff:     getEnvDuration("RETRY_BACKOFF_MS", 500),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg
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

func getEnvDuration(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
