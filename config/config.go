package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"propMonitor/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Rule templates loaded (and upserted) at startup; empty skips loading.
	TemplatesPath string

	// HTTP API
	HTTPHost         string
	HTTPPort         int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	ShutdownTimeout  time.Duration
	CORSOrigins      []string
	RateLimit        float64 // requests per second, 0 disables limiting
	RateBurst        int
	StreamInterval   time.Duration

	// Evaluation cache
	EvaluationCacheTTL time.Duration // 0 disables caching
}

// Addr returns the listen address of the HTTP API.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/prop_monitor.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	cfg.TemplatesPath = getEnv("TEMPLATES_PATH", "")
	if cfg.TemplatesPath != "" {
		if _, statErr := os.Stat(cfg.TemplatesPath); statErr != nil {
			errs = append(errs, fmt.Sprintf("TEMPLATES_PATH %q is not readable: %v", cfg.TemplatesPath, statErr))
		}
	}

	// HTTP API
	cfg.HTTPHost = getEnv("HTTP_HOST", "0.0.0.0")
	cfg.HTTPPort, err = getEnvAsIntRequired("HTTP_PORT", 8080)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_PORT: %v", err))
	} else if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be between 1 and 65535")
	}

	readTimeout, err := getEnvAsIntRequired("HTTP_READ_TIMEOUT_SECONDS", 15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_READ_TIMEOUT_SECONDS: %v", err))
	} else if readTimeout <= 0 {
		errs = append(errs, "HTTP_READ_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPReadTimeout = time.Duration(readTimeout) * time.Second

	writeTimeout, err := getEnvAsIntRequired("HTTP_WRITE_TIMEOUT_SECONDS", 15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_WRITE_TIMEOUT_SECONDS: %v", err))
	} else if writeTimeout <= 0 {
		errs = append(errs, "HTTP_WRITE_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPWriteTimeout = time.Duration(writeTimeout) * time.Second

	shutdownSeconds := getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10)
	if shutdownSeconds <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT_SECONDS must be positive")
	}
	cfg.ShutdownTimeout = time.Duration(shutdownSeconds) * time.Second

	cfg.CORSOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"})

	cfg.RateLimit, err = getEnvAsFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_LIMIT_RPS: %v", err))
	} else if cfg.RateLimit < 0 {
		errs = append(errs, "RATE_LIMIT_RPS cannot be negative")
	}
	cfg.RateBurst, err = getEnvAsIntRequired("RATE_LIMIT_BURST", 40)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_LIMIT_BURST: %v", err))
	} else if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	streamSeconds := getEnvAsInt("STREAM_INTERVAL_SECONDS", 5)
	if streamSeconds <= 0 {
		errs = append(errs, "STREAM_INTERVAL_SECONDS must be positive")
	}
	cfg.StreamInterval = time.Duration(streamSeconds) * time.Second

	// Evaluation cache
	cacheSeconds, err := getEnvAsIntRequired("EVALUATION_CACHE_TTL_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EVALUATION_CACHE_TTL_SECONDS: %v", err))
	} else if cacheSeconds < 0 {
		errs = append(errs, "EVALUATION_CACHE_TTL_SECONDS cannot be negative")
	}
	cfg.EvaluationCacheTTL = time.Duration(cacheSeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
