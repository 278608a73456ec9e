// Package config handles loading and validation of application configuration
// from environment variables. Supports .env files via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        int
	Environment string // "development" | "staging" | "production"
	RootURL     string

	// Verification API (case-management backend)
	VerificationAPIURL string
	DefaultTimeout     time.Duration
	SearchLimit        int

	// Authentication (ADFS-issued access tokens)
	ADFSURL       string
	JWTAudience   string
	JWTLeeway     time.Duration
	AdminRole     string
	LoginDisabled bool

	// Security
	AllowedOrigins []string

	// Redis (session state)
	RedisURL   string
	SessionTTL time.Duration

	// Optional Postgres audit trail of staff actions
	DatabaseURL string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	rootURL := strings.TrimSuffix(getEnv("ROOT_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: getEnv("ENVIRONMENT", "development"),
		RootURL:     rootURL,

		VerificationAPIURL: strings.TrimSuffix(getEnv("VERIFICATION_API_URL", "http://localhost:8081/v1"), "/"),
		DefaultTimeout:     time.Duration(getEnvInt("DEFAULT_TIMEOUT", 15)) * time.Second,
		SearchLimit:        getEnvInt("VERIFICATION_SEARCH_LIMIT", 100),

		ADFSURL:       getEnv("ADFS_URL", ""),
		JWTAudience:   getEnv("JWT_AUDIENCE", rootURL+"/verification/login"),
		JWTLeeway:     time.Duration(getEnvInt("JWT_LEEWAY", 30)) * time.Second,
		AdminRole:     getEnv("ADFS_ROLE", "verification-admin"),
		LoginDisabled: getEnvBool("LOGIN_DISABLED", false),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"), ","),

		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
		SessionTTL: time.Duration(getEnvInt("SESSION_TTL_MINUTES", 480)) * time.Minute,

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}

	if cfg.SearchLimit <= 0 {
		return nil, fmt.Errorf("VERIFICATION_SEARCH_LIMIT must be positive, got %d", cfg.SearchLimit)
	}

	// Validate required fields in production
	if cfg.Environment == "production" {
		if os.Getenv("VERIFICATION_API_URL") == "" {
			return nil, fmt.Errorf("VERIFICATION_API_URL is required in production")
		}
		if cfg.ADFSURL == "" {
			return nil, fmt.Errorf("ADFS_URL is required in production")
		}
		if cfg.LoginDisabled {
			return nil, fmt.Errorf("LOGIN_DISABLED cannot be set in production")
		}
	}

	return cfg, nil
}

// requestMargin is the time a request may spend outside verification API calls
const requestMargin = 15 * time.Second

// RequestTimeout bounds a whole request. It outlasts the API client's own
// timeout so slow API calls fail with a timeout error rather than a
// cancelled context.
func (c *Config) RequestTimeout() time.Duration {
	return c.DefaultTimeout + requestMargin
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
