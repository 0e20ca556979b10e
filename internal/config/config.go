package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/victorlcs87/gsv-sync/internal/validator"
)

var (
	ErrMissingConfig     = errors.New("missing required configuration")
	ErrInvalidConfig     = errors.New("invalid configuration value")
	ErrSessionSecretSize = errors.New("session secret must be at least 32 characters")
	ErrValidationFailed  = errors.New("configuration validation failed")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	OIDC         OIDCConfig
	Security     SecurityConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Calendar     CalendarConfig
	Pricing      PricingConfig
	RateLimiting RateLimitConfig
	Sync         SyncConfig
	Notify       NotifyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	BaseURL     string
	Environment Environment
}

// OIDCConfig holds OIDC authentication configuration.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	SessionSecret string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// RedisConfig holds snapshot cache configuration. An empty address disables
// the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CalendarConfig holds remote calendar configuration.
type CalendarConfig struct {
	BaseURL      string
	CalendarName string
	EventPrefix  string
	TimeZone     string
}

// PricingConfig holds the financial derivation parameters.
type PricingConfig struct {
	HourlyRate float64
	NetFactor  float64
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// SyncConfig holds sync behavior configuration.
type SyncConfig struct {
	BatchSize        int
	ConnectivityURL  string
	ProbeInterval    time.Duration
	RunRetentionDays int
	CleanupInterval  time.Duration
}

// NotifyConfig holds sync failure notification configuration. An empty
// webhook URL disables notifications.
type NotifyConfig struct {
	WebhookURL string
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load() //nolint:errcheck // Intentionally ignore - .env file is optional

	cfg := &Config{}

	// Server configuration
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.BaseURL = getEnvRequired("BASE_URL")
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	// OIDC configuration
	cfg.OIDC.Issuer = getEnvRequired("OIDC_ISSUER")
	cfg.OIDC.ClientID = getEnvRequired("OIDC_CLIENT_ID")
	cfg.OIDC.ClientSecret = getEnvRequired("OIDC_CLIENT_SECRET")
	cfg.OIDC.RedirectURL = getEnvRequired("OIDC_REDIRECT_URL")

	// Security configuration
	cfg.Security.SessionSecret = getEnvRequired("SESSION_SECRET")
	if cfg.Security.SessionSecret != "" && len(cfg.Security.SessionSecret) < 32 {
		return nil, ErrSessionSecretSize
	}

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/gsvsync.db")

	// Redis configuration
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: REDIS_DB: %w", ErrInvalidConfig, err)
	}
	cfg.Redis.DB = redisDB

	// Calendar configuration
	cfg.Calendar.BaseURL = getEnv("CALENDAR_API_BASE_URL", "")
	cfg.Calendar.CalendarName = getEnv("CALENDAR_NAME", "GSV Calendar")
	cfg.Calendar.EventPrefix = getEnv("EVENT_PREFIX", "GSV")
	cfg.Calendar.TimeZone = getEnv("TIME_ZONE", "America/Sao_Paulo")

	// Pricing configuration
	rate, err := getEnvFloat("PRICING_HOURLY_RATE", 50.0)
	if err != nil {
		return nil, fmt.Errorf("%w: PRICING_HOURLY_RATE: %w", ErrInvalidConfig, err)
	}
	cfg.Pricing.HourlyRate = rate

	netFactor, err := getEnvFloat("PRICING_NET_FACTOR", 0.725)
	if err != nil {
		return nil, fmt.Errorf("%w: PRICING_NET_FACTOR: %w", ErrInvalidConfig, err)
	}
	if netFactor <= 0 || netFactor > 1 {
		return nil, fmt.Errorf("%w: PRICING_NET_FACTOR: must be in (0, 1]", ErrInvalidConfig)
	}
	cfg.Pricing.NetFactor = netFactor

	// Rate limiting configuration
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	// Sync configuration
	batchSize, err := getEnvInt("SYNC_BATCH_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_BATCH_SIZE: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.BatchSize = batchSize

	cfg.Sync.ConnectivityURL = getEnv("CONNECTIVITY_CHECK_URL", "https://www.googleapis.com/generate_204")

	probeInterval, err := getEnvInt("CONNECTIVITY_CHECK_INTERVAL", 30)
	if err != nil {
		return nil, fmt.Errorf("%w: CONNECTIVITY_CHECK_INTERVAL: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.ProbeInterval = time.Duration(probeInterval) * time.Second

	retention, err := getEnvInt("SYNC_RUN_RETENTION_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_RUN_RETENTION_DAYS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.RunRetentionDays = retention

	cleanupHours, err := getEnvInt("SYNC_RUN_CLEANUP_INTERVAL_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_RUN_CLEANUP_INTERVAL_HOURS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.CleanupInterval = time.Duration(cleanupHours) * time.Hour

	// Notification configuration
	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")

	// Check for missing required configuration
	missing := cfg.getMissingRequired()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getMissingRequired returns a list of missing required configuration values.
func (c *Config) getMissingRequired() []string {
	var missing []string

	if c.Server.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if c.OIDC.Issuer == "" {
		missing = append(missing, "OIDC_ISSUER")
	}
	if c.OIDC.ClientID == "" {
		missing = append(missing, "OIDC_CLIENT_ID")
	}
	if c.OIDC.ClientSecret == "" {
		missing = append(missing, "OIDC_CLIENT_SECRET")
	}
	if c.OIDC.RedirectURL == "" {
		missing = append(missing, "OIDC_REDIRECT_URL")
	}
	if c.Security.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	return missing
}

// Validate validates URL formats and that the OIDC issuer is reachable.
func (c *Config) Validate(ctx context.Context) error {
	v := validator.New()

	// Validate base URL format
	if err := v.ValidateURL(c.Server.BaseURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: BASE_URL: %w", ErrValidationFailed, err)
	}

	// Validate OIDC issuer is reachable
	if err := v.ValidateOIDCIssuer(ctx, c.OIDC.Issuer); err != nil {
		return fmt.Errorf("%w: OIDC_ISSUER: %w", ErrValidationFailed, err)
	}

	// Validate OIDC redirect URL format
	if err := v.ValidateURL(c.OIDC.RedirectURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: OIDC_REDIRECT_URL: %w", ErrValidationFailed, err)
	}

	// Validate calendar API base URL when overridden
	if c.Calendar.BaseURL != "" {
		if err := v.ValidateURL(c.Calendar.BaseURL, c.IsProduction()); err != nil {
			return fmt.Errorf("%w: CALENDAR_API_BASE_URL: %w", ErrValidationFailed, err)
		}
	}

	if _, err := time.LoadLocation(c.Calendar.TimeZone); err != nil {
		return fmt.Errorf("%w: TIME_ZONE: %w", ErrValidationFailed, err)
	}

	return nil
}

// Location returns the configured shift time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Calendar.TimeZone)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired returns the value of an environment variable.
// Returns empty string if not set (caller should check for required values).
func getEnvRequired(key string) string {
	return os.Getenv(key)
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}
