// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Sync     SyncConfig
	Realtime RealtimeConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort string
	Host     string
	Env      string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// CacheConfig holds profile cache tuning
type CacheConfig struct {
	ProfileTTL      time.Duration
	ProfileCapacity int
	MaxBatchSize    int
}

// SyncConfig holds availability sync tuning
type SyncConfig struct {
	GrantDebounce  time.Duration
	WindowDebounce time.Duration
	MaxRetries     int
}

// RealtimeConfig holds change-notification listener configuration
type RealtimeConfig struct {
	Channel      string
	MinReconnect time.Duration
	MaxReconnect time.Duration
	PingInterval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
// It optionally loads from a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Host:     getEnv("SERVER_HOST", "localhost"),
		Env:      getEnv("ENVIRONMENT", "development"),
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "meetmate"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "meetmate_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	profileCapacity, _ := strconv.Atoi(getEnv("PROFILE_CACHE_CAPACITY", "1000"))
	maxBatchSize, _ := strconv.Atoi(getEnv("PROFILE_MAX_BATCH_SIZE", "50"))

	cfg.Cache = CacheConfig{
		ProfileTTL:      getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		ProfileCapacity: profileCapacity,
		MaxBatchSize:    maxBatchSize,
	}

	maxRetries, _ := strconv.Atoi(getEnv("SYNC_MAX_RETRIES", "3"))

	cfg.Sync = SyncConfig{
		GrantDebounce:  getEnvDuration("SYNC_GRANT_DEBOUNCE", 500*time.Millisecond),
		WindowDebounce: getEnvDuration("SYNC_WINDOW_DEBOUNCE", 1*time.Second),
		MaxRetries:     maxRetries,
	}

	cfg.Realtime = RealtimeConfig{
		Channel:      getEnv("REALTIME_CHANNEL", "meetmate_changes"),
		MinReconnect: getEnvDuration("REALTIME_MIN_RECONNECT", 10*time.Second),
		MaxReconnect: getEnvDuration("REALTIME_MAX_RECONNECT", time.Minute),
		PingInterval: getEnvDuration("REALTIME_PING_INTERVAL", 90*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.Cache.ProfileTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTL must be positive")
	}
	if c.Cache.ProfileCapacity <= 0 {
		return fmt.Errorf("PROFILE_CACHE_CAPACITY must be positive")
	}
	if c.Cache.MaxBatchSize <= 0 {
		return fmt.Errorf("PROFILE_MAX_BATCH_SIZE must be positive")
	}

	if c.Sync.GrantDebounce <= 0 || c.Sync.WindowDebounce <= 0 {
		return fmt.Errorf("sync debounce windows must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("SYNC_MAX_RETRIES must not be negative")
	}

	if c.Realtime.Channel == "" {
		return fmt.Errorf("REALTIME_CHANNEL is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "500ms", "5m") with a fallback default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
