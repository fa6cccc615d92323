package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"kuji/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// HTTP server
	ServerPort  string
	CORSOrigins []string

	// Operator authentication
	JWTSecret      string
	JWTExpiryHours int

	// Board behaviour
	RecentDrawLimit int           // Draw history window shown in the control room
	RevealDelay     time.Duration // Pre-roll before the overlay mounts a result card

	// NATS configuration (empty disables the cross-instance relay)
	NATSServers string

	// Redis configuration (empty disables locks, cache and rate limiting)
	RedisURL          string
	DrawRatePerSecond int

	// Discord winner announcements
	DiscordToken     string
	DiscordChannelID string

	// Ledger reconciliation
	ReconcileSchedule string

	// Result card rendering
	CardFontPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL combines the base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// JWTExpiry returns the operator token lifetime
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryHours) * time.Hour
}

// load loads configuration from the environment, reading .env first when present
func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to read .env file")
	}

	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		ServerPort:  getEnvWithDefault("SERVER_PORT", "8080"),
		CORSOrigins: splitList(getEnvWithDefault("CORS_ORIGINS", "*")),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTExpiryHours: getIntWithDefault("JWT_EXPIRY_HOURS", 24),

		RecentDrawLimit: getIntWithDefault("RECENT_DRAW_LIMIT", 20),
		RevealDelay:     time.Duration(getIntWithDefault("REVEAL_DELAY_MS", 500)) * time.Millisecond,

		NATSServers: os.Getenv("NATS_SERVERS"),

		RedisURL:          os.Getenv("REDIS_URL"),
		DrawRatePerSecond: getIntWithDefault("DRAW_RATE_PER_SECOND", 5),

		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),

		ReconcileSchedule: getEnvWithDefault("RECONCILE_SCHEDULE", "@every 5m"),

		CardFontPath: os.Getenv("CARD_FONT_PATH"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}
	if config.RecentDrawLimit <= 0 {
		return nil, fmt.Errorf("RECENT_DRAW_LIMIT must be positive, got %d", config.RecentDrawLimit)
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.WithFields(log.Fields{
			"key":   key,
			"value": value,
		}).Warn("Ignoring non-numeric configuration value")
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		ServerPort:        "0",
		CORSOrigins:       []string{"*"},
		JWTSecret:         "test-secret-key",
		JWTExpiryHours:    1,
		RecentDrawLimit:   20,
		RevealDelay:       20 * time.Millisecond,
		DrawRatePerSecond: 5,
		ReconcileSchedule: "@every 5m",
		LogLevel:          "debug",
		LogFormat:         "text",
		Environment:       "test",
	}
}
