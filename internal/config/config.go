// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"closedloop-wallet/pkg/db" // Import db package for its Config struct

	"github.com/joho/godotenv"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	LogLevel   string
	DB         db.Config

	// AutoMigrate applies pending embedded migrations on startup.
	AutoMigrate bool

	// Wallet policy
	TreasuryName           string
	LockTimeout            time.Duration
	AllowTreasuryOverdraft bool

	// Optional infrastructure. Empty values disable the component.
	RedisURL       string
	IdempotencyTTL time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	// KafkaPublishTimeout bounds each post-commit event write.
	KafkaPublishTimeout time.Duration
}

// LoadEnv loads variables from a .env file if one is present. Variables already set in the
// environment win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
}

// LoadConfig loads configuration from environment variables.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	lockTimeout, err := getDurationEnv("LOCK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	idempotencyTTL, err := getDurationEnv("IDEMPOTENCY_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	publishTimeout, err := getDurationEnv("KAFKA_PUBLISH_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	allowOverdraft, err := getBoolEnv("ALLOW_TREASURY_OVERDRAFT", true)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := getBoolEnv("AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DB: db.Config{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"), // Default to localhost for local development
			Port:     dbPort,
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "walletdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		AutoMigrate:            autoMigrate,
		TreasuryName:           getEnv("TREASURY_ACCOUNT_NAME", "Treasury"),
		LockTimeout:            lockTimeout,
		AllowTreasuryOverdraft: allowOverdraft,
		RedisURL:               os.Getenv("REDIS_URL"),
		IdempotencyTTL:         idempotencyTTL,
		KafkaBrokers:           splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "wallet.transactions"),
		KafkaPublishTimeout:    publishTimeout,
	}, nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getBoolEnv(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getDurationEnv accepts Go durations ("750ms", "5s") and plain integers as seconds.
func getDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
