package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"SERVER_PORT", "LOG_LEVEL", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD",
	"DB_NAME", "DB_SSLMODE", "AUTO_MIGRATE", "TREASURY_ACCOUNT_NAME", "LOCK_TIMEOUT",
	"ALLOW_TREASURY_OVERDRAFT", "REDIS_URL", "IDEMPOTENCY_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"KAFKA_PUBLISH_TIMEOUT",
}

// clearEnv blanks every key so the host environment cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.DB.URL)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "Treasury", cfg.TreasuryName)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.True(t, cfg.AllowTreasuryOverdraft)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 30*time.Second, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "wallet.transactions", cfg.KafkaTopic)
	assert.Equal(t, 2*time.Second, cfg.KafkaPublishTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/wallet?sslmode=disable")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("TREASURY_ACCOUNT_NAME", "Vault")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("ALLOW_TREASURY_OVERDRAFT", "false")
	t.Setenv("AUTO_MIGRATE", "0")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("IDEMPOTENCY_TTL", "10")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC", "ledger")
	t.Setenv("KAFKA_PUBLISH_TIMEOUT", "500ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "postgres://u:p@db:5432/wallet?sslmode=disable", cfg.DB.DSN())
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "Vault", cfg.TreasuryName)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.False(t, cfg.AllowTreasuryOverdraft)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 10*time.Second, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "ledger", cfg.KafkaTopic)
	assert.Equal(t, 500*time.Millisecond, cfg.KafkaPublishTimeout)
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DB_PORT", "abc"},
		{"LOCK_TIMEOUT", "soon"},
		{"LOCK_TIMEOUT", "-1s"},
		{"IDEMPOTENCY_TTL", "forever"},
		{"KAFKA_PUBLISH_TIMEOUT", "later"},
		{"ALLOW_TREASURY_OVERDRAFT", "maybe"},
		{"AUTO_MIGRATE", "perhaps"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadConfig()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadEnvFromFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("KAFKA_TOPIC")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KAFKA_TOPIC=from-dotenv\nSERVER_PORT=7070\n"), 0o600))
	t.Setenv("SERVER_PORT", "6060")
	t.Cleanup(func() { os.Unsetenv("KAFKA_TOPIC") })

	LoadEnv(path)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.KafkaTopic)
	// Existing variables are not overwritten.
	assert.Equal(t, "6060", cfg.ServerPort)
}

func TestLoadEnvMissingFileIsNotFatal(t *testing.T) {
	assert.NotPanics(t, func() { LoadEnv(filepath.Join(t.TempDir(), "missing.env")) })
}
