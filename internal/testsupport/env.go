package testsupport

import (
	"os"
	"strconv"
	"testing"

	"eventsim/internal/adapters/config"
)

// requireEnv skips the test when any of the keys is unset
func requireEnv(t *testing.T, keys ...string) {
	t.Helper()

	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}

// PostgresConfigFromEnv reads postgres settings for integration tests
func PostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	requireEnv(t, "TEST_POSTGRES_HOST", "TEST_POSTGRES_USER", "TEST_POSTGRES_DB")

	return config.PostgresConfig{
		Host:     os.Getenv("TEST_POSTGRES_HOST"),
		Port:     intValue("TEST_POSTGRES_PORT", 5432),
		User:     os.Getenv("TEST_POSTGRES_USER"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
		Database: os.Getenv("TEST_POSTGRES_DB"),
		SSLMode:  valueWithDefault("TEST_POSTGRES_SSL_MODE", "disable"),
		MaxConns: 4,
	}
}

// ClickHouseConfigFromEnv reads clickhouse settings for integration tests
func ClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	requireEnv(t, "TEST_CLICKHOUSE_HOST", "TEST_CLICKHOUSE_DB")

	return config.ClickHouseConfig{
		Host:     os.Getenv("TEST_CLICKHOUSE_HOST"),
		Port:     intValue("TEST_CLICKHOUSE_PORT", 9000),
		User:     valueWithDefault("TEST_CLICKHOUSE_USER", "default"),
		Password: os.Getenv("TEST_CLICKHOUSE_PASSWORD"),
		Database: os.Getenv("TEST_CLICKHOUSE_DB"),
	}
}

// RedisConfigFromEnv reads redis settings for integration tests
func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	requireEnv(t, "TEST_REDIS_HOST")

	return config.RedisConfig{
		Host:      os.Getenv("TEST_REDIS_HOST"),
		Port:      intValue("TEST_REDIS_PORT", 6379),
		Password:  os.Getenv("TEST_REDIS_PASSWORD"),
		DB:        intValue("TEST_REDIS_DB", 15),
		KeyPrefix: "eventsim:test:fp:",
	}
}

func valueWithDefault(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intValue(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
