package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"eventsim/internal/adapters/clickhouse"
)

// ClickHouseTestHelper manages temporary tables for ClickHouse integration tests
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewTestClickHouse connects using TEST_CLICKHOUSE_*. Skips when unconfigured.
func NewTestClickHouse(t *testing.T) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(context.Background(), ClickHouseConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return &ClickHouseTestHelper{client: client}
}

// Client returns the connected client
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// CreateTempTable creates a MergeTree table with the given columns and drops it after the test
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, columns string) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, columns)
	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create clickhouse table: %v", err)
	}

	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})
	return table
}
