package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"eventsim/internal/domain/position"
	"eventsim/pkg/clickhouse"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Compile-time check
var _ position.MetricsRepository = (*PositionMetricsRepository)(nil)

// PositionMetricsTable is the default table name
const PositionMetricsTable = "position_metrics"

// PositionMetricsColumns is the column list of the position_metrics table
const PositionMetricsColumns = `
	event_id UUID,
	symbol LowCardinality(String),
	entry_timestamp DateTime64(3, 'UTC'),
	exit_timestamp DateTime64(3, 'UTC'),
	entry_price Decimal64(8),
	exit_price Decimal64(8),
	exit_reason LowCardinality(String),
	mfe Decimal64(8),
	mae Decimal64(8),
	mfe_pct Decimal64(4),
	mae_pct Decimal64(4),
	duration_ms Int64`

// PositionMetricsRepository buffers closed-position records and bulk inserts them
type PositionMetricsRepository struct {
	conn        driver.Conn
	table       string
	batchWriter *clickhouse.BatchWriter[position.Metrics]
	log         *logger.Logger
}

// NewPositionMetricsRepository creates a repository writing to table
func NewPositionMetricsRepository(conn driver.Conn, table string, log *logger.Logger) *PositionMetricsRepository {
	repo := &PositionMetricsRepository{
		conn:  conn,
		table: table,
		log:   log.With("component", "position_metrics_batch"),
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[position.Metrics]{
		FlushFunc:    repo.flushBatch,
		TableName:    table,
		MaxBatchSize: 200,
		MaxAge:       5 * time.Second,
		Logger:       log,
	})
	return repo
}

// EnsureTable creates the table when missing
func (r *PositionMetricsRepository) EnsureTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + r.table + ` (` + PositionMetricsColumns + `
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(exit_timestamp)
	ORDER BY (symbol, exit_timestamp)`

	return r.conn.Exec(ctx, query)
}

// Start begins the background flush loop
func (r *PositionMetricsRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes what is buffered and stops the loop
func (r *PositionMetricsRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Flush writes buffered records immediately
func (r *PositionMetricsRepository) Flush(ctx context.Context) error {
	return r.batchWriter.Flush(ctx)
}

// Insert buffers a record. It reaches ClickHouse on the next flush.
func (r *PositionMetricsRepository) Insert(ctx context.Context, m position.Metrics) error {
	return r.batchWriter.Add(ctx, m)
}

func (r *PositionMetricsRepository) flushBatch(ctx context.Context, batch []position.Metrics) error {
	if len(batch) == 0 {
		return nil
	}

	query := `
		INSERT INTO ` + r.table + ` (
			event_id, symbol,
			entry_timestamp, exit_timestamp,
			entry_price, exit_price, exit_reason,
			mfe, mae, mfe_pct, mae_pct,
			duration_ms
		)`

	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, m := range batch {
		err := stmt.Append(
			m.EventID, m.Symbol,
			m.EntryTimestamp, m.ExitTimestamp,
			m.EntryPrice, m.ExitPrice, string(m.ExitReason),
			m.MFE, m.MAE, m.MFEPct, m.MAEPct,
			m.Duration().Milliseconds(),
		)
		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	r.log.Debugw("position metrics inserted", "rows", len(batch), "took", time.Since(start))
	return nil
}
