package postgres

import (
	"context"
	"database/sql"
	_ "embed"
)

// DBTX is a common interface for *sqlx.DB and *sqlx.Tx.
// Repositories take it so tests can run inside a rolled-back transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

//go:embed schema.sql
var schema string

// EnsureSchema creates the journal tables when missing
func EnsureSchema(ctx context.Context, db DBTX) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
