package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecutor abstracts the pgx pool surface the repositories use, so tests
// can substitute a mock pool.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgTxExecutor extends pgExecutor with transactions.
type pgTxExecutor interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}
