package sqlbind

import (
	"context"
	"database/sql"
)

// SqlInterface is the query surface required by mappers and binders - it is
// implemented by *sql.DB, *sql.Tx and *sql.Conn
type SqlInterface interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer is the statement execution surface used by Runner and the async
// helpers - implemented by *sql.DB, *sql.Tx and *sql.Conn
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Beginner starts transactions (see InTx) - implemented by *sql.DB and *sql.Conn
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
