package sqlbind

import (
	"context"
	"database/sql"
	"fmt"
)

// DB is the combined query/exec surface required by Runner - implemented by
// *sql.DB, *sql.Tx and *sql.Conn
type DB interface {
	SqlInterface
	Execer
}

// Runner wraps a DB with statement execution conveniences and error translation
//
// A Runner is immutable after construction and safe for concurrent use
type Runner struct {
	db              DB
	errorTranslator ErrorTranslator
}

// NewRunner creates a Runner over the given DB
//
// options can be any of: ErrorTranslator
func NewRunner(db DB, options ...any) (*Runner, error) {
	result := &Runner{
		db:              db,
		errorTranslator: defaultErrorTranslator,
	}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case ErrorTranslator:
				result.errorTranslator = option
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	return result, nil
}

// MustNewRunner is the same as NewRunner, except it panics on error
func MustNewRunner(db DB, options ...any) *Runner {
	r, err := NewRunner(db, options...)
	if err != nil {
		panic(err)
	}
	return r
}

// DB returns the wrapped DB
func (r *Runner) DB() DB {
	return r.db
}

// Exec executes a statement that returns no rows (INSERT, UPDATE, DELETE, DDL)
func (r *Runner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	return result, translateError(err, r.errorTranslator)
}

// Batch executes the same statement once per arg set, returning the affected
// row count of each execution in order
//
// the first failing execution aborts the batch - arg sets after it are not executed
func (r *Runner) Batch(ctx context.Context, query string, argSets [][]any) ([]int64, error) {
	affected := make([]int64, 0, len(argSets))
	for i, args := range argSets {
		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return affected, translateError(fmt.Errorf("batch arg set %d: %w", i, err), r.errorTranslator)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return affected, translateError(err, r.errorTranslator)
		}
		affected = append(affected, n)
	}
	return affected, nil
}

// Select executes the query and binds all result rows into a slice of T
//
// zero rows yields an empty (non-nil) slice
func Select[T any](ctx context.Context, sqli SqlInterface, binder *Binder[T], query string, args ...any) (result []T, err error) {
	rows, err := sqli.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return binder.BindAll(rows)
}

// Get executes the query and binds the first result row into a T
//
// if there are no rows, returns error sql.ErrNoRows; rows beyond the first are
// ignored - use LIMIT 1 (or equivalent) when you require at-most-one row
func Get[T any](ctx context.Context, sqli SqlInterface, binder *Binder[T], query string, args ...any) (result T, err error) {
	rows, err := sqli.QueryContext(ctx, query, args...)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	item, err := binder.BindFirst(rows)
	if err != nil {
		return result, err
	}
	if item == nil {
		return result, sql.ErrNoRows
	}
	return *item, nil
}
