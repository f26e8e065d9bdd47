package sqlbind

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
)

// CloseQuietly closes the given resource, ignoring nils and close errors
//
// intended for defers around rows, statements and connections where a close
// failure has nothing useful to add to the outcome
func CloseQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// RollbackQuietly rolls back the given transaction, ignoring nils and the
// sql.ErrTxDone raised when the transaction was already committed or rolled back
func RollbackQuietly(tx *sql.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

// CommitOrRollback commits the transaction when *errp is nil, otherwise rolls
// it back preserving the original error
//
// intended for use in a defer:
//
//	tx, err := db.BeginTx(ctx, nil)
//	...
//	defer sqlbind.CommitOrRollback(tx, &err)
func CommitOrRollback(tx *sql.Tx, errp *error) {
	if tx == nil {
		return
	}
	if errp != nil && *errp != nil {
		_ = tx.Rollback()
		return
	}
	if err := tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) && errp != nil {
		*errp = err
	}
}

// InTx begins a transaction, runs fn within it and commits - or rolls back if
// fn (or the commit) fails
//
// a rollback failure after fn has already failed is reported alongside fn's error
func InTx(ctx context.Context, b Beginner, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
