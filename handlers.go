package sqlbind

import (
	"database/sql"
	"fmt"
)

// Array reads just the first row and returns its cells as a slice, in column order
//
// if there are no rows, returns nil
func Array(rows *sql.Rows) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanCells(rows, len(columns))
}

// ArrayList reads all rows and returns each as a slice of cells, preserving row order
//
// zero rows yields an empty (non-nil) slice
func ArrayList(rows *sql.Rows) ([][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := make([][]any, 0)
	for rows.Next() {
		row, err := scanCells(rows, len(columns))
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanCells(rows *sql.Rows, count int) ([]any, error) {
	values := make([]any, count)
	scanArgs := make([]any, count)
	for i := range values {
		scanArgs[i] = &values[i]
	}
	if err := rows.Scan(scanArgs...); err != nil {
		return nil, err
	}
	return values, nil
}

// Column reads all rows of a single-column result into a slice of T
//
// a result with more (or fewer) than one column is an error
func Column[T any](rows *sql.Rows) ([]T, error) {
	if err := requireOneColumn(rows); err != nil {
		return nil, err
	}
	result := make([]T, 0)
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Scalar reads the single cell of the first row of a single-column result
//
// if there are no rows, returns error sql.ErrNoRows
func Scalar[T any](rows *sql.Rows) (result T, err error) {
	if err = requireOneColumn(rows); err != nil {
		return result, err
	}
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return result, err
		}
		return result, sql.ErrNoRows
	}
	err = rows.Scan(&result)
	return result, err
}

func requireOneColumn(rows *sql.Rows) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	if len(columns) != 1 {
		return fmt.Errorf("sqlbind: expected a single column result, got %d columns", len(columns))
	}
	return nil
}

// Keyed reads all rows, binds each with the supplied binder and returns them
// keyed by the supplied key func
//
// when two rows produce the same key, the later row wins
func Keyed[K comparable, T any](rows *sql.Rows, binder *Binder[T], key func(row T) K) (map[K]T, error) {
	result := make(map[K]T)
	err := binder.Iterate(rows, func(row T) (bool, error) {
		result[key(row)] = row
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
