package sqlbind

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Strict is a type that can be passed as an option to NewBinder or NewMapper
// and determines whether a non-null value whose type does not fit the field
// fails the row instead of being silently skipped
type Strict bool

// ErrorOnUnmatchedColumns is a type that can be passed as an option to NewBinder
// or NewMapper and determines whether an error is raised when the result set
// contains columns that match no schema field
type ErrorOnUnmatchedColumns bool

// BindError is the error returned when a single row cannot be bound - it
// identifies the row (0-based, in result order) and column and wraps the cause
type BindError struct {
	Row    int
	Column string
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("sqlbind: binding row %d column %q: %v", e.Row, e.Column, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Binder binds individual rows (or whole result sets) to values of struct
// type T according to a Schema
//
// A Binder is immutable after construction and safe for concurrent use -
// column maps are computed per result set, never stored on the Binder
type Binder[T any] struct {
	schema           *Schema[T]
	strict           bool
	errorOnUnmatched bool
}

// NewBinder creates a Binder for the given schema
//
// options can be any of: Strict, ErrorOnUnmatchedColumns
func NewBinder[T any](schema *Schema[T], options ...any) (*Binder[T], error) {
	if schema == nil {
		return nil, errors.New("sqlbind: Binder requires a schema")
	}
	result := &Binder[T]{schema: schema}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case Strict:
				result.strict = bool(option)
			case ErrorOnUnmatchedColumns:
				result.errorOnUnmatched = bool(option)
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	return result, nil
}

// MustNewBinder is the same as NewBinder, except it panics on error
func MustNewBinder[T any](schema *Schema[T], options ...any) *Binder[T] {
	b, err := NewBinder[T](schema, options...)
	if err != nil {
		panic(err)
	}
	return b
}

// BindRow binds one already-fetched row
//
// columns and values are parallel slices (as produced by sql.Rows.Columns and
// scanning each column into an any); the column-to-field map is computed from
// the column names - callers binding many rows of the same shape should prefer
// BindAll or Iterate, which compute it once
func (b *Binder[T]) BindRow(columns []string, values []any) (T, error) {
	var zero T
	if len(columns) != len(values) {
		return zero, fmt.Errorf("sqlbind: %d columns but %d values", len(columns), len(values))
	}
	colMap := b.schema.columnMap(columns)
	if err := b.checkUnmatched(columns, colMap); err != nil {
		return zero, err
	}
	return b.bindRow(0, columns, values, colMap)
}

// BindAll reads all remaining rows and binds each to a T, preserving row order
//
// The column-to-field map is computed once from the result metadata and reused
// for every row - all rows of one result set must share identical column order
// and names. Zero rows yields an empty (non-nil) slice. The first row that
// fails to bind aborts the whole read
func (b *Binder[T]) BindAll(rows *sql.Rows) ([]T, error) {
	columns, colMap, values, scanArgs, err := b.prepare(rows)
	if err != nil {
		return nil, err
	}
	result := make([]T, 0)
	for rows.Next() {
		if err = rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		item, err := b.bindRow(len(result), columns, values, colMap)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// BindFirst reads and binds just the first row
//
// if there are no rows, returns nil
func (b *Binder[T]) BindFirst(rows *sql.Rows) (*T, error) {
	columns, colMap, values, scanArgs, err := b.prepare(rows)
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	if err = rows.Scan(scanArgs...); err != nil {
		return nil, err
	}
	item, err := b.bindRow(0, columns, values, colMap)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Iterate reads rows and calls the supplied handler with each bound row
//
// iteration stops at the end of rows - or an error is encountered - or the
// supplied handler returns false for `cont` (continue). The read is lazy and
// single-pass: rows are consumed as the iteration advances
func (b *Binder[T]) Iterate(rows *sql.Rows, handler func(row T) (cont bool, err error)) error {
	columns, colMap, values, scanArgs, err := b.prepare(rows)
	if err != nil {
		return err
	}
	cont := true
	ordinal := 0
	for cont && rows.Next() {
		if err = rows.Scan(scanArgs...); err != nil {
			return err
		}
		var item T
		if item, err = b.bindRow(ordinal, columns, values, colMap); err != nil {
			return err
		}
		ordinal++
		if cont, err = handler(item); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Iter returns a lazy, single-pass iterator over the bound rows, yielding each
// row with its ordinal
//
// iteration ends at the first error - use Iterate when the error is needed
func (b *Binder[T]) Iter(rows *sql.Rows) func(func(int, T) bool) {
	return func(yield func(int, T) bool) {
		i := 0
		_ = b.Iterate(rows, func(row T) (bool, error) {
			cont := yield(i, row)
			i++
			return cont, nil
		})
	}
}

// prepare computes the column-to-field map for the result set and the scan
// destinations reused for every row of it
func (b *Binder[T]) prepare(rows *sql.Rows) (columns []string, colMap []int, values []any, scanArgs []any, err error) {
	if columns, err = rows.Columns(); err != nil {
		return nil, nil, nil, nil, err
	}
	colMap = b.schema.columnMap(columns)
	if err = b.checkUnmatched(columns, colMap); err != nil {
		return nil, nil, nil, nil, err
	}
	values = make([]any, len(columns))
	scanArgs = make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	return columns, colMap, values, scanArgs, nil
}

func (b *Binder[T]) checkUnmatched(columns []string, colMap []int) error {
	if !b.errorOnUnmatched {
		return nil
	}
	var unmatched []string
	for i, fi := range colMap {
		if fi == notFound {
			unmatched = append(unmatched, columns[i])
		}
	}
	if len(unmatched) > 0 {
		return fmt.Errorf("sqlbind: unmatched column(s): %q", unmatched)
	}
	return nil
}

// bindRow materializes one row - allocate a zero T, then for each column: skip
// unmatched columns, substitute nulls, check the value fits the field and
// invoke the setter. Type mismatches are silently skipped (unless Strict);
// setter failures abort the row
func (b *Binder[T]) bindRow(ordinal int, columns []string, values []any, colMap []int) (T, error) {
	var result T
	for i, fi := range colMap {
		if fi == notFound {
			continue
		}
		fld := &b.schema.fields[fi]
		value, ok := coerce(fld.kind, values[i])
		if !ok {
			if b.strict {
				return result, &BindError{Row: ordinal, Column: columns[i],
					Err: fmt.Errorf("value of type %T does not fit %s field %q", values[i], fld.kind, fld.name)}
			}
			continue
		}
		if err := fld.set(&result, value); err != nil {
			return result, &BindError{Row: ordinal, Column: columns[i], Err: err}
		}
	}
	return result, nil
}

// coerce decides whether a raw driver value may populate a field of the given
// kind and normalises it to the value passed to the field setter
//
// nil is always compatible - value kinds receive their zero value, nullable
// kinds a typed nil pointer (see nullValue). Otherwise the value's runtime
// type must be the kind's canonical driver type; there is no numeric widening
// or narrowing (an int64 never populates a float64 field, or vice versa)
func coerce(kind Kind, raw any) (any, bool) {
	if raw == nil {
		return nullValue(kind), true
	}
	switch kind {
	case KindAny, KindScan:
		return raw, true
	case KindString:
		switch v := raw.(type) {
		case string:
			return v, true
		case []byte:
			return string(v), true
		}
	case KindInt64:
		if v, ok := raw.(int64); ok {
			return v, true
		}
	case KindFloat64:
		if v, ok := raw.(float64); ok {
			return v, true
		}
	case KindBool:
		if v, ok := raw.(bool); ok {
			return v, true
		}
	case KindTime:
		if v, ok := raw.(time.Time); ok {
			return v, true
		}
	case KindBytes:
		if v, ok := raw.([]byte); ok {
			return v, true
		}
	case KindNullString:
		switch v := raw.(type) {
		case string:
			return &v, true
		case []byte:
			s := string(v)
			return &s, true
		}
	case KindNullInt64:
		if v, ok := raw.(int64); ok {
			return &v, true
		}
	case KindNullFloat64:
		if v, ok := raw.(float64); ok {
			return &v, true
		}
	case KindNullBool:
		if v, ok := raw.(bool); ok {
			return &v, true
		}
	case KindNullTime:
		if v, ok := raw.(time.Time); ok {
			return &v, true
		}
	}
	return nil, false
}

// nullValue is what a SQL NULL becomes for each kind - the zero value for
// value kinds (a plain field is never left unset), a typed nil pointer for
// nullable kinds and nil itself for KindAny/KindScan
func nullValue(kind Kind) any {
	switch kind {
	case KindString:
		return ""
	case KindInt64:
		return int64(0)
	case KindFloat64:
		return float64(0)
	case KindBool:
		return false
	case KindTime:
		return time.Time{}
	case KindBytes:
		return []byte(nil)
	case KindNullString:
		return (*string)(nil)
	case KindNullInt64:
		return (*int64)(nil)
	case KindNullFloat64:
		return (*float64)(nil)
	case KindNullBool:
		return (*bool)(nil)
	case KindNullTime:
		return (*time.Time)(nil)
	}
	return nil
}
