package sqlbind

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Mapper is the interface returned by NewMapper / MustNewMapper - it owns a
// column list, an optional default query and a Binder, and reads rows into `T`
type Mapper[T any] interface {
	// Rows reads all rows and binds them into a slice of `T`
	//
	// options can be any of: Query, AddClause, PostProcessor[T], Limiter or ErrorTranslator
	Rows(ctx context.Context, sqli SqlInterface, args []any, options ...any) ([]T, error)
	// Iterate iterates over the rows and calls the supplied handler with each row
	//
	// iteration stops at the end of rows - or an error is encountered - or the supplied handler returns false for `cont` (continue)
	Iterate(ctx context.Context, sqli SqlInterface, args []any, handler func(row T) (cont bool, err error), options ...any) error
	// Iterator returns an iterator that can be ranged over
	//
	// the read is lazy and single-pass; any error ends the iteration
	Iterator(ctx context.Context, sqli SqlInterface, args []any, options ...any) func(func(int, T) bool)
	// FirstRow reads just the first row and binds it into a `T`
	//
	// if there are no rows, returns nil
	FirstRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (*T, error)
	// ExactlyOneRow reads exactly one row and binds it into a `T`
	//
	// if there are no rows, returns error sql.ErrNoRows
	ExactlyOneRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (T, error)
}

// NewMapper creates a new mapper for reading rows into struct type T
//
// schema may be nil, in which case it is derived from T's struct tags (see DeriveSchema)
//
// options can be any of: Query, PostProcessor[T], Strict, ErrorOnUnmatchedColumns,
// UseTagName (only when deriving) or ErrorTranslator
func NewMapper[T any](cols string, schema *Schema[T], options ...any) (Mapper[T], error) {
	m := &mapper[T]{
		cols:            cols,
		errorTranslator: defaultErrorTranslator,
	}
	var binderOptions []any
	var deriveOptions []any
	seenQuery := false
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case Query:
				if seenQuery {
					return nil, errors.New("cannot use multiple default queries")
				}
				seenQuery = true
				if err := checkForgedColumns(option); err != nil {
					return nil, err
				}
				qStr := Query("SELECT " + m.cols + " " + string(option))
				m.defaultQuery = &qStr
			case PostProcessor[T]:
				m.postProcessors = append(m.postProcessors, option)
			case ErrorTranslator:
				m.errorTranslator = option
			case Strict, ErrorOnUnmatchedColumns:
				binderOptions = append(binderOptions, option)
			case UseTagName:
				deriveOptions = append(deriveOptions, option)
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	if schema == nil {
		var err error
		if schema, err = DeriveSchema[T](deriveOptions...); err != nil {
			return nil, err
		}
	} else if len(deriveOptions) > 0 {
		return nil, errors.New("cannot use UseTagName with an explicit schema")
	}
	binder, err := NewBinder[T](schema, binderOptions...)
	if err != nil {
		return nil, err
	}
	m.binder = binder
	return m, nil
}

// MustNewMapper is the same as NewMapper, except it panics on error
func MustNewMapper[T any](cols string, schema *Schema[T], options ...any) Mapper[T] {
	result, err := NewMapper[T](cols, schema, options...)
	if err != nil {
		panic(err)
	}
	return result
}

type mapper[T any] struct {
	cols            string
	defaultQuery    *Query
	binder          *Binder[T]
	postProcessors  []PostProcessor[T]
	errorTranslator ErrorTranslator
	// column map cached on first read - results read through one mapper are
	// assumed to share one shape
	mu       sync.RWMutex
	mapped   bool
	columns  []string
	colMap   []int
	mapError error
}

var _ Mapper[struct{ X int }] = (*mapper[struct{ X int }])(nil)

func (m *mapper[T]) Rows(ctx context.Context, sqli SqlInterface, args []any, options ...any) (result []T, err error) {
	query, postProcessors, limiter, translator, err := m.readOptions(options)
	if err != nil {
		return nil, err
	}
	rows, err := sqli.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, translator)
	}
	defer func() {
		_ = rows.Close()
	}()
	columns, colMap, err := m.getColumnMap(rows)
	if err != nil {
		return nil, translateError(err, translator)
	}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	result = make([]T, 0)
	rowCount := 0
	for rows.Next() {
		rowCount++
		if limiter.LimitReached(rowCount) {
			break
		}
		var item T
		if item, err = m.readRow(ctx, sqli, rows, columns, colMap, values, scanArgs, len(result), postProcessors); err != nil {
			return nil, translateError(err, translator)
		}
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, translateError(err, translator)
	}
	return result, nil
}

func (m *mapper[T]) Iterate(ctx context.Context, sqli SqlInterface, args []any, handler func(row T) (cont bool, err error), options ...any) (err error) {
	query, postProcessors, _, translator, err := m.readOptions(options)
	if err != nil {
		return err
	}
	rows, err := sqli.QueryContext(ctx, query, args...)
	if err != nil {
		return translateError(err, translator)
	}
	defer func() {
		_ = rows.Close()
	}()
	columns, colMap, err := m.getColumnMap(rows)
	if err != nil {
		return translateError(err, translator)
	}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	cont := true
	ordinal := 0
	for cont && rows.Next() {
		var item T
		if item, err = m.readRow(ctx, sqli, rows, columns, colMap, values, scanArgs, ordinal, postProcessors); err != nil {
			return translateError(err, translator)
		}
		ordinal++
		if cont, err = handler(item); err != nil {
			return translateError(err, translator)
		}
	}
	return translateError(rows.Err(), translator)
}

func (m *mapper[T]) Iterator(ctx context.Context, sqli SqlInterface, args []any, options ...any) func(func(int, T) bool) {
	return func(yield func(int, T) bool) {
		i := 0
		_ = m.Iterate(ctx, sqli, args, func(row T) (bool, error) {
			cont := yield(i, row)
			i++
			return cont, nil
		}, options...)
	}
}

func (m *mapper[T]) FirstRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (result *T, err error) {
	query, postProcessors, _, translator, err := m.readOptions(options)
	if err != nil {
		return nil, err
	}
	rows, err := sqli.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, translator)
	}
	defer func() {
		_ = rows.Close()
	}()
	columns, colMap, err := m.getColumnMap(rows)
	if err != nil {
		return nil, translateError(err, translator)
	}
	if rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		var item T
		if item, err = m.readRow(ctx, sqli, rows, columns, colMap, values, scanArgs, 0, postProcessors); err != nil {
			return nil, translateError(err, translator)
		}
		result = &item
	}
	return result, translateError(rows.Err(), translator)
}

func (m *mapper[T]) ExactlyOneRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (result T, err error) {
	query, postProcessors, _, translator, err := m.readOptions(options)
	if err != nil {
		return result, err
	}
	rows, err := sqli.QueryContext(ctx, query, args...)
	if err != nil {
		return result, translateError(err, translator)
	}
	defer func() {
		_ = rows.Close()
	}()
	columns, colMap, err := m.getColumnMap(rows)
	if err != nil {
		return result, translateError(err, translator)
	}
	if !rows.Next() {
		if err = rows.Err(); err == nil {
			err = sql.ErrNoRows
		}
		return result, translateError(err, translator)
	}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	if result, err = m.readRow(ctx, sqli, rows, columns, colMap, values, scanArgs, 0, postProcessors); err != nil {
		return result, translateError(err, translator)
	}
	return result, nil
}

func (m *mapper[T]) readRow(ctx context.Context, sqli SqlInterface, rows *sql.Rows, columns []string, colMap []int, values []any, scanArgs []any, ordinal int, postProcessors []PostProcessor[T]) (item T, err error) {
	if err = rows.Scan(scanArgs...); err != nil {
		return item, err
	}
	if item, err = m.binder.bindRow(ordinal, columns, values, colMap); err != nil {
		return item, err
	}
	for _, pp := range postProcessors {
		if err = pp.PostProcess(ctx, sqli, &item); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (m *mapper[T]) readOptions(options []any) (query string, postProcessors []PostProcessor[T], limiter Limiter, translator ErrorTranslator, err error) {
	querySet := false
	postProcessors = append(postProcessors, m.postProcessors...)
	limiter = defaultLimiter
	translator = m.errorTranslator
	var qb strings.Builder
	if m.defaultQuery != nil {
		querySet = true
		qb.WriteString(string(*m.defaultQuery))
	}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case Query:
				querySet = true
				qb.Reset()
				if err = checkForgedColumns(option); err != nil {
					return
				}
				qb.WriteString("SELECT " + m.cols + " " + string(option))
			case AddClause:
				if !querySet {
					err = errors.New("add clause must have a query set")
					return
				}
				qb.WriteString(" " + string(option))
			case PostProcessor[T]:
				postProcessors = append(postProcessors, option)
			case Limiter:
				limiter = option
			case ErrorTranslator:
				translator = option
			default:
				err = fmt.Errorf("unknown option type: %T", o)
				return
			}
		}
	}
	if !querySet {
		err = errors.New("no default query")
	}
	return qb.String(), postProcessors, limiter, translator, err
}

func checkForgedColumns(query Query) error {
	if strings.HasPrefix(strings.TrimLeft(string(query), " \t\r\n"), ",") {
		return errors.New("cannot forge extra columns using Query")
	}
	return nil
}

// getColumnMap resolves (and caches) the column-to-field map for the result -
// computed once from the first result's metadata and reused thereafter
func (m *mapper[T]) getColumnMap(rows *sql.Rows) ([]string, []int, error) {
	m.mu.RLock()
	if m.mapped {
		m.mu.RUnlock()
		return m.columns, m.colMap, m.mapError
	}
	m.mu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mapped {
		return m.columns, m.colMap, m.mapError
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	m.mapped = true
	m.columns = columns
	m.colMap = m.binder.schema.columnMap(columns)
	m.mapError = m.binder.checkUnmatched(columns, m.colMap)
	return m.columns, m.colMap, m.mapError
}
