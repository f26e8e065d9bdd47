package sqlbind

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// RowMapper is the interface returned by NewRowMapper / MustNewRowMapper - it
// reads rows into `map[string]any` (use Mapper for typed struct reads)
type RowMapper interface {
	// Rows reads all rows and maps them into a slice of `map[string]any`
	//
	// options can be any of: Query, AddClause, Mappings, RowPostProcessor, Limiter or ErrorTranslator
	Rows(ctx context.Context, sqli SqlInterface, args []any, options ...any) ([]map[string]any, error)
	// FirstRow reads just the first row and maps it into a `map[string]any`
	//
	// if there are no rows, returns nil
	FirstRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (map[string]any, error)
	// ExactlyOneRow reads exactly one row and maps it into a `map[string]any`
	//
	// if there are no rows, returns error sql.ErrNoRows
	ExactlyOneRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (map[string]any, error)
	// Iterate iterates over the rows and calls the supplied handler with each row
	//
	// iteration stops at the end of rows - or an error is encountered - or the supplied handler returns false for `cont` (continue)
	Iterate(ctx context.Context, sqli SqlInterface, args []any, handler func(row map[string]any) (cont bool, err error), options ...any) error
}

// UseDecimals is an option that determines whether float/numeric/decimal columns
// should be mapped as decimal.Decimal properties
//
// by default, RowMapper will convert float/numeric/decimal columns to decimal.Decimal
type UseDecimals bool

// NewRowMapper creates a new row mapper for the given columns
//
// options can be any of: Mappings, Query, RowPostProcessor, UseDecimals or ErrorTranslator
func NewRowMapper[T string | []string](columns T, options ...any) (RowMapper, error) {
	return newRowMapper(columns, options...)
}

// MustNewRowMapper is the same as NewRowMapper, except it panics on error
func MustNewRowMapper[T string | []string](columns T, options ...any) RowMapper {
	m, err := NewRowMapper[T](columns, options...)
	if err != nil {
		panic(err)
	}
	return m
}

func newRowMapper(cols any, options ...any) (*rowMapper, error) {
	result := &rowMapper{
		mappings:        Mappings{},
		useDecimals:     true,
		errorTranslator: defaultErrorTranslator,
	}
	switch ct := cols.(type) {
	case string:
		result.cols = ct
	case []string:
		result.cols = strings.Join(ct, ",")
	}
	if err := result.addOptions(options...); err != nil {
		return nil, err
	}
	return result, nil
}

type rowMapper struct {
	mutex             sync.RWMutex
	cols              string
	shape             *rowShape
	mappings          Mappings
	rowPostProcessors []RowPostProcessor
	defaultQuery      *Query
	useDecimals       bool
	errorTranslator   ErrorTranslator
}

var _ RowMapper = (*rowMapper)(nil)

func (m *rowMapper) addOptions(options ...any) error {
	seenQuery := false
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case RowPostProcessor:
				m.rowPostProcessors = append(m.rowPostProcessors, option)
			case Query:
				if seenQuery {
					return errors.New("cannot use multiple default queries")
				}
				seenQuery = true
				qStr := Query("SELECT " + m.cols + " " + string(option))
				m.defaultQuery = &qStr
			case UseDecimals:
				m.useDecimals = bool(option)
			case Mappings:
				for k, v := range option {
					m.mappings[k] = v
				}
			case ErrorTranslator:
				m.errorTranslator = option
			default:
				return fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	return nil
}

func (m *rowMapper) Rows(ctx context.Context, sqli SqlInterface, args []any, options ...any) (result []map[string]any, err error) {
	query, mappings, postProcesses, limiter, translator, err := m.readOptions(options...)
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
	var reader *shapeReader
	if reader, err = m.mapColumns(rows, mappings); err == nil {
		result = make([]map[string]any, 0)
		var row map[string]any
		rowCount := 0
		for rows.Next() {
			rowCount++
			if limiter.LimitReached(rowCount) {
				break
			}
			if row, err = m.mapRow(ctx, sqli, rows, reader, mappings, postProcesses); err == nil {
				result = append(result, row)
			} else {
				return nil, translateError(err, translator)
			}
		}
		if err == nil {
			err = rows.Err()
		}
	}
	return result, translateError(err, translator)
}

func (m *rowMapper) FirstRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (result map[string]any, err error) {
	query, mappings, postProcesses, _, translator, err := m.readOptions(options...)
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
	if rows.Next() {
		var reader *shapeReader
		if reader, err = m.mapColumns(rows, mappings); err == nil {
			result, err = m.mapRow(ctx, sqli, rows, reader, mappings, postProcesses)
		}
	} else {
		err = rows.Err()
	}
	return result, translateError(err, translator)
}

func (m *rowMapper) ExactlyOneRow(ctx context.Context, sqli SqlInterface, args []any, options ...any) (result map[string]any, err error) {
	query, mappings, postProcesses, _, translator, err := m.readOptions(options...)
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
	if rows.Next() {
		var reader *shapeReader
		if reader, err = m.mapColumns(rows, mappings); err == nil {
			result, err = m.mapRow(ctx, sqli, rows, reader, mappings, postProcesses)
		}
	} else if err = rows.Err(); err == nil {
		err = sql.ErrNoRows
	}
	return result, translateError(err, translator)
}

func (m *rowMapper) Iterate(ctx context.Context, sqli SqlInterface, args []any, handler func(row map[string]any) (cont bool, err error), options ...any) (err error) {
	query, mappings, postProcesses, _, translator, err := m.readOptions(options...)
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
	var reader *shapeReader
	if reader, err = m.mapColumns(rows, mappings); err == nil {
		var row map[string]any
		cont := true
		for rows.Next() && cont && err == nil {
			if row, err = m.mapRow(ctx, sqli, rows, reader, mappings, postProcesses); err == nil {
				cont, err = handler(row)
			}
		}
		if err == nil {
			err = rows.Err()
		}
	}
	return translateError(err, translator)
}

func (m *rowMapper) readOptions(options ...any) (query string, mappings Mappings, postProcesses []RowPostProcessor, limiter Limiter, translator ErrorTranslator, err error) {
	mappings = m.mappings
	mappingsCopied := false
	querySet := false
	postProcesses = append(postProcesses, m.rowPostProcessors...)
	limiter = defaultLimiter
	translator = m.errorTranslator
	if m.defaultQuery != nil {
		querySet = true
		query = string(*m.defaultQuery)
	}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case Query:
				querySet = true
				query = "SELECT " + m.cols + " " + string(option)
			case AddClause:
				if !querySet {
					err = errors.New("add clause must have a query set")
					return
				}
				query += " " + string(option)
			case Mappings:
				if !mappingsCopied {
					mappingsCopied = true
					mappings = m.copyMappings()
				}
				for k, v := range option {
					mappings[k] = v
				}
			case RowPostProcessor:
				postProcesses = append(postProcesses, option)
			case Limiter:
				limiter = option
			case ErrorTranslator:
				translator = option
			default:
				return "", nil, nil, nil, nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	if !querySet {
		err = errors.New("no default query")
	}
	return query, mappings, postProcesses, limiter, translator, err
}

func (m *rowMapper) copyMappings() Mappings {
	result := make(Mappings, len(m.mappings))
	for k, v := range m.mappings {
		result[k] = v
	}
	return result
}

// mapColumns resolves (and caches) the shape of the result - the cache assumes
// every result read through this mapper shares the same column order and names
func (m *rowMapper) mapColumns(rows *sql.Rows, mappings Mappings) (reader *shapeReader, err error) {
	m.mutex.RLock()
	if m.shape != nil {
		m.mutex.RUnlock()
		return m.shape.reader(), nil
	}
	m.mutex.RUnlock()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.shape == nil {
		if m.shape, err = newRowShape(rows, m.useDecimals, mappings); err != nil {
			m.shape = nil
			return nil, err
		}
	}
	return m.shape.reader(), nil
}

func (m *rowMapper) mapRow(ctx context.Context, sqli SqlInterface, rows *sql.Rows, reader *shapeReader, mappings Mappings, postProcesses []RowPostProcessor) (row map[string]any, err error) {
	if err = rows.Scan(reader.scanArgs...); err != nil {
		return nil, err
	}
	row = make(map[string]any, len(reader.names))
	for i, name := range reader.names {
		value := reader.values[i]
		var mapping *Mapping
		if mp, ok := mappings[name]; ok {
			mapping = &mp
			if value == nil {
				if mapping.OmitNull {
					continue
				} else if mapping.NullDefault != nil {
					value = mapping.NullDefault
				}
			}
			if mapping.PropertyName != "" {
				name = mapping.PropertyName
			}
		}
		row[name] = value
		if mapping != nil && mapping.PostProcess != nil {
			if replaceValue, err := mapping.PostProcess(ctx, sqli, row, value); err != nil {
				return nil, err
			} else if replaceValue != nil {
				row[name] = replaceValue
			}
		}
	}
	for _, rp := range postProcesses {
		if rp != nil {
			if err = rp.PostProcess(ctx, sqli, row); err != nil {
				return nil, err
			}
		}
	}
	return row, nil
}
