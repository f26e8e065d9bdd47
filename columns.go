package sqlbind

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ColumnScanner is a func that can be used by Mapping to read the value of a column
type ColumnScanner func(src any) (value any, err error)

// BoolColumn is a ColumnScanner that can be used by Mapping.Scanner to convert a column to a boolean property
//
// Particularly useful for MySql which only supports BOOL columns as TINYINT
func BoolColumn(src any) (any, error) {
	switch v := src.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	case nil:
		return false, nil
	}
	return nil, fmt.Errorf("type %T is not a bool", src)
}

// rowShape is the cached metadata of one result shape - the column names plus
// the ColumnScanner chosen for each column. Immutable once built
type rowShape struct {
	names    []string
	scanners []ColumnScanner
}

func newRowShape(rows *sql.Rows, useDecimals bool, mappings Mappings) (*rowShape, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	result := &rowShape{
		names:    make([]string, len(cts)),
		scanners: make([]ColumnScanner, len(cts)),
	}
	for i, ct := range cts {
		result.names[i] = ct.Name()
		result.scanners[i] = chooseScanner(ct, useDecimals, mappings)
	}
	return result, nil
}

// chooseScanner picks the ColumnScanner for a column from any explicit Mapping
// first, then the database type name, then the driver's scan type
func chooseScanner(ct *sql.ColumnType, useDecimals bool, mappings Mappings) ColumnScanner {
	if m, ok := mappings[ct.Name()]; ok && m.Scanner != nil {
		return m.Scanner
	}
	dbType := ct.DatabaseTypeName()
	switch {
	case dbType == "JSON" || dbType == "JSONB":
		return jsonColumn
	case dbType == "DECIMAL" || dbType == "NUMERIC" || dbType == "DOUBLE" || strings.HasPrefix(dbType, "FLOAT"):
		if useDecimals {
			return decimalColumn
		}
		return rawColumn
	}
	if st := ct.ScanType(); st != nil {
		switch reflect.New(st).Interface().(type) {
		case *string, *sql.NullString:
			return stringColumn
		case *float32, *float64, *sql.NullFloat64:
			if useDecimals {
				return decimalColumn
			}
		}
	}
	return rawColumn
}

// reader produces the per-result-set scan destinations for this shape - values
// receives each scanned column, scanArgs is passed to sql.Rows.Scan
func (rs *rowShape) reader() *shapeReader {
	r := &shapeReader{
		names:  rs.names,
		values: make([]any, len(rs.names)),
	}
	r.scanArgs = make([]any, len(rs.names))
	for i := range rs.names {
		r.scanArgs[i] = &cellScanner{reader: r, index: i, scan: rs.scanners[i]}
	}
	return r
}

type shapeReader struct {
	names    []string
	values   []any
	scanArgs []any
}

// cellScanner adapts a ColumnScanner to sql.Scanner, writing the converted
// value into its reader slot
type cellScanner struct {
	reader *shapeReader
	index  int
	scan   ColumnScanner
}

var _ sql.Scanner = (*cellScanner)(nil)

func (c *cellScanner) Scan(src any) error {
	v, err := c.scan(src)
	if err == nil {
		c.reader.values[c.index] = v
	}
	return err
}

func rawColumn(src any) (any, error) {
	if b, ok := src.([]byte); ok {
		// drivers may reuse the buffer between rows
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, nil
	}
	return src, nil
}

func stringColumn(src any) (any, error) {
	if b, ok := src.([]byte); ok {
		return string(b), nil
	}
	return src, nil
}

func decimalColumn(src any) (any, error) {
	switch v := src.(type) {
	case float32:
		return decimal.NewFromFloat(float64(v)), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.New(v, 0), nil
	case []byte:
		return decimal.NewFromString(unquote(string(v)))
	case string:
		return decimal.NewFromString(unquote(v))
	}
	return src, nil
}

func jsonColumn(src any) (any, error) {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return src, nil
	}
	var result any
	err := json.Unmarshal(data, &result)
	return result, err
}

func unquote(s string) string {
	if len(s) > 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
