package sqlbind

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

const sqlTag = "sql"

// UseTagName is a type that can be passed as an option to DeriveSchema
// and determines the field tag name to use for field column mappings
//
// If this option is not passed to DeriveSchema, then the default "sql" tag is used
type UseTagName string

// Kind is the driver value shape expected by a Field
//
// database/sql drivers deliver a closed set of value types (int64, float64,
// bool, string, []byte, time.Time or nil) - a Field's Kind declares which of
// those it accepts and what a null column becomes (see Binder)
type Kind int

const (
	// KindAny accepts any driver value, including nil
	KindAny Kind = iota
	// KindString accepts string (and []byte, which drivers use interchangeably for text)
	KindString
	// KindInt64 accepts int64
	KindInt64
	// KindFloat64 accepts float64
	KindFloat64
	// KindBool accepts bool
	KindBool
	// KindTime accepts time.Time
	KindTime
	// KindBytes accepts []byte
	KindBytes
	// KindScan passes the raw driver value to a sql.Scanner owned by the target
	KindScan
	// KindNullString is the nullable form of KindString - the setter receives *string (nil on SQL NULL)
	KindNullString
	// KindNullInt64 is the nullable form of KindInt64 - the setter receives *int64 (nil on SQL NULL)
	KindNullInt64
	// KindNullFloat64 is the nullable form of KindFloat64 - the setter receives *float64 (nil on SQL NULL)
	KindNullFloat64
	// KindNullBool is the nullable form of KindBool - the setter receives *bool (nil on SQL NULL)
	KindNullBool
	// KindNullTime is the nullable form of KindTime - the setter receives *time.Time (nil on SQL NULL)
	KindNullTime
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindBytes:
		return "bytes"
	case KindScan:
		return "scanner"
	case KindNullString:
		return "null string"
	case KindNullInt64:
		return "null int64"
	case KindNullFloat64:
		return "null float64"
	case KindNullBool:
		return "null bool"
	case KindNullTime:
		return "null time"
	}
	return "unknown"
}

// notFound is the column map sentinel for a column that matched no field
const notFound = -1

// Field describes one bindable column of struct type T - the column name, the
// driver value shape expected and the setter invoked with the (possibly
// null-substituted) value
//
// Fields are built with the typed constructors (String, Int64, NullTime, Scan etc.)
// and collected into a Schema
type Field[T any] struct {
	name string
	kind Kind
	set  func(target *T, value any) error
}

// String declares a text column - the setter receives "" on SQL NULL
func String[T any](name string, set func(target *T, value string)) Field[T] {
	return Field[T]{name: name, kind: KindString, set: func(t *T, v any) error {
		set(t, v.(string))
		return nil
	}}
}

// Int64 declares an integer column - the setter receives 0 on SQL NULL
func Int64[T any](name string, set func(target *T, value int64)) Field[T] {
	return Field[T]{name: name, kind: KindInt64, set: func(t *T, v any) error {
		set(t, v.(int64))
		return nil
	}}
}

// Float64 declares a floating point column - the setter receives 0.0 on SQL NULL
func Float64[T any](name string, set func(target *T, value float64)) Field[T] {
	return Field[T]{name: name, kind: KindFloat64, set: func(t *T, v any) error {
		set(t, v.(float64))
		return nil
	}}
}

// Bool declares a boolean column - the setter receives false on SQL NULL
func Bool[T any](name string, set func(target *T, value bool)) Field[T] {
	return Field[T]{name: name, kind: KindBool, set: func(t *T, v any) error {
		set(t, v.(bool))
		return nil
	}}
}

// Time declares a timestamp column - the setter receives the zero time.Time on SQL NULL
func Time[T any](name string, set func(target *T, value time.Time)) Field[T] {
	return Field[T]{name: name, kind: KindTime, set: func(t *T, v any) error {
		set(t, v.(time.Time))
		return nil
	}}
}

// Bytes declares a raw bytes column - the setter receives a nil slice on SQL NULL
func Bytes[T any](name string, set func(target *T, value []byte)) Field[T] {
	return Field[T]{name: name, kind: KindBytes, set: func(t *T, v any) error {
		set(t, v.([]byte))
		return nil
	}}
}

// Any declares a column bound without type checking - the setter receives the
// raw driver value (nil on SQL NULL)
func Any[T any](name string, set func(target *T, value any)) Field[T] {
	return Field[T]{name: name, kind: KindAny, set: func(t *T, v any) error {
		set(t, v)
		return nil
	}}
}

// Scan declares a column read by a sql.Scanner obtained from the target - use
// this for sql.Null* fields, decimal.Decimal fields and other scanner types
func Scan[T any](name string, scanner func(target *T) sql.Scanner) Field[T] {
	return Field[T]{name: name, kind: KindScan, set: func(t *T, v any) error {
		return scanner(t).Scan(v)
	}}
}

// NullString declares a nullable text column - the setter receives nil on SQL NULL
func NullString[T any](name string, set func(target *T, value *string)) Field[T] {
	return Field[T]{name: name, kind: KindNullString, set: func(t *T, v any) error {
		set(t, v.(*string))
		return nil
	}}
}

// NullInt64 declares a nullable integer column - the setter receives nil on SQL NULL
func NullInt64[T any](name string, set func(target *T, value *int64)) Field[T] {
	return Field[T]{name: name, kind: KindNullInt64, set: func(t *T, v any) error {
		set(t, v.(*int64))
		return nil
	}}
}

// NullFloat64 declares a nullable floating point column - the setter receives nil on SQL NULL
func NullFloat64[T any](name string, set func(target *T, value *float64)) Field[T] {
	return Field[T]{name: name, kind: KindNullFloat64, set: func(t *T, v any) error {
		set(t, v.(*float64))
		return nil
	}}
}

// NullBool declares a nullable boolean column - the setter receives nil on SQL NULL
func NullBool[T any](name string, set func(target *T, value *bool)) Field[T] {
	return Field[T]{name: name, kind: KindNullBool, set: func(t *T, v any) error {
		set(t, v.(*bool))
		return nil
	}}
}

// NullTime declares a nullable timestamp column - the setter receives nil on SQL NULL
func NullTime[T any](name string, set func(target *T, value *time.Time)) Field[T] {
	return Field[T]{name: name, kind: KindNullTime, set: func(t *T, v any) error {
		set(t, v.(*time.Time))
		return nil
	}}
}

// Schema is an immutable, ordered registry of the bindable fields of struct
// type T
//
// Build one per target type - with NewSchema for an explicitly declared
// registry or DeriveSchema to derive the registry from struct tags - and share
// it freely; a Schema is never mutated after construction and is safe for
// concurrent use
type Schema[T any] struct {
	fields []Field[T]
}

// NewSchema creates a Schema from explicitly declared fields
//
// Field names are matched to columns case-insensitively, so two fields whose
// names differ only in case are a construction error
func NewSchema[T any](fields ...Field[T]) (*Schema[T], error) {
	if reflect.TypeOf((*T)(nil)).Elem().Kind() != reflect.Struct {
		return nil, errors.New("sqlbind: Schema can only be used with struct types")
	}
	if len(fields) == 0 {
		return nil, errors.New("sqlbind: Schema requires at least one field")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.name == "" || f.set == nil {
			return nil, errors.New("sqlbind: Schema field must have a name and a setter")
		}
		lc := strings.ToLower(f.name)
		if _, exists := seen[lc]; exists {
			return nil, fmt.Errorf("sqlbind: duplicate field name %q", f.name)
		}
		seen[lc] = struct{}{}
	}
	return &Schema[T]{fields: fields}, nil
}

// MustNewSchema is the same as NewSchema, except it panics on error
func MustNewSchema[T any](fields ...Field[T]) *Schema[T] {
	s, err := NewSchema[T](fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the number of fields in the schema
func (s *Schema[T]) Fields() int {
	return len(s.fields)
}

// columnMap aligns result set columns to schema fields
//
// For each column, fields are scanned in declaration order and the first
// case-insensitive name match wins; a column matching no field records
// notFound. Unmatched columns are expected (computed columns etc.) and are not
// an error here - strict handling is the Binder's concern
func (s *Schema[T]) columnMap(columns []string) []int {
	result := make([]int, len(columns))
	for i, col := range columns {
		result[i] = notFound
		for j := range s.fields {
			if strings.EqualFold(col, s.fields[j].name) {
				result[i] = j
				break
			}
		}
	}
	return result
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
var timeType = reflect.TypeOf(time.Time{})

// DeriveSchema builds a Schema for struct type T from its fields and tags
//
// The column name for each exported field is taken from its "sql" tag (see
// UseTagName) or, absent a tag, the lower-cased field name; fields tagged "-"
// are skipped and anonymous embedded structs are flattened. All reflection
// happens here - the derived setters captured in the Schema walk precomputed
// field index paths
//
// Numeric fields narrower than the driver's int64/float64 are populated with
// Go conversion semantics - a value outside the field's range wraps (declare
// the Schema explicitly with a range-checking setter when that matters)
//
// options can be any of: UseTagName
func DeriveSchema[T any](options ...any) (*Schema[T], error) {
	tagName := sqlTag
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case UseTagName:
				if option != "" {
					tagName = string(option)
				}
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, errors.New("sqlbind: Schema can only be used with struct types")
	}
	var fields []Field[T]
	if err := deriveFields(rt, nil, tagName, &fields); err != nil {
		return nil, err
	}
	return NewSchema[T](fields...)
}

// MustDeriveSchema is the same as DeriveSchema, except it panics on error
func MustDeriveSchema[T any](options ...any) *Schema[T] {
	s, err := DeriveSchema[T](options...)
	if err != nil {
		panic(err)
	}
	return s
}

func deriveFields[T any](rt reflect.Type, parentIndex []int, tagName string, fields *[]Field[T]) error {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		index := append(append([]int{}, parentIndex...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !isScannableType(f.Type) {
			if err := deriveFields(f.Type, index, tagName, fields); err != nil {
				return err
			}
			continue
		}
		name := strings.ToLower(f.Name)
		if tag, ok := f.Tag.Lookup(tagName); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		kind, ok := kindOf(f.Type)
		if !ok {
			return fmt.Errorf("sqlbind: field %s.%s has unsupported type %s", rt.Name(), f.Name, f.Type)
		}
		*fields = append(*fields, derivedField[T](name, kind, index))
	}
	return nil
}

func derivedField[T any](name string, kind Kind, index []int) Field[T] {
	if kind == KindScan {
		return Field[T]{name: name, kind: kind, set: func(t *T, v any) error {
			fv := reflect.ValueOf(t).Elem().FieldByIndex(index)
			return fv.Addr().Interface().(sql.Scanner).Scan(v)
		}}
	}
	return Field[T]{name: name, kind: kind, set: func(t *T, v any) error {
		fv := reflect.ValueOf(t).Elem().FieldByIndex(index)
		if v == nil {
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			fv.Set(reflect.Zero(fv.Type()))
		} else if rv.Type() == fv.Type() {
			fv.Set(rv)
		} else if rv.Kind() == reflect.Ptr && fv.Kind() == reflect.Ptr {
			// nullable kinds deliver e.g. *int64 - rebuild for e.g. *int32 fields
			ev := reflect.New(fv.Type().Elem())
			ev.Elem().Set(rv.Elem().Convert(fv.Type().Elem()))
			fv.Set(ev)
		} else {
			fv.Set(rv.Convert(fv.Type()))
		}
		return nil
	}}
}

// kindOf maps a struct field type to the Kind of driver value it can be bound from
func kindOf(t reflect.Type) (Kind, bool) {
	if reflect.PointerTo(t).Implements(scannerType) {
		return KindScan, true
	}
	if t == timeType {
		return KindTime, true
	}
	switch t.Kind() {
	case reflect.String:
		return KindString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt64, true
	case reflect.Float32, reflect.Float64:
		return KindFloat64, true
	case reflect.Bool:
		return KindBool, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes, true
		}
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return KindAny, true
		}
	case reflect.Ptr:
		e := t.Elem()
		if e == timeType {
			return KindNullTime, true
		}
		switch e.Kind() {
		case reflect.String:
			return KindNullString, true
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return KindNullInt64, true
		case reflect.Float32, reflect.Float64:
			return KindNullFloat64, true
		case reflect.Bool:
			return KindNullBool, true
		}
	}
	return KindAny, false
}

func isScannableType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return true
	}
	// bizarrely, time.Time isn't scannable but drivers can scan it...
	if t == timeType {
		return true
	}
	return t.Implements(scannerType) || reflect.PointerTo(t).Implements(scannerType)
}
