package sqlbind

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder selects the positional parameter style of the target database
//
//   - PlaceholderQuestion → "?"          (MySql, SQLite)
//   - PlaceholderDollar   → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderAtP      → "@p1, @p2…"  (SQL Server)
//   - PlaceholderColonNum → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

// PlaceholderFor picks a Placeholder from a driver name
func PlaceholderFor(driverName string) Placeholder {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "pq", "pg":
		return PlaceholderDollar
	case "sqlserver", "mssql":
		return PlaceholderAtP
	case "godror", "oracle":
		return PlaceholderColonNum
	}
	return PlaceholderQuestion
}

// ErrNilParams is the error returned when named binding is requested with a nil
// pointer or nil params value
var ErrNilParams = errors.New("sqlbind: named bind: nil params")

// ErrUnsupportedParams is the error returned when the single named-binding
// argument is not a struct or string-keyed map
var ErrUnsupportedParams = errors.New("sqlbind: named bind: params must be struct or map[string]any")

// ErrDuplicateParamName is the error returned when two struct fields (including
// embedded) resolve to the same parameter name (case-insensitive)
var ErrDuplicateParamName = errors.New("sqlbind: named bind: duplicate parameter name")

// Rebind resolves :named parameters (when params is exactly one struct or
// string-keyed map) and rewrites placeholders for the target database
//
//	query, args, err := sqlbind.Rebind(
//		`SELECT a,b FROM table WHERE status = :status AND id IN (:ids)`,
//		sqlbind.PlaceholderDollar,
//		map[string]any{"status": "active", "ids": []int{1, 2, 3}},
//	)
//	// query => SELECT a,b FROM table WHERE status = $1 AND id IN ($2,$3,$4)
//	// args  => ["active", 1, 2, 3]
//
// Struct params use the "sql" tag (falling back to the field name, matched
// case-insensitively); embedded structs are flattened. Slice and array values
// expand to comma-separated placeholder lists ([]byte stays scalar; an empty
// slice becomes NULL, so `IN (NULL)` matches no rows on most engines)
//
// Any other params shape is positional passthrough - only placeholder
// rewriting is applied. Quoted strings and identifiers, line and block
// comments, `::` casts and $tag$…$tag$ bodies are never rewritten
func Rebind(query string, ph Placeholder, params ...any) (string, []any, error) {
	if len(params) == 1 && bindableParams(params[0]) {
		bound, args, err := bindNamed(query, params[0])
		if err != nil {
			return "", nil, err
		}
		return rewritePlaceholders(bound, ph), args, nil
	}
	return rewritePlaceholders(query, ph), params, nil
}

// NamedExec rebinds the query (see Rebind) and executes it
func NamedExec(ctx context.Context, e Execer, ph Placeholder, query string, params ...any) (sql.Result, error) {
	bound, args, err := Rebind(query, ph, params...)
	if err != nil {
		return nil, err
	}
	return e.ExecContext(ctx, bound, args...)
}

// NamedSelect rebinds the query (see Rebind), executes it and binds all result
// rows into a slice of T
func NamedSelect[T any](ctx context.Context, sqli SqlInterface, binder *Binder[T], ph Placeholder, query string, params ...any) ([]T, error) {
	bound, args, err := Rebind(query, ph, params...)
	if err != nil {
		return nil, err
	}
	return Select[T](ctx, sqli, binder, bound, args...)
}

// NamedGet rebinds the query (see Rebind), executes it and binds the first
// result row into a T
//
// if there are no rows, returns error sql.ErrNoRows
func NamedGet[T any](ctx context.Context, sqli SqlInterface, binder *Binder[T], ph Placeholder, query string, params ...any) (result T, err error) {
	bound, args, err := Rebind(query, ph, params...)
	if err != nil {
		return result, err
	}
	return Get[T](ctx, sqli, binder, bound, args...)
}

func bindableParams(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		return rv.Type().Key().Kind() == reflect.String
	}
	return rv.Kind() == reflect.Struct
}

type paramToken struct {
	name  string
	start int
	end   int
}

func bindNamed(query string, params any) (string, []any, error) {
	if params == nil {
		return "", nil, ErrNilParams
	}
	tokens, err := findParams(query)
	if err != nil {
		return "", nil, err
	}
	if len(tokens) == 0 {
		return query, nil, nil
	}
	values, err := paramValues(params)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.Grow(len(query))
	args := make([]any, 0, len(tokens))
	last := 0
	for _, t := range tokens {
		b.WriteString(query[last:t.start])
		value, ok := values[strings.ToLower(t.name)]
		if !ok {
			return "", nil, fmt.Errorf("sqlbind: named bind: missing value for :%s", t.name)
		}
		if rv := reflect.ValueOf(value); expandable(rv) {
			if rv.Len() == 0 {
				b.WriteString("NULL")
			}
			for i := 0; i < rv.Len(); i++ {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteByte('?')
				args = append(args, rv.Index(i).Interface())
			}
		} else {
			b.WriteByte('?')
			args = append(args, value)
		}
		last = t.end
	}
	b.WriteString(query[last:])
	return b.String(), args, nil
}

// findParams locates the :name tokens of a query, skipping quoted regions,
// comments, `::` casts and dollar-quoted bodies
func findParams(query string) ([]paramToken, error) {
	var result []paramToken
	i := 0
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'', '"', '`':
			j, err := skipQuoted(query, i+w, byte(r))
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				i = skipLineComment(query, i+2)
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j, err := skipBlockComment(query, i+2)
				if err != nil {
					return nil, err
				}
				i = j
				continue
			}
		case '$':
			if j, ok, err := skipDollarQuoted(query, i); err != nil {
				return nil, err
			} else if ok {
				i = j
				continue
			}
		case ':':
			if strings.HasPrefix(query[i:], "::") {
				i += 2
				continue
			}
			if name, end := readIdent(query, i+1); name != "" {
				result = append(result, paramToken{name: name, start: i, end: end})
				i = end
				continue
			}
		}
		i += w
	}
	return result, nil
}

// rewritePlaceholders renumbers ? placeholders into the target style, leaving
// quoted regions, comments and dollar-quoted bodies untouched
func rewritePlaceholders(query string, ph Placeholder) string {
	if ph == PlaceholderQuestion {
		return query
	}
	out := make([]byte, 0, len(query)+16)
	i, arg := 0, 1
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'', '"', '`':
			j, err := skipQuoted(query, i+w, byte(r))
			if err != nil {
				j = len(query)
			}
			out = append(out, query[i:j]...)
			i = j
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				j := skipLineComment(query, i+2)
				out = append(out, query[i:j]...)
				i = j
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j, err := skipBlockComment(query, i+2)
				if err != nil {
					j = len(query)
				}
				out = append(out, query[i:j]...)
				i = j
				continue
			}
		case '$':
			if j, ok, err := skipDollarQuoted(query, i); ok && err == nil {
				out = append(out, query[i:j]...)
				i = j
				continue
			}
		case '?':
			switch ph {
			case PlaceholderDollar:
				out = append(out, '$')
				out = strconv.AppendInt(out, int64(arg), 10)
			case PlaceholderAtP:
				out = append(out, '@', 'p')
				out = strconv.AppendInt(out, int64(arg), 10)
			case PlaceholderColonNum:
				out = append(out, ':')
				out = strconv.AppendInt(out, int64(arg), 10)
			}
			arg++
			i += w
			continue
		}
		out = append(out, query[i:i+w]...)
		i += w
	}
	return string(out)
}

// skipQuoted advances past a region opened by quote q, honouring doubled-quote escapes
func skipQuoted(s string, i int, q byte) (int, error) {
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1, nil
		}
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return 0, fmt.Errorf("sqlbind: unterminated %q-quoted region", string(q))
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) (int, error) {
	for i < len(s)-1 {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2, nil
		}
		i++
	}
	return 0, errors.New("sqlbind: unterminated block comment")
}

// skipDollarQuoted handles $$…$$ and $tag$…$tag$ (PostgreSQL)
func skipDollarQuoted(s string, i int) (int, bool, error) {
	j := i + 1
	for j < len(s) && s[j] != '$' && isIdentRune(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	tag := s[i : j+1]
	idx := strings.Index(s[j+1:], tag)
	if idx < 0 {
		return 0, true, errors.New("sqlbind: unterminated dollar-quoted region")
	}
	return j + 1 + idx + len(tag), true, nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func readIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !isIdentRune(r) {
			break
		}
		i += w
	}
	return s[start:i], i
}

// paramValues flattens the params struct or map into lower-cased name -> value
func paramValues(params any) (map[string]any, error) {
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, ErrNilParams
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrUnsupportedParams
		}
		result := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			result[strings.ToLower(iter.Key().String())] = iter.Value().Interface()
		}
		return result, nil
	case reflect.Struct:
		result := make(map[string]any)
		if err := structParamValues(result, rv); err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrUnsupportedParams
}

func structParamValues(dst map[string]any, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		// unexported fields (embedded included) cannot be read via Interface()
		if !f.IsExported() {
			continue
		}
		if f.Anonymous {
			ft, fv := f.Type, v.Field(i)
			nilPtr := false
			for ft.Kind() == reflect.Pointer {
				if fv.IsNil() {
					nilPtr = true
					break
				}
				ft = ft.Elem()
				fv = fv.Elem()
			}
			if !nilPtr && ft.Kind() == reflect.Struct {
				if err := structParamValues(dst, fv); err != nil {
					return err
				}
				continue
			}
		}
		tag := f.Tag.Get(sqlTag)
		if tag == "-" {
			continue
		}
		name := tag
		if name == "" {
			name = f.Name
		}
		key := strings.ToLower(name)
		if _, exists := dst[key]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateParamName, key)
		}
		dst[key] = v.Field(i).Interface()
	}
	return nil
}

// expandable reports whether a bound value expands to a placeholder list -
// slices and arrays do, except []byte which stays scalar
func expandable(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Slice:
		return v.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}
