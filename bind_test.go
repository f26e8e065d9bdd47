package sqlbind

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBinder(t *testing.T) {
	s := testBeanSchema(t)

	b, err := NewBinder[testBean](s)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.False(t, b.strict)
	require.False(t, b.errorOnUnmatched)

	b, err = NewBinder[testBean](s, Strict(true), ErrorOnUnmatchedColumns(true))
	require.NoError(t, err)
	require.True(t, b.strict)
	require.True(t, b.errorOnUnmatched)

	_, err = NewBinder[testBean](nil)
	require.Error(t, err)
	require.Equal(t, "sqlbind: Binder requires a schema", err.Error())

	_, err = NewBinder[testBean](s, "not a valid option")
	require.Error(t, err)
	require.Equal(t, "unknown option type: string", err.Error())
}

func TestMustNewBinder(t *testing.T) {
	s := testBeanSchema(t)
	require.Panics(t, func() {
		_ = MustNewBinder[testBean](nil)
	})
	require.NotPanics(t, func() {
		_ = MustNewBinder[testBean](s)
	})
}

func TestBinder_BindRow(t *testing.T) {
	b := MustNewBinder[testBean](testBeanSchema(t))

	row, err := b.BindRow(
		[]string{"one", "two", "three", "notInBean"},
		[]any{"1", "2", "THREE", "x"},
	)
	require.NoError(t, err)
	assert.Equal(t, "1", row.One)
	assert.Equal(t, "2", row.Two)
	assert.Equal(t, ordinalThree, row.Three)
	assert.Equal(t, "", row.DoNotSet)
}

func TestBinder_BindRow_CaseInsensitiveColumns(t *testing.T) {
	b := MustNewBinder[testBean](testBeanSchema(t))

	for _, variant := range []string{"one", "ONE", "One"} {
		row, err := b.BindRow([]string{variant}, []any{"a value"})
		require.NoError(t, err)
		assert.Equal(t, "a value", row.One, "column name variant %q", variant)
	}
}

func TestBinder_BindRow_MismatchedLengths(t *testing.T) {
	b := MustNewBinder[testBean](testBeanSchema(t))

	_, err := b.BindRow([]string{"one", "two"}, []any{"1"})
	require.Error(t, err)
	require.Equal(t, "sqlbind: 2 columns but 1 values", err.Error())
}

func TestBinder_BindRow_TypeMismatchSkipped(t *testing.T) {
	b := MustNewBinder[testBean](testBeanSchema(t))

	// int64 never populates a string field - the property is left untouched
	row, err := b.BindRow([]string{"one", "two"}, []any{int64(16), "2"})
	require.NoError(t, err)
	assert.Equal(t, "", row.One)
	assert.Equal(t, "2", row.Two)
}

func TestBinder_BindRow_TypeMismatchStrict(t *testing.T) {
	b := MustNewBinder[testBean](testBeanSchema(t), Strict(true))

	_, err := b.BindRow([]string{"one"}, []any{int64(16)})
	require.Error(t, err)
	var be *BindError
	require.True(t, errors.As(err, &be))
	require.Equal(t, 0, be.Row)
	require.Equal(t, "one", be.Column)
	require.Contains(t, err.Error(), `binding row 0 column "one"`)
}

func TestBinder_BindRow_UnmatchedColumnError(t *testing.T) {
	b := MustNewBinder[testBean](testBeanSchema(t), ErrorOnUnmatchedColumns(true))

	_, err := b.BindRow([]string{"one", "notInBean"}, []any{"1", "x"})
	require.Error(t, err)
	require.Equal(t, `sqlbind: unmatched column(s): ["notInBean"]`, err.Error())
}

type failingScanner struct{}

func (f *failingScanner) Scan(src any) error {
	return errors.New("scan failed")
}

func TestBinder_BindRow_SetterFailure(t *testing.T) {
	s, err := NewSchema[testBean](
		Scan("one", func(b *testBean) sql.Scanner {
			return &failingScanner{}
		}),
	)
	require.NoError(t, err)
	b := MustNewBinder[testBean](s)

	_, err = b.BindRow([]string{"one"}, []any{"1"})
	require.Error(t, err)
	var be *BindError
	require.True(t, errors.As(err, &be))
	require.Equal(t, "one", be.Column)
	require.Equal(t, "scan failed", be.Err.Error())
}

func TestCoerce(t *testing.T) {
	now := time.Now()
	testCases := []struct {
		kind        Kind
		raw         any
		expectOk    bool
		expectValue any
	}{
		{KindString, "foo", true, "foo"},
		{KindString, []byte("foo"), true, "foo"},
		{KindString, int64(1), false, nil},
		{KindInt64, int64(16), true, int64(16)},
		{KindInt64, float64(16), false, nil},
		{KindInt64, "16", false, nil},
		{KindFloat64, 16.5, true, 16.5},
		{KindFloat64, int64(16), false, nil},
		{KindBool, true, true, true},
		{KindBool, int64(1), false, nil},
		{KindTime, now, true, now},
		{KindTime, now.String(), false, nil},
		{KindBytes, []byte{1}, true, []byte{1}},
		{KindBytes, "x", false, nil},
		{KindAny, "anything", true, "anything"},
		{KindScan, 16.5, true, 16.5},
	}
	for _, tc := range testCases {
		value, ok := coerce(tc.kind, tc.raw)
		require.Equal(t, tc.expectOk, ok, "kind %s raw %T", tc.kind, tc.raw)
		if tc.expectOk {
			assert.Equal(t, tc.expectValue, value)
		}
	}
}

func TestCoerce_Nullables(t *testing.T) {
	v, ok := coerce(KindNullString, "foo")
	require.True(t, ok)
	require.Equal(t, "foo", *(v.(*string)))
	v, ok = coerce(KindNullString, []byte("bar"))
	require.True(t, ok)
	require.Equal(t, "bar", *(v.(*string)))
	_, ok = coerce(KindNullString, int64(1))
	require.False(t, ok)

	v, ok = coerce(KindNullInt64, int64(16))
	require.True(t, ok)
	require.Equal(t, int64(16), *(v.(*int64)))

	v, ok = coerce(KindNullFloat64, 16.5)
	require.True(t, ok)
	require.Equal(t, 16.5, *(v.(*float64)))

	v, ok = coerce(KindNullBool, true)
	require.True(t, ok)
	require.True(t, *(v.(*bool)))

	now := time.Now()
	v, ok = coerce(KindNullTime, now)
	require.True(t, ok)
	require.Equal(t, now, *(v.(*time.Time)))
}

func TestCoerce_Nulls(t *testing.T) {
	for kind, expect := range map[Kind]any{
		KindString:  "",
		KindInt64:   int64(0),
		KindFloat64: float64(0),
		KindBool:    false,
		KindTime:    time.Time{},
	} {
		value, ok := coerce(kind, nil)
		require.True(t, ok)
		assert.Equal(t, expect, value, "kind %s", kind)
	}
	for _, kind := range []Kind{KindNullString, KindNullInt64, KindNullFloat64, KindNullBool, KindNullTime, KindAny, KindScan} {
		value, ok := coerce(kind, nil)
		require.True(t, ok)
		assert.Nil(t, value, "kind %s", kind)
	}
	value, ok := coerce(KindBytes, nil)
	require.True(t, ok)
	assert.Equal(t, []byte(nil), value)
}

type intBean struct {
	IntTest int64
}

func intBeanBinder(t *testing.T) *Binder[intBean] {
	t.Helper()
	s, err := NewSchema[intBean](
		Int64("intTest", func(b *intBean, v int64) { b.IntTest = v }),
	)
	require.NoError(t, err)
	return MustNewBinder[intBean](s)
}

func TestBinder_BindAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}).
		AddRow(int64(1)).
		AddRow(int64(3)))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	result, err := intBeanBinder(t).BindAll(rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 2, len(result))
	assert.Equal(t, int64(1), result[0].IntTest)
	assert.Equal(t, int64(3), result[1].IntTest)
}

func TestBinder_BindAll_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	result, err := intBeanBinder(t).BindAll(rows)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Empty(t, result)
}

func TestBinder_BindFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}).
		AddRow(int64(16)).
		AddRow(int64(32)))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	result, err := intBeanBinder(t).BindFirst(rows)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(16), result.IntTest)
}

func TestBinder_BindFirst_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	result, err := intBeanBinder(t).BindFirst(rows)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestBinder_Iterate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}).
		AddRow(int64(1)).
		AddRow(int64(2)).
		AddRow(int64(3)))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	var seen []int64
	err = intBeanBinder(t).Iterate(rows, func(row intBean) (bool, error) {
		seen = append(seen, row.IntTest)
		return len(seen) < 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, seen)
}

func TestBinder_Iterate_HandlerError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}).
		AddRow(int64(1)))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	err = intBeanBinder(t).Iterate(rows, func(row intBean) (bool, error) {
		return true, errors.New("fooey")
	})
	require.Error(t, err)
	require.Equal(t, "fooey", err.Error())
}

func TestBinder_Iter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"intTest"}).
		AddRow(int64(1)).
		AddRow(int64(2)).
		AddRow(int64(3)))

	rows, err := db.QueryContext(ctx, `SELECT intTest FROM table`)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	collected := map[int]int64{}
	for i, row := range intBeanBinder(t).Iter(rows) {
		collected[i] = row.IntTest
		if i == 1 {
			break
		}
	}
	require.Equal(t, map[int]int64{0: 1, 1: 2}, collected)
}

func TestBindError_Unwrap(t *testing.T) {
	cause := errors.New("fooey")
	err := &BindError{Row: 1, Column: "a", Err: cause}
	require.True(t, errors.Is(err, cause))
	require.Equal(t, `sqlbind: binding row 1 column "a": fooey`, err.Error())
}
