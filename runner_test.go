package sqlbind

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunner(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	r, err := NewRunner(db)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, DB(db), r.DB())

	_, err = NewRunner(db, "not a valid option")
	require.Error(t, err)
	require.Equal(t, "unknown option type: string", err.Error())
}

func TestMustNewRunner(t *testing.T) {
	require.Panics(t, func() {
		_ = MustNewRunner(nil, "not a valid option")
	})
}

func TestRunner_Exec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	r := MustNewRunner(db)

	mock.ExpectExec("UPDATE people").WillReturnResult(sqlmock.NewResult(0, 2))

	result, err := r.Exec(ctx, "UPDATE people SET age = age + 1")
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
}

func TestRunner_Exec_Translated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	translated := errors.New("translated")
	r := MustNewRunner(db, ErrorTranslatorFunc(func(err error) error {
		return translated
	}))

	mock.ExpectExec("").WillReturnError(errors.New("fooey"))

	_, err = r.Exec(ctx, "UPDATE people SET age = 0")
	require.Error(t, err)
	require.True(t, errors.Is(err, translated))
}

func TestRunner_Batch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	r := MustNewRunner(db)

	mock.ExpectExec("INSERT INTO people").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO people").WillReturnResult(sqlmock.NewResult(2, 1))

	affected, err := r.Batch(ctx, "INSERT INTO people (name) VALUES (?)", [][]any{
		{"first"},
		{"second"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []int64{1, 1}, affected)
}

func TestRunner_Batch_AbortsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	r := MustNewRunner(db)

	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("").WillReturnError(errors.New("fooey"))

	affected, err := r.Batch(ctx, "INSERT INTO people (name) VALUES (?)", [][]any{
		{"first"},
		{"second"},
		{"never executed"},
	})
	require.Error(t, err)
	require.Equal(t, "batch arg set 1: fooey", err.Error())
	assert.Equal(t, []int64{1}, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	binder := MustNewBinder[personRow](MustDeriveSchema[personRow]())

	mock.ExpectQuery("SELECT id,name,age FROM people").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "age"}).
			AddRow(int64(1), "first", int64(21)).
			AddRow(int64(2), "second", int64(42)))

	result, err := Select(ctx, db, binder, "SELECT id,name,age FROM people")
	require.NoError(t, err)
	require.Equal(t, 2, len(result))
	assert.Equal(t, "first", result[0].Name)
	assert.Equal(t, "second", result[1].Name)
}

func TestSelect_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	binder := MustNewBinder[personRow](MustDeriveSchema[personRow]())

	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))

	result, err := Select(ctx, db, binder, "SELECT id,name,age FROM people")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 0, len(result))
}

func TestSelect_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	binder := MustNewBinder[personRow](MustDeriveSchema[personRow]())

	mock.ExpectQuery("").WillReturnError(errors.New("fooey"))

	_, err = Select(ctx, db, binder, "SELECT id,name,age FROM people")
	require.Error(t, err)
	require.Equal(t, "fooey", err.Error())
}

func TestGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	binder := MustNewBinder[personRow](MustDeriveSchema[personRow]())

	mock.ExpectQuery("").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "first", int64(21)))

	result, err := Get(ctx, db, binder, "SELECT id,name,age FROM people WHERE id = ?", int64(1))
	require.NoError(t, err)
	assert.Equal(t, personRow{Id: 1, Name: "first", Age: 21}, result)
}

func TestGet_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	binder := MustNewBinder[personRow](MustDeriveSchema[personRow]())

	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))

	_, err = Get(ctx, db, binder, "SELECT id,name,age FROM people WHERE id = ?", int64(1))
	require.Error(t, err)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRunner_InTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE people").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = InTx(ctx, db, nil, func(tx *sql.Tx) error {
		r := MustNewRunner(tx)
		_, err := r.Exec(ctx, "UPDATE people SET age = 0 WHERE id = ?", int64(1))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
