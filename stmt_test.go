package sqlbind

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementMap_Add(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("SELECT id,name,age FROM people WHERE id = ?")

	require.False(t, m.Contains("getPerson"))
	err = m.Add(ctx, "getPerson", "SELECT id,name,age FROM people WHERE id = ?")
	require.NoError(t, err)
	require.True(t, m.Contains("getPerson"))

	err = m.Add(ctx, "getPerson", "SELECT 1")
	require.Error(t, err)
	require.Equal(t, `sqlbind: statement "getPerson" already registered`, err.Error())
}

func TestStatementMap_Add_PrepareError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("SELECT nope").WillReturnError(assert.AnError)

	err = m.Add(ctx, "broken", "SELECT nope")
	require.Error(t, err)
	require.False(t, m.Contains("broken"))
}

func TestStatementMap_Extend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("")
	mock.ExpectPrepare("")

	err = m.Extend(ctx, map[string]string{
		"first":  "SELECT 1",
		"second": "SELECT 2",
	})
	require.NoError(t, err)
	require.True(t, m.Contains("first"))
	require.True(t, m.Contains("second"))
}

func TestStatementMap_Exec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("UPDATE people")
	mock.ExpectExec("UPDATE people").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.Add(ctx, "update", "UPDATE people SET age = ? WHERE id = ?"))
	result, err := m.Exec(ctx, "update", int64(21), int64(1))
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = m.Exec(ctx, "unknown")
	require.Error(t, err)
	require.Equal(t, `sqlbind: no statement registered as "unknown"`, err.Error())
}

func TestStatementMap_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("SELECT name FROM people")
	mock.ExpectQuery("SELECT name FROM people").WillReturnRows(
		sqlmock.NewRows([]string{"name"}).AddRow("first"))

	require.NoError(t, m.Add(ctx, "names", "SELECT name FROM people"))
	rows, err := m.Query(ctx, "names")
	require.NoError(t, err)
	names, err := Column[string](rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, names)

	_, err = m.Query(ctx, "unknown")
	require.Error(t, err)
}

func TestStatementMap_QueryRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("SELECT COUNT")
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(int64(16)))

	require.NoError(t, m.Add(ctx, "count", "SELECT COUNT(*) FROM people"))
	row, err := m.QueryRow(ctx, "count")
	require.NoError(t, err)
	var count int64
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, int64(16), count)

	_, err = m.QueryRow(ctx, "unknown")
	require.Error(t, err)
}

func TestStatementMap_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	m := NewStatementMap(db)

	mock.ExpectPrepare("SELECT 1")

	require.NoError(t, m.Add(ctx, "one", "SELECT 1"))
	require.NoError(t, m.Close())
	require.False(t, m.Contains("one"))

	// the map is reusable after Close
	mock.ExpectPrepare("SELECT 2")
	require.NoError(t, m.Add(ctx, "two", "SELECT 2"))
	require.True(t, m.Contains("two"))
}
