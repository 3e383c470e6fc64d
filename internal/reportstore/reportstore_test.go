package reportstore

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStoreTest(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := NewForTesting(mockDB)

	cleanup := func() { mockDB.Close() }
	return store, mock, cleanup
}

func TestRecordInsertsAndReturnsID(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO startup_reports`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Record(false, "", map[string]string{"phase": "done"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestReturnsRows(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "recorded_at", "aborted", "aborted_at", "report"}).
		AddRow(int64(2), now, false, "", []byte(`{"a":1}`)).
		AddRow(int64(1), now, true, "resolve", []byte(`{"a":2}`))

	mock.ExpectQuery(`SELECT id, recorded_at, aborted, aborted_at, report FROM startup_reports`).
		WillReturnRows(rows)

	records, err := store.Latest(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].ID)
	assert.True(t, records[1].Aborted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsNilWhenMissing(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, recorded_at, aborted, aborted_at, report FROM startup_reports WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recorded_at", "aborted", "aborted_at", "report"}))

	rec, err := store.Get(99)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateConfigRejectsBadPort(t *testing.T) {
	err := validateConfig(Config{Host: "localhost", Port: "not-a-port", User: "u", DBName: "d"})
	assert.Error(t, err)
}

func TestValidateConfigRejectsBadSSLMode(t *testing.T) {
	err := validateConfig(Config{Host: "localhost", Port: "5432", User: "u", DBName: "d", SSLMode: "bogus"})
	assert.Error(t, err)
}
