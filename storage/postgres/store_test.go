package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/message"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db, nil), mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS raw_measurements").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	store, mock := newMockStore(t)

	m := message.Measurement{
		DeviceID:  "d8f3b2a1-0000-0000-0000-000000000001",
		UserID:    "a1b2c3d4-0000-0000-0000-000000000002",
		Timestamp: "2026-08-29 14:30:00",
		Value:     1.2345,
	}

	recordedAt := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO raw_measurements").
		WithArgs(m.DeviceID, m.UserID, recordedAt, m.Value).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Insert(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBadTimestamp(t *testing.T) {
	store, _ := newMockStore(t)

	m := message.Measurement{
		DeviceID:  "dev-1",
		UserID:    "user-1",
		Timestamp: "not-a-timestamp",
		Value:     1.0,
	}

	err := store.Insert(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestInsertDatabaseErrorIsTransient(t *testing.T) {
	store, mock := newMockStore(t)

	m := message.Measurement{
		DeviceID:  "dev-1",
		UserID:    "user-1",
		Timestamp: "2026-08-29 14:30:00",
		Value:     1.0,
	}

	mock.ExpectExec("INSERT INTO raw_measurements").
		WillReturnError(fmt.Errorf("connection reset"))

	err := store.Insert(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestHourlyTotals(t *testing.T) {
	store, mock := newMockStore(t)

	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"hour", "value"}).
		AddRow(9, 1.5).
		AddRow(14, 3.25)

	mock.ExpectQuery("SELECT EXTRACT\\(HOUR FROM recorded_at\\)").
		WithArgs("dev-1", date, date.Add(24*time.Hour)).
		WillReturnRows(rows)

	totals, err := store.HourlyTotals(context.Background(), "dev-1", date)
	require.NoError(t, err)

	assert.Equal(t, []HourlyTotal{
		{Hour: 9, Value: 1.5},
		{Hour: 14, Value: 3.25},
	}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHourlyTotalsEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT EXTRACT\\(HOUR FROM recorded_at\\)").
		WillReturnRows(sqlmock.NewRows([]string{"hour", "value"}))

	totals, err := store.HourlyTotals(context.Background(), "dev-1", date)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestHourlyTotalsQueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXTRACT\\(HOUR FROM recorded_at\\)").
		WillReturnError(fmt.Errorf("relation does not exist"))

	_, err := store.HourlyTotals(context.Background(), "dev-1", time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := NewStore(db, nil)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(fmt.Errorf("down"))
	err = store.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
