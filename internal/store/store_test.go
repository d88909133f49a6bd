package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

var columns = []string{
	"market", "date", "spec_net_long", "open_interest", "days_to_expiry",
	"positioning_ratio", "pos_score", "time_weight", "roll_pressure", "alert", "valid", "run_id",
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewRepository(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func TestMigrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS roll_pressure").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	rows := []rollpressure.DerivedRow{
		{
			InputRow:         rollpressure.InputRow{Date: day, Market: "wti", SpecNetLong: 900, OpenInterest: 1000, DaysToExpiry: 1},
			PositioningRatio: 0.9, PosScore: 1, TimeWeight: 1, RollPressure: 1, Alert: true, Valid: true,
		},
		{
			InputRow:         rollpressure.InputRow{Date: day, Market: "brent", SpecNetLong: 5, OpenInterest: 0, DaysToExpiry: 3},
			PositioningRatio: math.NaN(), PosScore: math.NaN(), TimeWeight: 0.5, RollPressure: math.NaN(),
		},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO roll_pressure")
	prep.ExpectExec().
		WithArgs("wti", day, 900.0, 1000.0, 1, 0.9, 1.0, 1.0, 1.0, true, true, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("brent", day, 5.0, 0.0, 3, nil, nil, 0.5, nil, false, false, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertRows(context.Background(), "run-1", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRows_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := []rollpressure.DerivedRow{{InputRow: rollpressure.InputRow{Date: time.Now(), Market: "wti"}}}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO roll_pressure").
		ExpectExec().
		WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	_, err := repo.UpsertRows(context.Background(), "run-2", rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting wti")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRows_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	n, err := repo.UpsertRows(context.Background(), "run-3", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatest(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM roll_pressure WHERE market = \\$1 ORDER BY date DESC LIMIT 1").
		WithArgs("wti").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("wti", day, 900.0, 1000.0, 1, 0.9, 1.0, 1.0, 1.0, true, true, "run-1"))

	rec, err := repo.Latest(context.Background(), "wti")
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.RunID)

	row := rec.Derived()
	assert.Equal(t, day, row.Date)
	assert.Equal(t, 0.9, row.PositioningRatio)
	assert.True(t, row.Alert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatest_NoRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM roll_pressure").
		WithArgs("brent").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.Latest(context.Background(), "brent")
	assert.ErrorIs(t, err, ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM roll_pressure\\s+WHERE market = \\$1 AND date >= \\$2 AND date <= \\$3").
		WithArgs("wti", from, to).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("wti", from, 1.0, 0.0, 5, nil, nil, 1.0/3.0, nil, false, false, "run-1").
			AddRow("wti", to, 900.0, 1000.0, 1, 0.9, 1.0, 1.0, 1.0, true, true, "run-1"))

	recs, err := repo.History(context.Background(), "wti", from, to)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0].Derived()
	assert.False(t, first.Valid)
	assert.True(t, math.IsNaN(first.PosScore))
	assert.InDelta(t, 1.0/3.0, first.TimeWeight, 1e-12)
	assert.NoError(t, mock.ExpectationsWereMet())
}
