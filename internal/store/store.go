// Package store persists derived rows to Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

var ErrNoRows = errors.New("no roll pressure rows found")

const schema = `
CREATE TABLE IF NOT EXISTS roll_pressure (
    market            TEXT             NOT NULL,
    date              DATE             NOT NULL,
    spec_net_long     DOUBLE PRECISION,
    open_interest     DOUBLE PRECISION,
    days_to_expiry    INTEGER          NOT NULL,
    positioning_ratio DOUBLE PRECISION,
    pos_score         DOUBLE PRECISION,
    time_weight       DOUBLE PRECISION,
    roll_pressure     DOUBLE PRECISION,
    alert             BOOLEAN          NOT NULL DEFAULT FALSE,
    valid             BOOLEAN          NOT NULL DEFAULT FALSE,
    run_id            TEXT             NOT NULL,
    updated_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (market, date)
)`

const upsertSQL = `
INSERT INTO roll_pressure (
    market, date, spec_net_long, open_interest, days_to_expiry,
    positioning_ratio, pos_score, time_weight, roll_pressure, alert, valid, run_id, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (market, date) DO UPDATE SET
    spec_net_long     = EXCLUDED.spec_net_long,
    open_interest     = EXCLUDED.open_interest,
    days_to_expiry    = EXCLUDED.days_to_expiry,
    positioning_ratio = EXCLUDED.positioning_ratio,
    pos_score         = EXCLUDED.pos_score,
    time_weight       = EXCLUDED.time_weight,
    roll_pressure     = EXCLUDED.roll_pressure,
    alert             = EXCLUDED.alert,
    valid             = EXCLUDED.valid,
    run_id            = EXCLUDED.run_id,
    updated_at        = NOW()`

const selectColumns = `market, date, spec_net_long, open_interest, days_to_expiry,
    positioning_ratio, pos_score, time_weight, roll_pressure, alert, valid, run_id`

// Record is one stored row.
type Record struct {
	Market           string          `db:"market"`
	Date             time.Time       `db:"date"`
	SpecNetLong      sql.NullFloat64 `db:"spec_net_long"`
	OpenInterest     sql.NullFloat64 `db:"open_interest"`
	DaysToExpiry     int             `db:"days_to_expiry"`
	PositioningRatio sql.NullFloat64 `db:"positioning_ratio"`
	PosScore         sql.NullFloat64 `db:"pos_score"`
	TimeWeight       sql.NullFloat64 `db:"time_weight"`
	RollPressure     sql.NullFloat64 `db:"roll_pressure"`
	Alert            bool            `db:"alert"`
	Valid            bool            `db:"valid"`
	RunID            string          `db:"run_id"`
}

// Derived converts a record back to an engine row.
func (r Record) Derived() rollpressure.DerivedRow {
	return rollpressure.DerivedRow{
		InputRow: rollpressure.InputRow{
			Date:         r.Date.UTC(),
			Market:       r.Market,
			SpecNetLong:  fromNull(r.SpecNetLong),
			OpenInterest: fromNull(r.OpenInterest),
			DaysToExpiry: r.DaysToExpiry,
		},
		PositioningRatio: fromNull(r.PositioningRatio),
		PosScore:         fromNull(r.PosScore),
		TimeWeight:       fromNull(r.TimeWeight),
		RollPressure:     fromNull(r.RollPressure),
		Alert:            r.Alert,
		Valid:            r.Valid,
	}
}

type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Repository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	repo := NewRepository(db, timeout)
	pingCtx, cancel := repo.withTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return repo, nil
}

func NewRepository(db *sqlx.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Migrate creates the table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating roll_pressure table: %w", err)
	}
	return nil
}

// UpsertRows writes rows in one transaction, replacing existing
// (market, date) entries.
func (r *Repository) UpsertRows(ctx context.Context, runID string, rows []rollpressure.DerivedRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, upsertSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Market,
			row.Date,
			toNull(row.SpecNetLong),
			toNull(row.OpenInterest),
			row.DaysToExpiry,
			toNull(row.PositioningRatio),
			toNull(row.PosScore),
			toNull(row.TimeWeight),
			toNull(row.RollPressure),
			row.Alert,
			row.Valid,
			runID,
		)
		if err != nil {
			return i, fmt.Errorf("upserting %s %s: %w", row.Market, row.Date.Format(rollpressure.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// Latest returns the most recent stored row of a market.
func (r *Repository) Latest(ctx context.Context, market string) (*Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + selectColumns + ` FROM roll_pressure WHERE market = $1 ORDER BY date DESC LIMIT 1`

	var rec Record
	if err := r.db.QueryRowxContext(ctx, query, market).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("querying latest %s: %w", market, err)
	}
	return &rec, nil
}

// History returns a market's rows in [from, to], oldest first.
func (r *Repository) History(ctx context.Context, market string, from, to time.Time) ([]Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + selectColumns + ` FROM roll_pressure
WHERE market = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC`

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, query, market, from, to); err != nil {
		return nil, fmt.Errorf("querying history %s: %w", market, err)
	}
	return recs, nil
}

func toNull(v float64) sql.NullFloat64 {
	if !rollpressure.Defined(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
