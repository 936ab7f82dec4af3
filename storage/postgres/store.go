// Package postgres persists accepted measurements and serves the hourly
// history aggregate.
package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// Postgres driver registration
	_ "github.com/lib/pq"

	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/message"
	"github.com/c360/gridstream/pkg/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS raw_measurements (
    id SERIAL PRIMARY KEY,
    device_id UUID NOT NULL,
    user_id UUID NOT NULL,
    recorded_at TIMESTAMP NOT NULL,
    consumption_kwh NUMERIC(10, 5) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_measurements_device_time
    ON raw_measurements (device_id, recorded_at);
`

// HourlyTotal is one hour's summed consumption for a device
type HourlyTotal struct {
	Hour  int     `json:"hour"`
	Value float64 `json:"value"`
}

// Store is the measurement store over a Postgres connection pool
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Options configures the connection pool
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnectRetry time.Duration
}

// Open connects to Postgres and pings until the database answers.
// The database being down at startup is a transport failure to wait out,
// not an exit condition.
func Open(ctx context.Context, dsn string, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Store", "Open", "parse connection string")
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	delay := opts.ConnectRetry
	if delay <= 0 {
		delay = 5 * time.Second
	}

	attempt := 0
	err = retry.Forever(ctx, delay, func() error {
		attempt++
		if pingErr := db.PingContext(ctx); pingErr != nil {
			logger.Warn("Postgres not ready, retrying",
				"attempt", attempt,
				"retry_in", delay,
				"error", pingErr)
			return pingErr
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(err, "Store", "Open", "ping database")
	}

	logger.Info("Connected to Postgres")

	return &Store{db: db, logger: logger}, nil
}

// NewStore wraps an existing connection pool. Used by tests.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the measurement table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapTransient(err, "Store", "EnsureSchema", "create tables")
	}
	return nil
}

// Insert persists one accepted measurement
func (s *Store) Insert(ctx context.Context, m message.Measurement) error {
	recordedAt, err := m.RecordedAt()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_measurements (device_id, user_id, recorded_at, consumption_kwh)
		 VALUES ($1, $2, $3, $4)`,
		m.DeviceID, m.UserID, recordedAt, m.Value)
	if err != nil {
		return errors.WrapTransient(err, "Store", "Insert", "insert measurement")
	}

	return nil
}

// HourlyTotals returns summed consumption per calendar hour for a device
// on the given date. Hours without data are omitted; rows are ordered by
// hour ascending. The read reflects whatever the store currently holds.
func (s *Store) HourlyTotals(ctx context.Context, deviceID string, date time.Time) ([]HourlyTotal, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx,
		`SELECT EXTRACT(HOUR FROM recorded_at)::int AS hour,
		        SUM(consumption_kwh)::float8 AS value
		 FROM raw_measurements
		 WHERE device_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		 GROUP BY hour
		 ORDER BY hour`,
		deviceID, dayStart, dayEnd)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "HourlyTotals", "query hourly totals")
	}
	defer func() { _ = rows.Close() }()

	var totals []HourlyTotal
	for rows.Next() {
		var ht HourlyTotal
		if err := rows.Scan(&ht.Hour, &ht.Value); err != nil {
			return nil, errors.WrapTransient(err, "Store", "HourlyTotals", "scan row")
		}
		totals = append(totals, ht)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Store", "HourlyTotals", "iterate rows")
	}

	return totals, nil
}

// Ping checks database liveness
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "Store", "Ping", "ping database")
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}
