package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"xtgate/internal/domain"
	"xtgate/internal/util"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const barSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol        TEXT    NOT NULL,
	exchange      TEXT    NOT NULL,
	interval      TEXT    NOT NULL,
	ts            INTEGER NOT NULL, -- unix ms, interval start
	open          REAL    NOT NULL,
	high          REAL    NOT NULL,
	low           REAL    NOT NULL,
	close         REAL    NOT NULL,
	volume        REAL    NOT NULL,
	turnover      REAL    NOT NULL,
	open_interest REAL    NOT NULL,
	PRIMARY KEY (symbol, exchange, interval, ts)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(barSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bar schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars upserts a batch of bars in one transaction.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars
		(symbol, exchange, interval, ts, open, high, low, close, volume, turnover, open_interest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx,
			b.Symbol, string(b.Exchange), string(b.Interval), b.Time.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Turnover, b.OpenInterest)
		if err != nil {
			return fmt.Errorf("writing bar %s %s: %w", b.Symbol, b.Time, err)
		}
	}

	return tx.Commit()
}

// ReadBars returns bars within [start, end], ordered by time.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, turnover, open_interest
		FROM bars
		WHERE symbol = ? AND exchange = ? AND interval = ? AND ts BETWEEN ? AND ?
		ORDER BY ts`,
		symbol, string(exchange), string(interval), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var ts int64
		b := domain.Bar{Symbol: symbol, Exchange: exchange, Interval: interval}
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Turnover, &b.OpenInterest); err != nil {
			return nil, err
		}
		b.Time = time.UnixMilli(ts).In(util.ChinaTZ)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
