// Package store persists market data: historical bars in SQLite and recorded
// ticks in Parquet files on disk.
package store

import (
	"context"
	"time"

	"xtgate/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data. The datafeed writes every
// normalized download here and falls back to it when the data service is
// unreachable.
type BarStore interface {
	// WriteBars persists a batch of bars. Re-writing an existing bar replaces
	// it; downloads overlap on purpose.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given instrument and interval within
	// [start, end], ordered by time.
	ReadBars(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval, start, end time.Time) ([]domain.Bar, error)
}
