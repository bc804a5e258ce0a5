package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"xtgate/internal/domain"
)

// TickRecorder archives enriched ticks to Parquet files on disk, one file per
// instrument per trading day. Record buffers in memory and flushes every
// flushSize ticks; Close flushes the remainder.
type TickRecorder struct {
	dataDir   string
	flushSize int

	mu  sync.Mutex
	buf []*domain.Tick
}

// NewTickRecorder creates a recorder rooted at dataDir.
func NewTickRecorder(dataDir string, flushSize int) *TickRecorder {
	if flushSize < 1 {
		flushSize = 1000
	}
	return &TickRecorder{dataDir: dataDir, flushSize: flushSize}
}

// TickRecord is the Parquet schema for recorded ticks. Depth levels are
// flattened; level one is enough for most replay uses and the full book stays
// available.
type TickRecord struct {
	Symbol       string  `parquet:"symbol"`
	Exchange     string  `parquet:"exchange"`
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	LastPrice    float64 `parquet:"last_price"`
	Volume       float64 `parquet:"volume"`
	Turnover     float64 `parquet:"turnover"`
	OpenInterest float64 `parquet:"open_interest"`
	BidPrice1    float64 `parquet:"bid_price_1"`
	BidVolume1   float64 `parquet:"bid_volume_1"`
	AskPrice1    float64 `parquet:"ask_price_1"`
	AskVolume1   float64 `parquet:"ask_volume_1"`
	BidPrice2    float64 `parquet:"bid_price_2"`
	BidVolume2   float64 `parquet:"bid_volume_2"`
	AskPrice2    float64 `parquet:"ask_price_2"`
	AskVolume2   float64 `parquet:"ask_volume_2"`
	BidPrice3    float64 `parquet:"bid_price_3"`
	BidVolume3   float64 `parquet:"bid_volume_3"`
	AskPrice3    float64 `parquet:"ask_price_3"`
	AskVolume3   float64 `parquet:"ask_volume_3"`
	BidPrice4    float64 `parquet:"bid_price_4"`
	BidVolume4   float64 `parquet:"bid_volume_4"`
	AskPrice4    float64 `parquet:"ask_price_4"`
	AskVolume4   float64 `parquet:"ask_volume_4"`
	BidPrice5    float64 `parquet:"bid_price_5"`
	BidVolume5   float64 `parquet:"bid_volume_5"`
	AskPrice5    float64 `parquet:"ask_price_5"`
	AskVolume5   float64 `parquet:"ask_volume_5"`
}

// Record buffers one tick and flushes when the buffer fills.
func (r *TickRecorder) Record(tick *domain.Tick) error {
	r.mu.Lock()
	copied := *tick
	r.buf = append(r.buf, &copied)
	full := len(r.buf) >= r.flushSize
	r.mu.Unlock()

	if full {
		return r.Flush()
	}
	return nil
}

// Flush writes all buffered ticks to disk, merging with any records already
// present in the target files.
func (r *TickRecorder) Flush() error {
	r.mu.Lock()
	buf := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}

	type key struct {
		instrument string // "symbol.EXCHANGE"
		date       string // YYYY-MM-DD
	}
	groups := make(map[key][]TickRecord)
	for _, t := range buf {
		k := key{
			instrument: domain.SymbolKey(t.Symbol, t.Exchange),
			date:       t.Time.Format("2006-01-02"),
		}
		groups[k] = append(groups[k], toTickRecord(t))
	}

	for k, records := range groups {
		path := filepath.Join(r.dataDir, "ticks", k.instrument, k.date+".parquet")

		existing, _ := readParquetFile[TickRecord](path)
		merged := mergeTickRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing ticks for %s/%s: %w", k.instrument, k.date, err)
		}
	}
	return nil
}

// Close flushes the remaining buffer.
func (r *TickRecorder) Close() error {
	return r.Flush()
}

// ReadTicks reads recorded ticks for one instrument within [start, end].
func (r *TickRecorder) ReadTicks(symbol string, exchange domain.Exchange, start, end time.Time) ([]TickRecord, error) {
	instrument := domain.SymbolKey(symbol, exchange)

	var ticks []TickRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		path := filepath.Join(r.dataDir, "ticks", instrument, d.Format("2006-01-02")+".parquet")
		records, err := readParquetFile[TickRecord](path)
		if err != nil {
			continue
		}
		for _, rec := range records {
			ts := time.UnixMilli(rec.Timestamp)
			if !ts.Before(start) && !ts.After(end) {
				ticks = append(ticks, rec)
			}
		}
	}
	return ticks, nil
}

func toTickRecord(t *domain.Tick) TickRecord {
	return TickRecord{
		Symbol:       t.Symbol,
		Exchange:     string(t.Exchange),
		Timestamp:    t.Time.UnixMilli(),
		LastPrice:    t.LastPrice,
		Volume:       t.Volume,
		Turnover:     t.Turnover,
		OpenInterest: t.OpenInterest,
		BidPrice1:    t.BidPrice[0], BidVolume1: t.BidVolume[0], AskPrice1: t.AskPrice[0], AskVolume1: t.AskVolume[0],
		BidPrice2: t.BidPrice[1], BidVolume2: t.BidVolume[1], AskPrice2: t.AskPrice[1], AskVolume2: t.AskVolume[1],
		BidPrice3: t.BidPrice[2], BidVolume3: t.BidVolume[2], AskPrice3: t.AskPrice[2], AskVolume3: t.AskVolume[2],
		BidPrice4: t.BidPrice[3], BidVolume4: t.BidVolume[3], AskPrice4: t.AskPrice[3], AskVolume4: t.AskVolume[3],
		BidPrice5: t.BidPrice[4], BidVolume5: t.BidVolume[4], AskPrice5: t.AskPrice[4], AskVolume5: t.AskVolume[4],
	}
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeTickRecords deduplicates records by (symbol, timestamp), preferring new
// records over existing ones. Results are sorted by timestamp.
func mergeTickRecords(existing, incoming []TickRecord) []TickRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]TickRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]TickRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
