package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"xtgate/internal/domain"
	"xtgate/internal/store"
	"xtgate/internal/util"
	"xtgate/internal/xtapi"
)

// Wire format for query boundaries.
const wireTimeLayout = "20060102150405"

// Bar periods the data service understands.
var intervalToXT = map[domain.Interval]string{
	domain.IntervalMinute: "1m",
	domain.IntervalDaily:  "1d",
}

// The data service keys instruments by its own market codes.
var exchangeToXT = map[domain.Exchange]string{
	domain.ExchangeSSE:   "SH",
	domain.ExchangeSZSE:  "SZ",
	domain.ExchangeBSE:   "BJ",
	domain.ExchangeSHFE:  "SF",
	domain.ExchangeCFFEX: "IF",
	domain.ExchangeINE:   "INE",
	domain.ExchangeDCE:   "DF",
	domain.ExchangeCZCE:  "ZF",
	domain.ExchangeGFEX:  "GF",
}

// Options configures a Datafeed.
type Options struct {
	Client xtapi.MarketClient
	Store  store.BarStore // nil disables the local cache and offline fallback
	Logger *slog.Logger

	// DownloadRetries caps attempts per download, RateLimitPerMin throttles
	// bulk downloads against the data service. Zero values take the defaults.
	DownloadRetries int
	RateLimitPerMin int
}

// Datafeed downloads bar history through the data service and normalizes it
// into canonical bars. Every successful download is cached; when the service
// is unreachable the cache answers instead.
type Datafeed struct {
	log     *slog.Logger
	client  xtapi.MarketClient
	store   store.BarStore
	limiter *util.RateLimiter
	retries int

	now func() time.Time
}

// NewDatafeed creates a Datafeed.
func NewDatafeed(opts Options) *Datafeed {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := opts.DownloadRetries
	if retries < 1 {
		retries = 3
	}
	perMin := opts.RateLimitPerMin
	if perMin < 1 {
		perMin = 120
	}
	return &Datafeed{
		log:     logger.With("component", "history"),
		client:  opts.Client,
		store:   opts.Store,
		limiter: util.NewRateLimiter(perMin),
		retries: retries,
		now:     time.Now,
	}
}

// QueryBarHistory returns normalized bars for [req.Start, req.End]. An
// unsupported interval or venue is logged and answered with an empty result,
// never an error.
func (d *Datafeed) QueryBarHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	period, ok := intervalToXT[req.Interval]
	if !ok {
		d.log.Info("history query unsupported", "interval", req.Interval, "symbol", req.Symbol)
		return nil, nil
	}

	xtExchange, ok := exchangeToXT[req.Exchange]
	if !ok {
		d.log.Info("history query unsupported", "exchange", req.Exchange, "symbol", req.Symbol)
		return nil, nil
	}

	stockCode := req.Symbol + "." + xtExchange
	// Stock-venue symbols longer than six characters are option codes on the
	// dedicated option feed.
	if (xtExchange == "SH" || xtExchange == "SZ") && len(req.Symbol) > 6 {
		stockCode += "O"
	}

	// The trading day of a night session ends on the next calendar day, so
	// the query end is pushed one day out to cover it.
	start := req.Start.In(util.ChinaTZ).Format(wireTimeLayout)
	end := req.End.In(util.ChinaTZ).Add(24 * time.Hour).Format(wireTimeLayout)

	rows, err := d.download(ctx, stockCode, period, start, end)
	if err != nil {
		d.log.Warn("history download failed, falling back to local cache", "stockCode", stockCode, "error", err)
		return d.readCache(ctx, req)
	}

	bars := d.normalize(req, rows)

	if d.store != nil && len(bars) > 0 {
		if err := d.store.WriteBars(ctx, bars); err != nil {
			d.log.Warn("caching bars failed", "stockCode", stockCode, "error", err)
		}
	}

	return bars, nil
}

// download pulls the range into the service's local data store and reads it
// back, retrying transient failures under the rate limit.
func (d *Datafeed) download(ctx context.Context, stockCode, period, start, end string) ([]*xtapi.RawBar, error) {
	err := util.Retry(ctx, d.retries, time.Second, func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		return d.client.DownloadHistory(stockCode, period, start, end)
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s %s: %w", stockCode, period, err)
	}

	rows, err := d.client.LocalBars(stockCode, period, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading local bars for %s %s: %w", stockCode, period, err)
	}
	return rows, nil
}

func (d *Datafeed) readCache(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	if d.store == nil {
		return nil, nil
	}
	bars, err := d.store.ReadBars(ctx, req.Symbol, req.Exchange, req.Interval, req.Start, req.End)
	if err != nil {
		d.log.Warn("local cache read failed", "symbol", req.Symbol, "error", err)
		return nil, nil
	}
	return bars, nil
}

// normalize converts raw service rows into canonical bars: the service stamps
// the interval end while canonical bars carry the start, daily bars for an
// unfinished session are dropped, and pre-open auction micro-bars merge into
// the first regular-session bar.
func (d *Datafeed) normalize(req domain.HistoryRequest, rows []*xtapi.RawBar) []domain.Bar {
	var adjustment time.Duration
	if req.Interval == domain.IntervalMinute {
		adjustment = time.Minute
	}

	now := d.now().In(util.ChinaTZ)

	var bars []domain.Bar
	var bidding *domain.Bar
	for _, row := range rows {
		dt := time.UnixMilli(row.Time).In(util.ChinaTZ).Add(-adjustment)

		if req.Interval == domain.IntervalDaily {
			sameDay := dt.Year() == now.Year() && dt.YearDay() == now.YearDay()
			if sameDay && !sessionClosed(req.Exchange, now) {
				continue
			}
		} else if inAuctionWindow(req.Exchange, dt) {
			if bidding == nil {
				bidding = &domain.Bar{Open: row.Open}
			}
			bidding.Volume += row.Volume
			bidding.Turnover += row.Amount
			continue
		}

		bar := domain.Bar{
			Symbol:       req.Symbol,
			Exchange:     req.Exchange,
			Interval:     req.Interval,
			Time:         dt,
			Open:         row.Open,
			High:         row.High,
			Low:          row.Low,
			Close:        row.Close,
			Volume:       row.Volume,
			Turnover:     row.Amount,
			OpenInterest: row.OpenInterest,
		}

		if bidding != nil {
			bar.Volume += bidding.Volume
			bar.Turnover += bidding.Turnover
			bar.Open = bidding.Open
			bidding = nil
		}

		bars = append(bars, bar)
	}
	return bars
}
