package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"xtgate/internal/config"
	"xtgate/internal/domain"
	"xtgate/internal/history"
	"xtgate/internal/store"
	"xtgate/internal/util"
	"xtgate/internal/xtapi"
)

// xtgate-history downloads historical bars for one instrument into the local
// SQLite cache and prints a summary.
func main() {
	var (
		symbol   = flag.String("symbol", "", "instrument symbol, e.g. 600000")
		exchange = flag.String("exchange", "SSE", "canonical exchange code (SSE, SZSE, SHFE, ...)")
		interval = flag.String("interval", "1m", "bar interval: 1m or d")
		startStr = flag.String("start", "", "start date, YYYY-MM-DD")
		endStr   = flag.String("end", "", "end date, YYYY-MM-DD (default today)")
	)
	flag.Parse()

	if *symbol == "" || *startStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	start, err := time.ParseInLocation("2006-01-02", *startStr, util.ChinaTZ)
	if err != nil {
		log.Fatalf("parsing start date: %v", err)
	}
	end := time.Now().In(util.ChinaTZ)
	if *endStr != "" {
		end, err = time.ParseInLocation("2006-01-02", *endStr, util.ChinaTZ)
		if err != nil {
			log.Fatalf("parsing end date: %v", err)
		}
	}

	cfgPath := "config/xtgate.yaml"
	if p := os.Getenv("XTGATE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	var barStore store.BarStore
	if cfg.History.SQLitePath != "" {
		s, err := store.NewSQLiteStore(cfg.History.SQLitePath)
		if err != nil {
			log.Fatalf("opening bar store: %v", err)
		}
		defer s.Close()
		barStore = s
	}

	client := xtapi.NewSimulator()
	if err := client.Init(cfg.XT.Token); err != nil {
		log.Fatalf("initialising data service: %v", err)
	}

	datafeed := history.NewDatafeed(history.Options{
		Client:          client,
		Store:           barStore,
		Logger:          logger,
		DownloadRetries: cfg.History.DownloadRetries,
		RateLimitPerMin: cfg.History.RateLimitPerMin,
	})

	bars, err := datafeed.QueryBarHistory(context.Background(), domain.HistoryRequest{
		Symbol:   *symbol,
		Exchange: domain.Exchange(*exchange),
		Interval: domain.Interval(*interval),
		Start:    start,
		End:      end,
	})
	if err != nil {
		log.Fatalf("querying history: %v", err)
	}

	if len(bars) == 0 {
		fmt.Printf("no bars for %s.%s %s in [%s, %s]\n", *symbol, *exchange, *interval, *startStr, *endStr)
		return
	}

	fmt.Printf("%d bars for %s.%s %s\n", len(bars), *symbol, *exchange, *interval)
	fmt.Printf("  first: %s  O=%.4f H=%.4f L=%.4f C=%.4f V=%.0f\n",
		bars[0].Time.Format("2006-01-02 15:04"), bars[0].Open, bars[0].High, bars[0].Low, bars[0].Close, bars[0].Volume)
	last := bars[len(bars)-1]
	fmt.Printf("  last:  %s  O=%.4f H=%.4f L=%.4f C=%.4f V=%.0f\n",
		last.Time.Format("2006-01-02 15:04"), last.Open, last.High, last.Low, last.Close, last.Volume)
}
