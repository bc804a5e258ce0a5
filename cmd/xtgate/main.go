package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xtgate/internal/config"
	"xtgate/internal/domain"
	"xtgate/internal/gateway"
	"xtgate/internal/history"
	"xtgate/internal/store"
	"xtgate/internal/util"
	"xtgate/internal/xtapi"
)

// logHandler prints every gateway event through the structured logger. A real
// host engine would consume the events instead.
type logHandler struct {
	log *slog.Logger
}

func (h *logHandler) OnTick(t *domain.Tick) {
	h.log.Debug("tick", "symbol", t.Symbol, "exchange", t.Exchange, "last", t.LastPrice, "volume", t.Volume)
}

func (h *logHandler) OnOrder(o *domain.Order) {
	h.log.Info("order", "localID", o.LocalID, "symbol", o.Symbol, "status", o.Status, "traded", o.Traded, "volume", o.Volume)
}

func (h *logHandler) OnTrade(t *domain.Trade) {
	h.log.Info("trade", "localID", t.LocalID, "tradeID", t.TradeID, "symbol", t.Symbol, "price", t.Price, "volume", t.Volume)
}

func (h *logHandler) OnPosition(p *domain.Position) {
	h.log.Info("position", "symbol", p.Symbol, "direction", p.Direction, "volume", p.Volume, "available", p.Available)
}

func (h *logHandler) OnAccount(a *domain.Account) {
	h.log.Info("account", "id", a.ID, "balance", a.Balance, "available", a.Available)
}

func (h *logHandler) OnContract(c *domain.Contract) {
	h.log.Debug("contract", "symbol", c.Symbol, "exchange", c.Exchange, "product", c.Product)
}

func (h *logHandler) OnLog(msg string) {
	h.log.Info(msg)
}

func main() {
	cfgPath := "config/xtgate.yaml"
	if p := os.Getenv("XTGATE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// The broker surface. The in-memory simulator stands in for the native
	// trading client on hosts without one; it implements the same interfaces.
	sim := xtapi.NewSimulator()
	sim.AutoFill = true

	var recorder gateway.TickRecorder
	if cfg.Record.Enabled {
		r := store.NewTickRecorder(cfg.Record.DataDir, cfg.Record.FlushSize)
		defer func() {
			if err := r.Close(); err != nil {
				logger.Error("flushing tick recorder", "error", err)
			}
		}()
		recorder = r
	}

	var datafeed gateway.HistoryProvider
	if cfg.History.SQLitePath != "" {
		barStore, err := store.NewSQLiteStore(cfg.History.SQLitePath)
		if err != nil {
			log.Fatalf("opening bar store: %v", err)
		}
		defer barStore.Close()

		datafeed = history.NewDatafeed(history.Options{
			Client:          sim,
			Store:           barStore,
			Logger:          logger,
			DownloadRetries: cfg.History.DownloadRetries,
			RateLimitPerMin: cfg.History.RateLimitPerMin,
		})
	}

	gw := gateway.New(gateway.Options{
		Handler:     &logHandler{log: logger},
		Logger:      logger,
		Dialer:      func(path string, session int) xtapi.TraderClient { return sim },
		Market:      sim,
		History:     datafeed,
		Recorder:    recorder,
		PollDivisor: cfg.Poll.Divisor,
	})

	if err := gw.Connect(cfg.XT); err != nil {
		log.Fatalf("connecting gateway: %v", err)
	}
	defer gw.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go gw.RunPolling(ctx, time.Second)

	logger.Info("gateway running", "trading", cfg.XT.Trading, "contracts", gw.Contracts().Len())
	<-ctx.Done()
	logger.Info("shutting down gateway")
}
