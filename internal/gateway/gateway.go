package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"xtgate/internal/config"
	"xtgate/internal/domain"
	"xtgate/internal/xtapi"
)

// EventHandler is the host engine's sink for everything the gateway emits.
// Methods are invoked from broker delivery goroutines and from the poll
// timer; implementations must be safe for concurrent use.
type EventHandler interface {
	OnTick(tick *domain.Tick)
	OnOrder(order *domain.Order)
	OnTrade(trade *domain.Trade)
	OnPosition(position *domain.Position)
	OnAccount(account *domain.Account)
	OnContract(contract *domain.Contract)
	OnLog(msg string)
}

// TickRecorder archives enriched ticks. Optional.
type TickRecorder interface {
	Record(tick *domain.Tick) error
}

// HistoryProvider serves historical bar queries. Optional.
type HistoryProvider interface {
	QueryBarHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error)
}

// Options wires a Gateway's collaborators.
type Options struct {
	Handler  EventHandler
	Logger   *slog.Logger
	Dialer   xtapi.TraderDialer
	Market   xtapi.MarketClient
	History  HistoryProvider // nil disables QueryHistory
	Recorder TickRecorder    // nil disables tick recording

	// PollDivisor is how many OnTimer calls pass between reconciliation
	// queries. Zero means the default of 2.
	PollDivisor int
}

// Gateway is the adapter facade the host engine talks to. It owns the
// contract cache, both broker sessions and the reconciliation poller, and
// funnels every push and poll result through one emission point per event
// kind.
type Gateway struct {
	log      *slog.Logger
	handler  EventHandler
	recorder TickRecorder
	history  HistoryProvider

	contracts *ContractCache
	td        *TraderSession
	md        *MarketSession
	poller    *Poller

	trading bool

	mu     sync.Mutex
	orders map[string]*domain.Order // latest view per active local id
}

// New creates a Gateway. Connect must be called before anything else.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	divisor := opts.PollDivisor
	if divisor == 0 {
		divisor = 2
	}

	g := &Gateway{
		log:       logger.With("component", "gateway"),
		handler:   opts.Handler,
		recorder:  opts.Recorder,
		history:   opts.History,
		contracts: NewContractCache(),
		orders:    make(map[string]*domain.Order),
	}
	g.td = newTraderSession(g, opts.Dialer, logger)
	g.md = newMarketSession(g, opts.Market, logger)
	g.poller = NewPoller(divisor, g.td.QueryAccount, g.td.QueryPosition)

	return g
}

// Contracts exposes the contract cache.
func (g *Gateway) Contracts() *ContractCache {
	return g.contracts
}

// Connect brings up the market-data session, populates the contract cache,
// and, when trading is enabled, opens the trading session.
func (g *Gateway) Connect(cfg config.XT) error {
	if err := g.md.Connect(cfg.Token, cfg.StockActive, cfg.FuturesActive, cfg.OptionActive); err != nil {
		return err
	}

	g.trading = cfg.Trading
	if !g.trading {
		return nil
	}

	return g.td.Init(cfg.Path, cfg.AccountID, cfg.AccountType)
}

// Subscribe requests market data for one instrument. Idempotent.
func (g *Gateway) Subscribe(req domain.SubscribeRequest) {
	g.md.Subscribe(req)
}

// SendOrder validates and submits an order, returning the local order id.
func (g *Gateway) SendOrder(req *domain.OrderRequest) (string, error) {
	if !g.trading {
		return "", ErrTradingDisabled
	}
	return g.td.SendOrder(req)
}

// CancelOrder requests cancellation of a working order.
func (g *Gateway) CancelOrder(req *domain.CancelRequest) error {
	if !g.trading {
		return ErrTradingDisabled
	}
	return g.td.CancelOrder(req)
}

// QueryHistory returns historical bars, or an empty slice when the provider
// is absent or the combination is unsupported.
func (g *Gateway) QueryHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	if g.history == nil {
		g.writeLog("history query ignored: no datafeed configured")
		return nil, nil
	}
	return g.history.QueryBarHistory(ctx, req)
}

// OnTimer is the host timer entry point driving reconciliation polling.
func (g *Gateway) OnTimer() {
	if g.trading {
		g.poller.OnTimer()
	}
}

// RunPolling drives reconciliation from an internal ticker until ctx ends.
func (g *Gateway) RunPolling(ctx context.Context, interval time.Duration) {
	if g.trading {
		g.poller.Run(ctx, interval)
	}
}

// Close tears down both sessions and clears all per-session state.
func (g *Gateway) Close() {
	if g.trading {
		g.td.Close()
	}
	g.md.Close()
	g.contracts.Clear()

	g.mu.Lock()
	g.orders = make(map[string]*domain.Order)
	g.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Emission points — one per event kind
// ---------------------------------------------------------------------------

func (g *Gateway) emitTick(tick *domain.Tick) {
	if g.recorder != nil {
		if err := g.recorder.Record(tick); err != nil {
			g.log.Warn("tick recorder write failed", "error", err)
		}
	}
	if g.handler != nil {
		g.handler.OnTick(tick)
	}
}

// emitOrder caches the latest view of active orders (the venue-rejection
// path needs it) and forwards the event. Terminal orders leave the cache.
func (g *Gateway) emitOrder(order *domain.Order) {
	g.mu.Lock()
	if order.IsActive() {
		copied := *order
		g.orders[order.LocalID] = &copied
	} else {
		delete(g.orders, order.LocalID)
	}
	g.mu.Unlock()

	if g.handler != nil {
		g.handler.OnOrder(order)
	}
}

// getOrder returns a copy of the cached active order, or nil.
func (g *Gateway) getOrder(localID string) *domain.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[localID]
	if !ok {
		return nil
	}
	copied := *order
	return &copied
}

func (g *Gateway) emitTrade(trade *domain.Trade) {
	if g.handler != nil {
		g.handler.OnTrade(trade)
	}
}

func (g *Gateway) emitPosition(position *domain.Position) {
	if g.handler != nil {
		g.handler.OnPosition(position)
	}
}

func (g *Gateway) emitAccount(account *domain.Account) {
	if g.handler != nil {
		g.handler.OnAccount(account)
	}
}

func (g *Gateway) emitContract(contract *domain.Contract) {
	if g.handler != nil {
		g.handler.OnContract(contract)
	}
}

// writeLog reports an operator-facing message both to the logger and to the
// host engine's log event stream.
func (g *Gateway) writeLog(msg string) {
	g.log.Info(msg)
	if g.handler != nil {
		g.handler.OnLog(msg)
	}
}
