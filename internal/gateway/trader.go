package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"xtgate/internal/domain"
	"xtgate/internal/util"
	"xtgate/internal/xtapi"
)

// State is the trading session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Compile-time check: the session is the broker's push sink.
var _ xtapi.TraderCallback = (*TraderSession)(nil)

// TraderSession owns the trading connection lifecycle and normalizes every
// trading push and query result into canonical events. Callback methods run
// on the broker client's delivery goroutine; Send/Cancel/Query methods run on
// whatever goroutine the host calls from.
type TraderSession struct {
	gw   *Gateway
	log  *slog.Logger
	dial xtapi.TraderDialer

	path    string
	account xtapi.Account

	mu     sync.Mutex
	client xtapi.TraderClient
	state  State
	inited bool

	idTable    *IDTable
	orderCount atomic.Int64

	now func() time.Time
}

func newTraderSession(gw *Gateway, dial xtapi.TraderDialer, logger *slog.Logger) *TraderSession {
	return &TraderSession{
		gw:      gw,
		log:     logger.With("component", "trader"),
		dial:    dial,
		idTable: NewIDTable(),
		now:     time.Now,
	}
}

// State returns the current lifecycle state.
func (s *TraderSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TraderSession) setState(state State) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()
	if old != state {
		s.log.Info("trading session state change", "from", old.String(), "to", state.String())
	}
}

func (s *TraderSession) currentClient() xtapi.TraderClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return s.client
}

// Init opens the trading session for the given account. Calling it twice is
// a logged no-op.
func (s *TraderSession) Init(path, accountID, accountType string) error {
	s.mu.Lock()
	if s.inited {
		s.mu.Unlock()
		s.gw.writeLog("trading session already initialised")
		return nil
	}
	s.inited = true
	s.path = path
	s.account = xtapi.Account{ID: accountID, Type: accountType}
	s.mu.Unlock()

	return s.connect(0)
}

// connect dials a fresh client under a new session id and performs the
// handshake. session == 0 generates one from the wall clock; ids must never
// be reused because the broker rejects a recycled session.
func (s *TraderSession) connect(session int) error {
	if session == 0 {
		session = newSessionID(s.now())
	}

	s.setState(StateConnecting)

	client := s.dial(s.path, session)
	client.RegisterCallback(s)
	client.Start()

	if err := client.Connect(); err != nil {
		s.setState(StateDisconnected)
		s.gw.writeLog("trading session connect failed: " + err.Error())
		return fmt.Errorf("connecting trading session: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.setState(StateConnected)
	s.gw.writeLog("trading session connected")

	if err := client.SubscribeAccount(s.account); err != nil {
		s.gw.writeLog("trading push subscription failed: " + err.Error())
		return fmt.Errorf("subscribing trading pushes: %w", err)
	}
	s.gw.writeLog("trading push subscription ok")

	// Initial reconciliation burst: rebuild account, position and the id
	// table from whatever the broker still holds for this account.
	s.QueryAccount()
	s.QueryPosition()
	s.QueryOrders()
	s.QueryTrades()

	return nil
}

// OnDisconnected handles an unsolicited session loss with a single reconnect
// attempt under a fresh session id. No retry loop: repeated failures are
// surfaced to the operator and left to external supervision.
func (s *TraderSession) OnDisconnected() {
	s.gw.writeLog("trading session disconnected")
	s.setState(StateReconnecting)

	if err := s.connect(newSessionID(s.now())); err != nil {
		s.gw.writeLog("trading session reconnect failed")
		return
	}
	s.gw.writeLog("trading session reconnect ok")
}

// Close stops the session and clears the correlation table.
func (s *TraderSession) Close() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.inited = false
	s.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	s.setState(StateDisconnected)
	s.idTable.Clear()
}

// ---------------------------------------------------------------------------
// Outbound path
// ---------------------------------------------------------------------------

// SendOrder validates the request against the contract cache and the mapping
// tables, then fires the order. Every rejection happens before any broker
// call and carries its specific reason.
func (s *TraderSession) SendOrder(req *domain.OrderRequest) (string, error) {
	contract, ok := s.gw.contracts.Get(req.Symbol, req.Exchange)
	if !ok {
		s.gw.writeLog(fmt.Sprintf("order rejected: unknown contract %s", domain.SymbolKey(req.Symbol, req.Exchange)))
		return "", fmt.Errorf("%w: %s", ErrUnknownContract, domain.SymbolKey(req.Symbol, req.Exchange))
	}

	priceType, ok := PriceTypeToXT(req.Exchange, req.Type)
	if !ok {
		s.gw.writeLog(fmt.Sprintf("order rejected: unsupported order type %s on %s", req.Type, req.Exchange))
		return "", fmt.Errorf("unsupported order type %s on venue %s", req.Type, req.Exchange)
	}

	if req.Offset == domain.OffsetNone {
		if contract.Product.Derivative() {
			s.gw.writeLog("order rejected: derivative order missing open/close offset")
			return "", fmt.Errorf("derivative order missing open/close offset")
		}
	} else {
		if !contract.Product.Derivative() {
			s.gw.writeLog("order rejected: cash order must not specify open/close offset")
			return "", fmt.Errorf("cash order must not specify open/close offset")
		}
	}

	operation, ok := OperationToXT(req.Direction, req.Offset)
	if !ok {
		s.gw.writeLog(fmt.Sprintf("order rejected: unsupported direction %s with offset %q", req.Direction, req.Offset))
		return "", fmt.Errorf("unsupported direction %s with offset %q", req.Direction, req.Offset)
	}

	client := s.currentClient()
	if client == nil {
		return "", ErrNotConnected
	}

	xtExchange, ok := ExchangeToXT(req.Exchange)
	if !ok {
		return "", fmt.Errorf("unsupported venue %s", req.Exchange)
	}
	stockCode := req.Symbol + "." + xtExchange
	if s.account.Type == "STOCK_OPTION" {
		stockCode += "O"
	}

	localID := s.newLocalID()

	err := client.OrderStockAsync(s.account, stockCode, operation, int64(req.Volume), priceType, req.Price, req.Reference, localID)
	if err != nil {
		s.gw.writeLog("order submission failed: " + err.Error())
		return "", fmt.Errorf("submitting order: %w", err)
	}

	order := req.NewOrder(localID, s.now().In(util.ChinaTZ))
	s.gw.emitOrder(order)

	return localID, nil
}

// CancelOrder resolves the broker sysid for the local id and fires the
// cancellation. An unresolved id is a soft failure, not a fault.
func (s *TraderSession) CancelOrder(req *domain.CancelRequest) error {
	sysID, ok := s.ids().Resolve(req.LocalID)
	if !ok {
		s.gw.writeLog("cancel rejected: order id not resolvable: " + req.LocalID)
		return ErrNotResolvable
	}

	client := s.currentClient()
	if client == nil {
		return ErrNotConnected
	}

	market := xtapi.MarketSZ
	if req.Exchange == domain.ExchangeSSE {
		market = xtapi.MarketSH
	}

	if err := client.CancelOrderSysIDAsync(s.account, market, sysID); err != nil {
		s.gw.writeLog("cancel submission failed: " + err.Error())
		return fmt.Errorf("submitting cancel: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reconciliation queries (fire-and-forget)
// ---------------------------------------------------------------------------

// QueryAccount requests an asset snapshot.
func (s *TraderSession) QueryAccount() {
	client := s.currentClient()
	if client == nil {
		return
	}
	if err := client.QueryAssetAsync(s.account, s.onQueryAsset); err != nil {
		s.log.Warn("asset query failed", "error", err)
	}
}

// QueryPosition requests position snapshots.
func (s *TraderSession) QueryPosition() {
	client := s.currentClient()
	if client == nil {
		return
	}
	if err := client.QueryPositionsAsync(s.account, s.onQueryPositions); err != nil {
		s.log.Warn("position query failed", "error", err)
	}
}

// QueryOrders requests the full order list; results replay through the same
// normalizer as pushes.
func (s *TraderSession) QueryOrders() {
	client := s.currentClient()
	if client == nil {
		return
	}
	err := client.QueryOrdersAsync(s.account, func(orders []*xtapi.Order) {
		for _, order := range orders {
			s.OnStockOrder(order)
		}
	})
	if err != nil {
		s.log.Warn("order query failed", "error", err)
	}
}

// QueryTrades requests the full trade list.
func (s *TraderSession) QueryTrades() {
	client := s.currentClient()
	if client == nil {
		return
	}
	err := client.QueryTradesAsync(s.account, func(trades []*xtapi.Trade) {
		for _, trade := range trades {
			s.OnStockTrade(trade)
		}
	})
	if err != nil {
		s.log.Warn("trade query failed", "error", err)
	}
}

// ---------------------------------------------------------------------------
// Push normalization (broker delivery goroutine)
// ---------------------------------------------------------------------------

// OnStockOrder normalizes an order push. Orders without our remark belong to
// another session and are ignored; unmapped codes and malformed payloads drop
// the single record without disturbing anything else.
func (s *TraderSession) OnStockOrder(xt *xtapi.Order) {
	if xt.OrderRemark == "" {
		return
	}

	orderType, ok := PriceTypeFromXT(xt.PriceType)
	if !ok {
		return
	}

	direction, offset, ok := OperationFromXT(xt.OrderType)
	if !ok {
		return
	}

	symbol, exchange, ok := SplitStockCode(xt.StockCode)
	if !ok {
		s.log.Warn("dropping order push with unknown stock code", "stockCode", xt.StockCode)
		return
	}

	order := &domain.Order{
		Symbol:    symbol,
		Exchange:  exchange,
		LocalID:   xt.OrderRemark,
		Direction: direction,
		Offset:    offset,
		Type:      orderType,
		Price:     xt.Price,
		Volume:    float64(xt.OrderVolume),
		Traded:    float64(xt.TradedVolume),
		Status:    StatusFromXT(xt.OrderStatus),
		Time:      time.Unix(xt.OrderTime, 0).In(util.ChinaTZ),
	}

	// The venue assigns the sysid asynchronously; early pushes carry an empty
	// one. Recording it would let a cancel fire with an empty sysid, so the
	// local id stays unresolvable until a push delivers a real sysid.
	switch {
	case !order.IsActive():
		s.ids().Remove(order.LocalID)
	case xt.OrderSysID != "":
		s.ids().RecordActive(order.LocalID, xt.OrderSysID)
	}

	s.gw.emitOrder(order)
}

// OnStockTrade normalizes a trade push.
func (s *TraderSession) OnStockTrade(xt *xtapi.Trade) {
	if xt.OrderRemark == "" {
		return
	}

	direction, offset, ok := OperationFromXT(xt.OrderType)
	if !ok {
		return
	}

	symbol, exchange, ok := SplitStockCode(xt.StockCode)
	if !ok {
		s.log.Warn("dropping trade push with unknown stock code", "stockCode", xt.StockCode)
		return
	}

	s.gw.emitTrade(&domain.Trade{
		Symbol:    symbol,
		Exchange:  exchange,
		LocalID:   xt.OrderRemark,
		TradeID:   xt.TradedID,
		Direction: direction,
		Offset:    offset,
		Price:     xt.TradedPrice,
		Volume:    float64(xt.TradedVolume),
		Time:      time.Unix(xt.TradedTime, 0).In(util.ChinaTZ),
	})
}

// OnOrderError translates a venue rejection into a terminal status on the
// corresponding canonical order.
func (s *TraderSession) OnOrderError(e *xtapi.OrderError) {
	if order := s.gw.getOrder(e.OrderRemark); order != nil {
		order.Status = domain.StatusRejected
		s.ids().Remove(order.LocalID)
		s.gw.emitOrder(order)
	}

	s.gw.writeLog(fmt.Sprintf("order rejected by venue, code %d: %s", e.ErrorID, e.ErrorMsg))
}

// OnCancelError reports a failed cancellation.
func (s *TraderSession) OnCancelError(e *xtapi.CancelError) {
	s.gw.writeLog(fmt.Sprintf("cancel rejected by venue, code %d: %s", e.ErrorID, e.ErrorMsg))
}

func (s *TraderSession) onQueryAsset(asset *xtapi.Asset) {
	if asset == nil {
		return
	}
	s.gw.emitAccount(&domain.Account{
		ID:        asset.AccountID,
		Balance:   asset.TotalAsset,
		Frozen:    asset.FrozenCash,
		Available: asset.Cash,
	})
}

func (s *TraderSession) onQueryPositions(positions []*xtapi.Position) {
	for _, p := range positions {
		var direction domain.Direction
		if s.account.Type == "STOCK" {
			direction = domain.DirectionNet
		} else {
			var ok bool
			direction, ok = PosDirectionFromXT(p.Direction)
			if !ok {
				continue
			}
		}

		symbol, exchange, ok := SplitStockCode(p.StockCode)
		if !ok {
			s.log.Warn("dropping position with unknown stock code", "stockCode", p.StockCode)
			continue
		}

		s.gw.emitPosition(&domain.Position{
			Symbol:    symbol,
			Exchange:  exchange,
			Direction: direction,
			Volume:    float64(p.Volume),
			Available: float64(p.CanUseVolume),
			Frozen:    float64(p.Volume - p.CanUseVolume),
			Price:     p.OpenPrice,
		})
	}
}

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

func (s *TraderSession) ids() *IDTable {
	return s.idTable
}

// newLocalID generates a process-unique local order id: a "1"-prefixed
// wall-clock stamp plus a monotonic counter.
func (s *TraderSession) newLocalID() string {
	n := s.orderCount.Add(1)
	return "1" + s.now().Format("0102150405") + fmt.Sprintf("%06d", n)
}

// newSessionID derives a broker session id from the wall clock so a fresh
// connect never collides with a still-draining prior session.
func newSessionID(now time.Time) int {
	h, m, sec := now.Clock()
	ms := now.Nanosecond() / int(time.Millisecond)
	return ((h*10000)+(m*100)+sec)*1000 + ms
}
