package gateway

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"xtgate/internal/config"
	"xtgate/internal/domain"
	"xtgate/internal/xtapi"
)

// recordingHandler collects every emitted event for inspection.
type recordingHandler struct {
	mu        sync.Mutex
	ticks     []*domain.Tick
	orders    []*domain.Order
	trades    []*domain.Trade
	positions []*domain.Position
	accounts  []*domain.Account
	contracts []*domain.Contract
	logs      []string
}

func (h *recordingHandler) OnTick(t *domain.Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ticks = append(h.ticks, t)
}

func (h *recordingHandler) OnOrder(o *domain.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *o
	h.orders = append(h.orders, &copied)
}

func (h *recordingHandler) OnTrade(t *domain.Trade) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trades = append(h.trades, t)
}

func (h *recordingHandler) OnPosition(p *domain.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.positions = append(h.positions, p)
}

func (h *recordingHandler) OnAccount(a *domain.Account) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts = append(h.accounts, a)
}

func (h *recordingHandler) OnContract(c *domain.Contract) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contracts = append(h.contracts, c)
}

func (h *recordingHandler) OnLog(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, msg)
}

func (h *recordingHandler) orderStatuses() []domain.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	statuses := make([]domain.Status, len(h.orders))
	for i, o := range h.orders {
		statuses[i] = o.Status
	}
	return statuses
}

func (h *recordingHandler) lastOrder() *domain.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.orders) == 0 {
		return nil
	}
	return h.orders[len(h.orders)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stockDetail(name string) *xtapi.InstrumentDetail {
	return &xtapi.InstrumentDetail{
		InstrumentName:      name,
		VolumeMultiple:      1,
		PriceTick:           0.01,
		MinLimitOrderVolume: 100,
		UpStopPrice:         11.0,
		DownStopPrice:       9.0,
	}
}

// newTestGateway wires a Gateway onto one Simulator serving both the trading
// and the market-data side.
func newTestGateway(handler EventHandler, sim *xtapi.Simulator) *Gateway {
	return New(Options{
		Handler: handler,
		Logger:  quietLogger(),
		Dialer:  func(string, int) xtapi.TraderClient { return sim },
		Market:  sim,
	})
}

func tradingCfg() config.XT {
	return config.XT{
		Token:       "test-token",
		Path:        "/tmp/userdata",
		AccountID:   "1000000365",
		AccountType: "STOCK",
		StockActive: true,
		Trading:     true,
	}
}

// ---------------------------------------------------------------------------
// Connect and contract population
// ---------------------------------------------------------------------------

func TestConnectPopulatesContracts(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))
	sim.SeedInstrument("159915.SZ", "沪深ETF", stockDetail("创业板ETF"))

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)

	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	contract, ok := gw.Contracts().Get("600000", domain.ExchangeSSE)
	if !ok {
		t.Fatal("600000.SSE missing from contract cache")
	}
	if contract.Product != domain.ProductEquity {
		t.Errorf("600000 Product = %q, want equity", contract.Product)
	}
	if contract.Name != "浦发银行" {
		t.Errorf("600000 Name = %q, want 浦发银行", contract.Name)
	}
	if contract.LimitUp != 11.0 || contract.LimitDown != 9.0 {
		t.Errorf("600000 limits = %v/%v, want 11/9", contract.LimitUp, contract.LimitDown)
	}

	fund, ok := gw.Contracts().Get("159915", domain.ExchangeSZSE)
	if !ok {
		t.Fatal("159915.SZSE missing from contract cache")
	}
	if fund.Product != domain.ProductFund {
		t.Errorf("159915 Product = %q, want fund", fund.Product)
	}

	handler.mu.Lock()
	emitted := len(handler.contracts)
	handler.mu.Unlock()
	if emitted != 2 {
		t.Errorf("emitted %d contract events, want 2", emitted)
	}
}

func TestConnectInitFailure(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.InitErr = errors.New("bad token")

	gw := newTestGateway(&recordingHandler{}, sim)
	if err := gw.Connect(tradingCfg()); err == nil {
		t.Fatal("Connect should fail when the data service rejects the token")
	}
}

func TestConnectWithoutTrading(t *testing.T) {
	sim := xtapi.NewSimulator()
	gw := newTestGateway(&recordingHandler{}, sim)

	cfg := tradingCfg()
	cfg.Trading = false
	if err := gw.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	if _, err := gw.SendOrder(&domain.OrderRequest{Symbol: "600000", Exchange: domain.ExchangeSSE}); !errors.Is(err, ErrTradingDisabled) {
		t.Errorf("SendOrder error = %v, want ErrTradingDisabled", err)
	}
	if err := gw.CancelOrder(&domain.CancelRequest{LocalID: "x"}); !errors.Is(err, ErrTradingDisabled) {
		t.Errorf("CancelOrder error = %v, want ErrTradingDisabled", err)
	}
}

// ---------------------------------------------------------------------------
// Order lifecycle
// ---------------------------------------------------------------------------

func TestOrderLifecycle(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	localID, err := gw.SendOrder(&domain.OrderRequest{
		Symbol:    "600000",
		Exchange:  domain.ExchangeSSE,
		Direction: domain.DirectionLong,
		Type:      domain.OrderTypeLimit,
		Price:     10.50,
		Volume:    100,
	})
	if err != nil {
		t.Fatalf("SendOrder failed: %v", err)
	}
	if localID == "" {
		t.Fatal("SendOrder returned an empty local id")
	}

	// The acknowledgement push carries the broker sysid, so the local id must
	// now resolve for cancellation.
	sysID, ok := gw.td.ids().Resolve(localID)
	if !ok || sysID == "" {
		t.Fatalf("Resolve(%s) = %q, %v, want a broker sysid", localID, sysID, ok)
	}

	statuses := handler.orderStatuses()
	var sawNotTraded bool
	for _, s := range statuses {
		if s == domain.StatusNotTraded {
			sawNotTraded = true
		}
	}
	if !sawNotTraded {
		t.Errorf("order statuses %v missing nottraded acknowledgement", statuses)
	}

	if err := gw.CancelOrder(&domain.CancelRequest{Symbol: "600000", Exchange: domain.ExchangeSSE, LocalID: localID}); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}

	last := handler.lastOrder()
	if last == nil || last.Status != domain.StatusCancelled {
		t.Fatalf("last order = %+v, want cancelled", last)
	}

	// Terminal orders leave the correlation table.
	if _, ok := gw.td.ids().Resolve(localID); ok {
		t.Error("Resolve should miss after the order went terminal")
	}
}

func TestOrderFillEmitsTrade(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.AutoFill = true
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	localID, err := gw.SendOrder(&domain.OrderRequest{
		Symbol:    "600000",
		Exchange:  domain.ExchangeSSE,
		Direction: domain.DirectionLong,
		Type:      domain.OrderTypeLimit,
		Price:     10.50,
		Volume:    100,
	})
	if err != nil {
		t.Fatalf("SendOrder failed: %v", err)
	}

	handler.mu.Lock()
	trades := handler.trades
	handler.mu.Unlock()
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	trade := trades[0]
	if trade.LocalID != localID {
		t.Errorf("trade LocalID = %q, want %q", trade.LocalID, localID)
	}
	if trade.TradeID == "" {
		t.Error("trade missing broker trade id")
	}
	if trade.Direction != domain.DirectionLong || trade.Volume != 100 {
		t.Errorf("trade = %+v, want long 100", trade)
	}

	if _, ok := gw.td.ids().Resolve(localID); ok {
		t.Error("filled order should leave the correlation table")
	}
}

func TestSendOrderRejections(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))
	sim.SeedInstrument("rb2605.SF", "上期所期货", &xtapi.InstrumentDetail{
		InstrumentName:      "螺纹钢2605",
		VolumeMultiple:      10,
		PriceTick:           1,
		MinLimitOrderVolume: 1,
		ExpireDate:          "20260515",
	})

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	cfg := tradingCfg()
	cfg.FuturesActive = true
	if err := gw.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	tests := []struct {
		name string
		req  domain.OrderRequest
	}{
		{
			name: "unknown contract",
			req: domain.OrderRequest{
				Symbol: "999999", Exchange: domain.ExchangeSSE,
				Direction: domain.DirectionLong, Type: domain.OrderTypeLimit, Volume: 100,
			},
		},
		{
			name: "market order on unsupported venue",
			req: domain.OrderRequest{
				Symbol: "rb2605", Exchange: domain.ExchangeSHFE,
				Direction: domain.DirectionLong, Offset: domain.OffsetOpen,
				Type: domain.OrderTypeMarket, Volume: 1,
			},
		},
		{
			name: "derivative without offset",
			req: domain.OrderRequest{
				Symbol: "rb2605", Exchange: domain.ExchangeSHFE,
				Direction: domain.DirectionLong, Type: domain.OrderTypeLimit, Volume: 1,
			},
		},
		{
			name: "cash order with offset",
			req: domain.OrderRequest{
				Symbol: "600000", Exchange: domain.ExchangeSSE,
				Direction: domain.DirectionLong, Offset: domain.OffsetOpen,
				Type: domain.OrderTypeLimit, Volume: 100,
			},
		},
		{
			name: "net direction",
			req: domain.OrderRequest{
				Symbol: "600000", Exchange: domain.ExchangeSSE,
				Direction: domain.DirectionNet, Type: domain.OrderTypeLimit, Volume: 100,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(handler.orderStatuses())
			if _, err := gw.SendOrder(&tt.req); err == nil {
				t.Fatal("SendOrder should fail")
			}
			// A local rejection never reaches the broker, so no order event
			// is emitted.
			if after := len(handler.orderStatuses()); after != before {
				t.Errorf("rejected order emitted %d events", after-before)
			}
		})
	}
}

func TestCancelUnresolvedOrder(t *testing.T) {
	sim := xtapi.NewSimulator()
	gw := newTestGateway(&recordingHandler{}, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	err := gw.CancelOrder(&domain.CancelRequest{Symbol: "600000", Exchange: domain.ExchangeSSE, LocalID: "never-seen"})
	if !errors.Is(err, ErrNotResolvable) {
		t.Errorf("CancelOrder error = %v, want ErrNotResolvable", err)
	}
}

func TestCancelBeforeAcknowledgement(t *testing.T) {
	sim := xtapi.NewSimulator()
	gw := newTestGateway(&recordingHandler{}, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	// Before the venue acknowledges, pushes carry an empty sysid. A cancel at
	// this point must soft-fail instead of reaching the broker with no sysid.
	gw.td.OnStockOrder(&xtapi.Order{
		OrderRemark: "L1",
		StockCode:   "600000.SH",
		OrderSysID:  "",
		OrderStatus: xtapi.OrderWaitReporting,
		OrderType:   xtapi.StockBuy,
		PriceType:   xtapi.PushPriceLimit,
	})

	req := &domain.CancelRequest{Symbol: "600000", Exchange: domain.ExchangeSSE, LocalID: "L1"}
	if err := gw.CancelOrder(req); !errors.Is(err, ErrNotResolvable) {
		t.Errorf("CancelOrder error = %v, want ErrNotResolvable", err)
	}
	if len(sim.Cancels) != 0 {
		t.Fatalf("cancels reached the broker with sysids %q, want none", sim.Cancels)
	}

	// Once a push delivers the real sysid the same cancel goes through.
	gw.td.OnStockOrder(&xtapi.Order{
		OrderRemark: "L1",
		StockCode:   "600000.SH",
		OrderSysID:  "B1",
		OrderStatus: xtapi.OrderReported,
		OrderType:   xtapi.StockBuy,
		PriceType:   xtapi.PushPriceLimit,
	})

	if err := gw.CancelOrder(req); err != nil {
		t.Fatalf("CancelOrder after acknowledgement failed: %v", err)
	}
	if len(sim.Cancels) != 1 || sim.Cancels[0] != "B1" {
		t.Errorf("broker cancels = %q, want [\"B1\"]", sim.Cancels)
	}
}

func TestForeignPushesIgnored(t *testing.T) {
	sim := xtapi.NewSimulator()
	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	// Pushes without a remark come from other sessions on the same account.
	gw.td.OnStockOrder(&xtapi.Order{
		StockCode:   "600000.SH",
		OrderSysID:  "B1",
		OrderStatus: xtapi.OrderReported,
		OrderType:   xtapi.StockBuy,
		PriceType:   xtapi.PushPriceLimit,
	})
	gw.td.OnStockTrade(&xtapi.Trade{
		StockCode: "600000.SH",
		TradedID:  "T1",
		OrderType: xtapi.StockBuy,
	})

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.orders) != 0 || len(handler.trades) != 0 {
		t.Errorf("foreign pushes emitted %d orders and %d trades, want none", len(handler.orders), len(handler.trades))
	}
}

func TestOrderErrorMarksRejected(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	localID, err := gw.SendOrder(&domain.OrderRequest{
		Symbol:    "600000",
		Exchange:  domain.ExchangeSSE,
		Direction: domain.DirectionLong,
		Type:      domain.OrderTypeLimit,
		Price:     10.50,
		Volume:    100,
	})
	if err != nil {
		t.Fatalf("SendOrder failed: %v", err)
	}

	gw.td.OnOrderError(&xtapi.OrderError{OrderRemark: localID, ErrorID: 4711, ErrorMsg: "insufficient funds"})

	last := handler.lastOrder()
	if last == nil || last.Status != domain.StatusRejected {
		t.Fatalf("last order = %+v, want rejected", last)
	}
	if last.LocalID != localID {
		t.Errorf("rejected order LocalID = %q, want %q", last.LocalID, localID)
	}
	if _, ok := gw.td.ids().Resolve(localID); ok {
		t.Error("rejected order should leave the correlation table")
	}
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

func TestReconnectAfterDisconnect(t *testing.T) {
	sim := xtapi.NewSimulator()
	handler := &recordingHandler{}

	var mu sync.Mutex
	var sessions []int
	gw := New(Options{
		Handler: handler,
		Logger:  quietLogger(),
		Market:  sim,
		Dialer: func(_ string, session int) xtapi.TraderClient {
			mu.Lock()
			sessions = append(sessions, session)
			mu.Unlock()
			return sim
		},
	})
	// Advance the clock one second per read so the reconnect draws a fresh
	// session id even when both connects run within the same millisecond.
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	ticks := 0
	gw.td.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	if gw.td.State() != StateConnected {
		t.Fatalf("state = %v, want connected", gw.td.State())
	}

	sim.DropConnection()

	if gw.td.State() != StateConnected {
		t.Errorf("state after reconnect = %v, want connected", gw.td.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sessions) != 2 {
		t.Fatalf("dialed %d times, want 2 (one connect, one reconnect)", len(sessions))
	}
	// A recycled session id would be rejected by the broker.
	if sessions[0] == sessions[1] {
		t.Errorf("reconnect reused session id %d", sessions[0])
	}
}

func TestReconnectSingleAttempt(t *testing.T) {
	sim := xtapi.NewSimulator()

	var mu sync.Mutex
	dials := 0
	gw := New(Options{
		Handler: &recordingHandler{},
		Logger:  quietLogger(),
		Market:  sim,
		Dialer: func(_ string, _ int) xtapi.TraderClient {
			mu.Lock()
			dials++
			n := dials
			mu.Unlock()
			if n > 1 {
				failing := xtapi.NewSimulator()
				failing.ConnectErr = errors.New("session rejected")
				return failing
			}
			return sim
		},
	})
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	sim.DropConnection()

	if gw.td.State() != StateDisconnected {
		t.Errorf("state after failed reconnect = %v, want disconnected", gw.td.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if dials != 2 {
		t.Errorf("dialed %d times, want 2 (no retry loop)", dials)
	}
}

func TestDoubleInitIsNoOp(t *testing.T) {
	sim := xtapi.NewSimulator()

	var mu sync.Mutex
	dials := 0
	gw := New(Options{
		Handler: &recordingHandler{},
		Logger:  quietLogger(),
		Market:  sim,
		Dialer: func(_ string, _ int) xtapi.TraderClient {
			mu.Lock()
			dials++
			mu.Unlock()
			return sim
		},
	})
	if err := gw.td.Init("/tmp/userdata", "1000000365", "STOCK"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := gw.td.Init("/tmp/userdata", "1000000365", "STOCK"); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

func TestReconciliationSnapshots(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedAsset(xtapi.Asset{AccountID: "1000000365", TotalAsset: 100000, FrozenCash: 5000, Cash: 95000})
	sim.SeedPositions([]*xtapi.Position{
		{StockCode: "600000.SH", Volume: 1000, CanUseVolume: 600, OpenPrice: 10.2},
	})

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	handler.mu.Lock()
	defer handler.mu.Unlock()

	if len(handler.accounts) == 0 {
		t.Fatal("no account snapshot emitted")
	}
	acc := handler.accounts[0]
	if acc.Balance != 100000 || acc.Frozen != 5000 || acc.Available != 95000 {
		t.Errorf("account = %+v, want 100000/5000/95000", acc)
	}

	if len(handler.positions) == 0 {
		t.Fatal("no position snapshot emitted")
	}
	pos := handler.positions[0]
	if pos.Symbol != "600000" || pos.Exchange != domain.ExchangeSSE {
		t.Errorf("position key = %s.%s, want 600000.SSE", pos.Symbol, pos.Exchange)
	}
	// Cash accounts report net positions.
	if pos.Direction != domain.DirectionNet {
		t.Errorf("position Direction = %q, want net", pos.Direction)
	}
	if pos.Volume != 1000 || pos.Available != 600 || pos.Frozen != 400 {
		t.Errorf("position = %+v, want 1000/600/400", pos)
	}
}

func TestOnTimerDrivesPolling(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedAsset(xtapi.Asset{AccountID: "1000000365", TotalAsset: 100000})

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	handler.mu.Lock()
	before := len(handler.accounts)
	handler.mu.Unlock()

	// Default divisor 2: the second tick fires the account query.
	gw.OnTimer()
	gw.OnTimer()

	handler.mu.Lock()
	after := len(handler.accounts)
	handler.mu.Unlock()
	if after != before+1 {
		t.Errorf("account snapshots went %d -> %d, want one more", before, after)
	}
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

func TestTickEnrichment(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))

	handler := &recordingHandler{}
	gw := newTestGateway(handler, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	gw.Subscribe(domain.SubscribeRequest{Symbol: "600000", Exchange: domain.ExchangeSSE})

	pushTime := time.Date(2026, 3, 2, 9, 35, 0, 0, time.UTC)
	sim.EmitTick("600000.SH", &xtapi.MarketTick{
		Time:      pushTime.UnixMilli(),
		LastPrice: 10.499999999,
		Open:      10.2,
		High:      10.51,
		Low:       10.15,
		LastClose: 10.3,
		Volume:    123400,
		Amount:    1286000,
		BidPrice:  [5]float64{10.49, 10.48, 10.47, 10.46, 10.45},
		AskPrice:  [5]float64{10.500000001, 10.51, 10.52, 10.53, 10.54},
		BidVol:    [5]float64{100, 200, 300, 400, 500},
		AskVol:    [5]float64{150, 250, 350, 450, 550},
	})

	handler.mu.Lock()
	ticks := handler.ticks
	handler.mu.Unlock()
	if len(ticks) != 1 {
		t.Fatalf("got %d ticks, want 1", len(ticks))
	}
	tick := ticks[0]

	if tick.Symbol != "600000" || tick.Exchange != domain.ExchangeSSE {
		t.Errorf("tick key = %s.%s, want 600000.SSE", tick.Symbol, tick.Exchange)
	}
	if tick.Name != "浦发银行" {
		t.Errorf("tick Name = %q, want 浦发银行", tick.Name)
	}
	if tick.LimitUp != 11.0 || tick.LimitDown != 9.0 {
		t.Errorf("tick limits = %v/%v, want 11/9", tick.LimitUp, tick.LimitDown)
	}

	// Raw broker prices come in unrounded; every price must land on the tick
	// grid after enrichment.
	if math.Abs(tick.LastPrice-10.50) > 1e-9 {
		t.Errorf("tick LastPrice = %v, want 10.50", tick.LastPrice)
	}
	if math.Abs(tick.AskPrice[0]-10.50) > 1e-9 {
		t.Errorf("tick AskPrice[0] = %v, want 10.50", tick.AskPrice[0])
	}
	if tick.BidVolume[2] != 300 || tick.AskVolume[4] != 550 {
		t.Errorf("tick depth volumes = %v/%v, want 300/550", tick.BidVolume[2], tick.AskVolume[4])
	}

	if !tick.Time.Equal(pushTime) {
		t.Errorf("tick Time = %v, want %v", tick.Time, pushTime)
	}
}

func TestSubscribeUnknownContractIgnored(t *testing.T) {
	sim := xtapi.NewSimulator()
	gw := newTestGateway(&recordingHandler{}, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	gw.Subscribe(domain.SubscribeRequest{Symbol: "999999", Exchange: domain.ExchangeSSE})
	if got := gw.md.SubscribedCount(); got != 0 {
		t.Errorf("SubscribedCount = %d, want 0", got)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))

	gw := newTestGateway(&recordingHandler{}, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	req := domain.SubscribeRequest{Symbol: "600000", Exchange: domain.ExchangeSSE}
	gw.Subscribe(req)
	gw.Subscribe(req)
	if got := gw.md.SubscribedCount(); got != 1 {
		t.Errorf("SubscribedCount = %d, want 1", got)
	}
}

func TestSubscribeConcurrentSameSymbol(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("600000.SH", "沪深A股", stockDetail("浦发银行"))

	gw := newTestGateway(&recordingHandler{}, sim)
	if err := gw.Connect(tradingCfg()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	req := domain.SubscribeRequest{Symbol: "600000", Exchange: domain.ExchangeSSE}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gw.Subscribe(req)
		}()
	}
	wg.Wait()

	// Exactly one subscribe may reach the client regardless of interleaving.
	if len(sim.Subscribes) != 1 {
		t.Errorf("client saw %d subscribes %q, want 1", len(sim.Subscribes), sim.Subscribes)
	}
	if got := gw.md.SubscribedCount(); got != 1 {
		t.Errorf("SubscribedCount = %d, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Option contract parsing
// ---------------------------------------------------------------------------

func TestETFOptionContract(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("10005000.SHO", "上证期权", &xtapi.InstrumentDetail{
		InstrumentID:        "10005000",
		InstrumentName:      "50ETF购3月2750",
		VolumeMultiple:      10000,
		PriceTick:           0.0001,
		MinLimitOrderVolume: 1,
		OpenDate:            "20251127",
		ExpireDate:          "20260325",
		OptExercisePrice:    2.75,
		OptUndlCode:         "510050",
	})

	gw := newTestGateway(&recordingHandler{}, sim)
	cfg := tradingCfg()
	cfg.StockActive = false
	cfg.OptionActive = true
	if err := gw.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	contract, ok := gw.Contracts().Get("10005000", domain.ExchangeSSE)
	if !ok {
		t.Fatal("option contract missing from cache")
	}
	if contract.Product != domain.ProductOption {
		t.Errorf("Product = %q, want option", contract.Product)
	}
	if contract.OptionType != domain.OptionCall {
		t.Errorf("OptionType = %q, want call", contract.OptionType)
	}
	if contract.OptionStrike != 2.75 {
		t.Errorf("OptionStrike = %v, want 2.75", contract.OptionStrike)
	}
	if contract.OptionPortfolio != "510050_O" {
		t.Errorf("OptionPortfolio = %q, want 510050_O", contract.OptionPortfolio)
	}
	if contract.OptionUnderlying != "510050-202603" {
		t.Errorf("OptionUnderlying = %q, want 510050-202603", contract.OptionUnderlying)
	}
	if contract.OptionIndex != "2.75-M" {
		t.Errorf("OptionIndex = %q, want 2.75-M", contract.OptionIndex)
	}
	if contract.OptionExpiry.Format("20060102") != "20260325" {
		t.Errorf("OptionExpiry = %v, want 2026-03-25", contract.OptionExpiry)
	}
}

func TestFuturesOptionContract(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("cu2605C75000.SF", "上期所期权", &xtapi.InstrumentDetail{
		InstrumentID:        "cu2605C75000",
		InstrumentName:      "沪铜2605购75000",
		ProductID:           "cu_o",
		VolumeMultiple:      5,
		PriceTick:           2,
		MinLimitOrderVolume: 1,
		OpenDate:            "20250520",
		ExpireDate:          "20260424",
		OptExercisePrice:    75000,
		OptUndlCode:         "cu2605",
	})
	// Zero-strike rows are combination listings, not options.
	sim.SeedInstrument("cu2605&cu2606.SF", "上期所期权", &xtapi.InstrumentDetail{
		InstrumentID: "cu2605&cu2606",
	})

	gw := newTestGateway(&recordingHandler{}, sim)
	cfg := tradingCfg()
	cfg.StockActive = false
	cfg.OptionActive = true
	if err := gw.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	if got := gw.Contracts().Len(); got != 1 {
		t.Fatalf("cached %d contracts, want 1", got)
	}

	contract, ok := gw.Contracts().Get("cu2605C75000", domain.ExchangeSHFE)
	if !ok {
		t.Fatal("futures option missing from cache")
	}
	if contract.OptionType != domain.OptionCall {
		t.Errorf("OptionType = %q, want call", contract.OptionType)
	}
	if contract.OptionUnderlying != "cu2605" {
		t.Errorf("OptionUnderlying = %q, want cu2605", contract.OptionUnderlying)
	}
	if contract.OptionPortfolio != "cu_o" {
		t.Errorf("OptionPortfolio = %q, want cu_o", contract.OptionPortfolio)
	}
	if contract.OptionIndex != "75000" {
		t.Errorf("OptionIndex = %q, want 75000", contract.OptionIndex)
	}
}

func TestCZCEOptionPortfolioTrimmed(t *testing.T) {
	sim := xtapi.NewSimulator()
	sim.SeedInstrument("MA605C2500.ZF", "郑商所期权", &xtapi.InstrumentDetail{
		InstrumentID:        "MA605C2500",
		InstrumentName:      "甲醇605购2500",
		ProductID:           "MAO",
		VolumeMultiple:      10,
		PriceTick:           0.5,
		MinLimitOrderVolume: 1,
		OpenDate:            "20250620",
		ExpireDate:          "20260410",
		OptExercisePrice:    2500,
		OptUndlCode:         "MA605",
	})

	gw := newTestGateway(&recordingHandler{}, sim)
	cfg := tradingCfg()
	cfg.StockActive = false
	cfg.OptionActive = true
	if err := gw.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer gw.Close()

	contract, ok := gw.Contracts().Get("MA605C2500", domain.ExchangeCZCE)
	if !ok {
		t.Fatal("option contract missing from cache")
	}
	// CZCE appends an O to the option product id; the portfolio drops it.
	if contract.OptionPortfolio != "MA" {
		t.Errorf("OptionPortfolio = %q, want MA", contract.OptionPortfolio)
	}
}
