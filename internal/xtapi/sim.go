package xtapi

import (
	"fmt"
	"sync"
	"time"
)

// Compile-time interface checks.
var _ TraderClient = (*Simulator)(nil)
var _ MarketClient = (*Simulator)(nil)

// Simulator implements TraderClient and MarketClient in memory for paper
// trading and tests. It tracks orders and positions without touching any
// external service, and lets tests drive pushes explicitly.
type Simulator struct {
	mu sync.Mutex

	cb        TraderCallback
	connected bool

	ConnectErr error // forced Connect failure for tests
	InitErr    error // forced data-service Init failure for tests
	token      string

	// AutoFill makes every accepted order fill completely right after the
	// reported push, mimicking a liquid venue.
	AutoFill bool

	sysIDCount int
	orders     map[string]*Order // keyed by sysid
	asset      Asset
	positions  []*Position

	details map[string]*InstrumentDetail
	sectors map[string][]string

	quoteSubs map[string]QuoteFunc
	bars      map[string][]*RawBar // keyed by stockCode + "." + period

	Downloads   []string // stockCodes passed to DownloadHistory, in order
	DownloadErr error    // forced DownloadHistory failure for tests

	Cancels    []string // sysIDs passed to CancelOrderSysIDAsync, in order
	Subscribes []string // stockCodes passed to SubscribeQuote, in order
}

// NewSimulator creates an empty Simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		orders:    make(map[string]*Order),
		details:   make(map[string]*InstrumentDetail),
		sectors:   make(map[string][]string),
		quoteSubs: make(map[string]QuoteFunc),
		bars:      make(map[string][]*RawBar),
	}
}

// ---------------------------------------------------------------------------
// Seeding helpers
// ---------------------------------------------------------------------------

// SeedInstrument registers static metadata for one stock code and adds it to
// the given sector.
func (s *Simulator) SeedInstrument(stockCode, sector string, detail *InstrumentDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[stockCode] = detail
	if sector != "" {
		s.sectors[sector] = append(s.sectors[sector], stockCode)
	}
}

// SeedAsset sets the asset snapshot returned by QueryAssetAsync.
func (s *Simulator) SeedAsset(asset Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asset = asset
}

// SeedPositions sets the position snapshots returned by QueryPositionsAsync.
func (s *Simulator) SeedPositions(positions []*Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = positions
}

// SeedBars registers local history rows for a (stockCode, period) pair.
func (s *Simulator) SeedBars(stockCode, period string, bars []*RawBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[stockCode+"."+period] = bars
}

// EmitTick delivers a quote push to the subscriber of stockCode, if any.
func (s *Simulator) EmitTick(stockCode string, ticks ...*MarketTick) {
	s.mu.Lock()
	fn := s.quoteSubs[stockCode]
	s.mu.Unlock()
	if fn != nil {
		fn(stockCode, ticks)
	}
}

// DropConnection simulates an unsolicited disconnect push.
func (s *Simulator) DropConnection() {
	s.mu.Lock()
	s.connected = false
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb.OnDisconnected()
	}
}

// ---------------------------------------------------------------------------
// TraderClient implementation
// ---------------------------------------------------------------------------

func (s *Simulator) RegisterCallback(cb TraderCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Simulator) Start() {}

func (s *Simulator) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.connected = true
	return nil
}

func (s *Simulator) SubscribeAccount(_ Account) error {
	return nil
}

// OrderStockAsync accepts the order, assigns a sysid and pushes a reported
// status. With AutoFill set it then pushes a full fill and the trade.
func (s *Simulator) OrderStockAsync(acc Account, stockCode string, operation int, volume int64, priceType int, price float64, _, remark string) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("not connected")
	}

	s.sysIDCount++
	sysID := fmt.Sprintf("SIM%06d", s.sysIDCount)

	order := &Order{
		AccountID:   acc.ID,
		StockCode:   stockCode,
		OrderSysID:  sysID,
		OrderRemark: remark,
		OrderStatus: OrderReported,
		OrderType:   operation,
		PriceType:   simPushPrice(priceType),
		Price:       price,
		OrderVolume: volume,
		OrderTime:   time.Now().Unix(),
	}
	s.orders[sysID] = order
	cb := s.cb
	autoFill := s.AutoFill
	s.mu.Unlock()

	if cb == nil {
		return nil
	}

	reported := *order
	cb.OnStockOrder(&reported)

	if autoFill {
		s.mu.Lock()
		order.OrderStatus = OrderSucceeded
		order.TradedVolume = volume
		filled := *order
		s.sysIDCount++
		tradeID := fmt.Sprintf("T%06d", s.sysIDCount)
		s.mu.Unlock()

		cb.OnStockOrder(&filled)
		cb.OnStockTrade(&Trade{
			AccountID:    acc.ID,
			StockCode:    stockCode,
			TradedID:     tradeID,
			OrderRemark:  remark,
			OrderType:    operation,
			TradedPrice:  price,
			TradedVolume: volume,
			TradedTime:   time.Now().Unix(),
		})
	}

	return nil
}

func (s *Simulator) CancelOrderSysIDAsync(_ Account, _ int, sysID string) error {
	s.mu.Lock()
	s.Cancels = append(s.Cancels, sysID)
	order, ok := s.orders[sysID]
	cb := s.cb
	if ok && order.OrderStatus != OrderSucceeded {
		order.OrderStatus = OrderCanceled
	}
	var push *Order
	if ok {
		copied := *order
		push = &copied
	}
	s.mu.Unlock()

	if !ok {
		if cb != nil {
			cb.OnCancelError(&CancelError{ErrorID: 1, ErrorMsg: "unknown sysid"})
		}
		return nil
	}
	if cb != nil {
		cb.OnStockOrder(push)
	}
	return nil
}

func (s *Simulator) QueryAssetAsync(_ Account, fn func(*Asset)) error {
	s.mu.Lock()
	asset := s.asset
	s.mu.Unlock()
	fn(&asset)
	return nil
}

func (s *Simulator) QueryPositionsAsync(_ Account, fn func([]*Position)) error {
	s.mu.Lock()
	positions := make([]*Position, len(s.positions))
	copy(positions, s.positions)
	s.mu.Unlock()
	fn(positions)
	return nil
}

func (s *Simulator) QueryOrdersAsync(_ Account, fn func([]*Order)) error {
	s.mu.Lock()
	orders := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		copied := *o
		orders = append(orders, &copied)
	}
	s.mu.Unlock()
	fn(orders)
	return nil
}

func (s *Simulator) QueryTradesAsync(_ Account, fn func([]*Trade)) error {
	fn(nil)
	return nil
}

func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// ---------------------------------------------------------------------------
// MarketClient implementation
// ---------------------------------------------------------------------------

func (s *Simulator) Init(token string) error {
	if s.InitErr != nil {
		return s.InitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *Simulator) InstrumentDetail(stockCode string, _ bool) (*InstrumentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.details[stockCode]
	if !ok {
		return nil, fmt.Errorf("no instrument detail for %s", stockCode)
	}
	return detail, nil
}

func (s *Simulator) SectorSymbols(sector string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sectors[sector], nil
}

func (s *Simulator) SubscribeQuote(stockCode, _ string, fn QuoteFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscribes = append(s.Subscribes, stockCode)
	s.quoteSubs[stockCode] = fn
	return nil
}

func (s *Simulator) DownloadHistory(stockCode, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Downloads = append(s.Downloads, stockCode)
	return s.DownloadErr
}

func (s *Simulator) LocalBars(stockCode, period, _, _ string) ([]*RawBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bars[stockCode+"."+period], nil
}

// simPushPrice translates a request-side price code into the code the
// service echoes on pushes.
func simPushPrice(priceType int) int {
	switch priceType {
	case FixPrice:
		return PushPriceLimit
	default:
		return PushPriceMarket
	}
}
