// Package domain defines the canonical trading model shared by every part of
// the gateway: contracts, orders, trades, positions, accounts, ticks and bars,
// plus the enumerations they carry.
package domain

import (
	"math"
	"time"
)

// Exchange identifies a trading venue in canonical terms.
type Exchange string

const (
	ExchangeSSE   Exchange = "SSE"   // Shanghai Stock Exchange
	ExchangeSZSE  Exchange = "SZSE"  // Shenzhen Stock Exchange
	ExchangeBSE   Exchange = "BSE"   // Beijing Stock Exchange
	ExchangeSHFE  Exchange = "SHFE"  // Shanghai Futures Exchange
	ExchangeCFFEX Exchange = "CFFEX" // China Financial Futures Exchange
	ExchangeINE   Exchange = "INE"   // Shanghai International Energy Exchange
	ExchangeDCE   Exchange = "DCE"   // Dalian Commodity Exchange
	ExchangeCZCE  Exchange = "CZCE"  // Zhengzhou Commodity Exchange
	ExchangeGFEX  Exchange = "GFEX"  // Guangzhou Futures Exchange
)

// Product classifies what kind of instrument a contract is.
type Product string

const (
	ProductEquity  Product = "equity"
	ProductFund    Product = "fund"
	ProductIndex   Product = "index"
	ProductBond    Product = "bond"
	ProductFutures Product = "futures"
	ProductOption  Product = "option"
)

// Derivative reports whether orders for this product require an open/close
// offset. Cash instruments must not carry one.
func (p Product) Derivative() bool {
	return p == ProductFutures || p == ProductOption
}

// Direction is the side of an order, trade or position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNet   Direction = "net" // net positions on cash accounts
)

// Offset qualifies derivative orders with an open/close intent. Cash
// instruments use OffsetNone.
type Offset string

const (
	OffsetNone           Offset = ""
	OffsetOpen           Offset = "open"
	OffsetClose          Offset = "close"
	OffsetCloseToday     Offset = "closetoday"
	OffsetCloseYesterday Offset = "closeyesterday"
)

// OrderType is the canonical order pricing type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Status is the canonical order lifecycle status.
type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusNotTraded  Status = "nottraded"
	StatusPartTraded Status = "parttraded"
	StatusAllTraded  Status = "alltraded"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// Active reports whether the status is non-terminal.
func (s Status) Active() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	}
	return false
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Interval is a bar aggregation period.
type Interval string

const (
	IntervalMinute Interval = "1m"
	IntervalDaily  Interval = "d"
	IntervalTick   Interval = "tick"
)

// SymbolKey builds the canonical cache key for a (symbol, exchange) pair,
// e.g. "600000.SSE".
func SymbolKey(symbol string, exchange Exchange) string {
	return symbol + "." + string(exchange)
}

// ---------------------------------------------------------------------------
// Core records
// ---------------------------------------------------------------------------

// Contract holds static instrument metadata. Entries are immutable once
// inserted into the contract cache for a session.
type Contract struct {
	Symbol    string
	Exchange  Exchange
	Name      string
	Product   Product
	Size      float64 // contract multiplier
	PriceTick float64
	MinVolume float64
	LimitUp   float64 // zero when the venue reports none
	LimitDown float64

	// Option metadata, zero-valued for non-options.
	OptionStrike     float64
	OptionType       OptionType
	OptionUnderlying string
	OptionPortfolio  string
	OptionIndex      string
	OptionListed     time.Time
	OptionExpiry     time.Time
}

// Key returns the canonical cache key for the contract.
func (c *Contract) Key() string {
	return SymbolKey(c.Symbol, c.Exchange)
}

// Order is the canonical view of a working or finished order. LocalID is
// generated by the gateway before the broker has seen the order.
type Order struct {
	Symbol    string
	Exchange  Exchange
	LocalID   string
	Direction Direction
	Offset    Offset
	Type      OrderType
	Price     float64
	Volume    float64
	Traded    float64
	Status    Status
	Time      time.Time
}

// IsActive reports whether the order is still working at the broker.
func (o *Order) IsActive() bool {
	return o.Status.Active()
}

// Trade is an immutable execution record. TradeID is assigned by the broker
// and is the only uniqueness authority for fills.
type Trade struct {
	Symbol    string
	Exchange  Exchange
	LocalID   string // local id of the order this fill belongs to
	TradeID   string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	Time      time.Time
}

// Position is a snapshot of a holding per (symbol, direction). Each update
// replaces the previous view for that key.
type Position struct {
	Symbol    string
	Exchange  Exchange
	Direction Direction
	Volume    float64
	Available float64 // volume free to close today
	Frozen    float64 // volume − available
	Price     float64 // average open price
}

// Account is a wholesale snapshot of cash balances.
type Account struct {
	ID        string
	Balance   float64
	Frozen    float64
	Available float64
}

// Tick is a point-in-time quote snapshot with five levels of depth.
type Tick struct {
	Symbol       string
	Exchange     Exchange
	Name         string
	Time         time.Time
	Volume       float64
	Turnover     float64
	OpenInterest float64
	LastPrice    float64
	Open         float64
	High         float64
	Low          float64
	PreClose     float64
	LimitUp      float64
	LimitDown    float64
	BidPrice     [5]float64
	AskPrice     [5]float64
	BidVolume    [5]float64
	AskVolume    [5]float64
}

// Bar is an OHLCV aggregate. Time marks the start of the interval.
type Bar struct {
	Symbol       string
	Exchange     Exchange
	Interval     Interval
	Time         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	Turnover     float64
	OpenInterest float64
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// OrderRequest is what the host engine submits to place an order.
type OrderRequest struct {
	Symbol    string
	Exchange  Exchange
	Direction Direction
	Offset    Offset
	Type      OrderType
	Price     float64
	Volume    float64
	Reference string // free-form strategy tag forwarded to the broker
}

// NewOrder builds the initial canonical order for a just-submitted request.
func (r *OrderRequest) NewOrder(localID string, now time.Time) *Order {
	return &Order{
		Symbol:    r.Symbol,
		Exchange:  r.Exchange,
		LocalID:   localID,
		Direction: r.Direction,
		Offset:    r.Offset,
		Type:      r.Type,
		Price:     r.Price,
		Volume:    r.Volume,
		Status:    StatusSubmitting,
		Time:      now,
	}
}

// CancelRequest asks for cancellation of a working order by its local id.
type CancelRequest struct {
	Symbol   string
	Exchange Exchange
	LocalID  string
}

// SubscribeRequest asks for market data on one instrument.
type SubscribeRequest struct {
	Symbol   string
	Exchange Exchange
}

// HistoryRequest asks for historical bars over [Start, End].
type HistoryRequest struct {
	Symbol   string
	Exchange Exchange
	Interval Interval
	Start    time.Time
	End      time.Time
}

// RoundTo rounds value to the nearest multiple of target. Brokers
// intermittently report raw unrounded floats; every emitted price goes
// through this against the contract's price tick.
func RoundTo(value, target float64) float64 {
	if target == 0 {
		return value
	}
	return math.Round(value/target) * target
}
