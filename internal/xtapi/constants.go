// Package xtapi defines the surface of the XtQuant trading and market-data
// services as the gateway consumes it: wire structs, numeric constants, and
// the client interfaces a real binding implements. A Simulator implementation
// is provided for paper trading and tests.
package xtapi

// Order status codes reported by the trading service.
const (
	OrderUnreported     = 48 // accepted locally, not yet reported to the venue
	OrderWaitReporting  = 49
	OrderReported       = 50
	OrderReportedCancel = 51
	OrderPartSuccCancel = 52
	OrderPartCancel     = 53
	OrderCanceled       = 54
	OrderPartSucc       = 55
	OrderSucceeded      = 56
	OrderJunk           = 57 // rejected by the venue
)

// Operation codes combining side and offset. Cash instruments use the plain
// buy/sell pair; ETF options use the four open/close variants.
const (
	StockBuy             = 23
	StockSell            = 24
	StockOptionBuyOpen   = 50
	StockOptionSellClose = 51
	StockOptionSellOpen  = 52
	StockOptionBuyClose  = 53
)

// Position direction flags on query results.
const (
	DirectionFlagBuy  = 48
	DirectionFlagSell = 49
)

// Price type codes on the request side.
const (
	LatestPrice            = 5
	FixPrice               = 11
	MarketSHConvert5Cancel = 42 // SH best-5-then-cancel market order
	MarketSZConvert5Cancel = 46 // SZ best-5-then-cancel market order
)

// Price type codes observed on pushes. These differ from the request-side
// codes and from the vendor documentation; the values are empirical and
// pinned to the current service version.
const (
	PushPriceLimit  = 50
	PushPriceMarket = 88
)

// Venue markets used by sysid-based cancellation.
const (
	MarketSH = 0
	MarketSZ = 1
)
