// Package gateway adapts the XtQuant trading and market-data services to the
// canonical domain model: enum translation, contract caching, order id
// correlation, session lifecycle and reconciliation polling.
package gateway

import (
	"strings"

	"xtgate/internal/domain"
	"xtgate/internal/xtapi"
)

// ---------------------------------------------------------------------------
// Exchange codes
// ---------------------------------------------------------------------------

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

var exchangeFromXT = func() map[string]domain.Exchange {
	m := make(map[string]domain.Exchange, len(exchangeToXT)+2)
	for k, v := range exchangeToXT {
		m[v] = k
	}
	// Option feeds use dedicated market codes but belong to the stock venues.
	m["SHO"] = domain.ExchangeSSE
	m["SZO"] = domain.ExchangeSZSE
	return m
}()

// ExchangeToXT returns the XT market code for a canonical exchange.
func ExchangeToXT(ex domain.Exchange) (string, bool) {
	code, ok := exchangeToXT[ex]
	return code, ok
}

// ExchangeFromXT returns the canonical exchange for an XT market code.
func ExchangeFromXT(code string) (domain.Exchange, bool) {
	ex, ok := exchangeFromXT[code]
	return ex, ok
}

// SplitStockCode splits "600000.SH" into its symbol and canonical exchange.
func SplitStockCode(stockCode string) (string, domain.Exchange, bool) {
	symbol, code, found := strings.Cut(stockCode, ".")
	if !found || symbol == "" {
		return "", "", false
	}
	ex, ok := exchangeFromXT[code]
	if !ok {
		return "", "", false
	}
	return symbol, ex, true
}

// ---------------------------------------------------------------------------
// Order status
// ---------------------------------------------------------------------------

var statusFromXT = map[int]domain.Status{
	xtapi.OrderUnreported:     domain.StatusSubmitting,
	xtapi.OrderWaitReporting:  domain.StatusSubmitting,
	xtapi.OrderReported:       domain.StatusNotTraded,
	xtapi.OrderReportedCancel: domain.StatusCancelled,
	xtapi.OrderPartSuccCancel: domain.StatusCancelled,
	xtapi.OrderPartCancel:     domain.StatusCancelled,
	xtapi.OrderCanceled:       domain.StatusCancelled,
	xtapi.OrderPartSucc:       domain.StatusPartTraded,
	xtapi.OrderSucceeded:      domain.StatusAllTraded,
	xtapi.OrderJunk:           domain.StatusRejected,
}

// StatusFromXT maps a broker status code to the canonical status. Unknown
// codes default to submitting: the service emits undocumented intermediate
// codes and treating them as terminal would corrupt the order lifecycle.
func StatusFromXT(code int) domain.Status {
	if status, ok := statusFromXT[code]; ok {
		return status
	}
	return domain.StatusSubmitting
}

// ---------------------------------------------------------------------------
// Direction + offset
// ---------------------------------------------------------------------------

type dirOffset struct {
	Direction domain.Direction
	Offset    domain.Offset
}

var operationToXT = map[dirOffset]int{
	{domain.DirectionLong, domain.OffsetNone}:   xtapi.StockBuy,
	{domain.DirectionShort, domain.OffsetNone}:  xtapi.StockSell,
	{domain.DirectionLong, domain.OffsetOpen}:   xtapi.StockOptionBuyOpen,
	{domain.DirectionLong, domain.OffsetClose}:  xtapi.StockOptionBuyClose,
	{domain.DirectionShort, domain.OffsetOpen}:  xtapi.StockOptionSellOpen,
	{domain.DirectionShort, domain.OffsetClose}: xtapi.StockOptionSellClose,
}

var operationFromXT = func() map[int]dirOffset {
	m := make(map[int]dirOffset, len(operationToXT))
	for k, v := range operationToXT {
		m[v] = k
	}
	return m
}()

// OperationToXT maps a canonical (direction, offset) pair to the broker
// operation code. The mapping is partial: unsupported pairs are rejections.
func OperationToXT(direction domain.Direction, offset domain.Offset) (int, bool) {
	code, ok := operationToXT[dirOffset{direction, offset}]
	return code, ok
}

// OperationFromXT maps a broker operation code back to (direction, offset).
func OperationFromXT(code int) (domain.Direction, domain.Offset, bool) {
	do, ok := operationFromXT[code]
	return do.Direction, do.Offset, ok
}

var posDirectionFromXT = map[int]domain.Direction{
	xtapi.DirectionFlagBuy:  domain.DirectionLong,
	xtapi.DirectionFlagSell: domain.DirectionShort,
}

// PosDirectionFromXT maps a position direction flag to the canonical
// direction.
func PosDirectionFromXT(flag int) (domain.Direction, bool) {
	d, ok := posDirectionFromXT[flag]
	return d, ok
}

// ---------------------------------------------------------------------------
// Order price types
// ---------------------------------------------------------------------------

type priceKey struct {
	Exchange domain.Exchange
	Type     domain.OrderType
}

// Request-side codes per venue. Venues encode market orders differently; an
// absent key means the combination cannot be routed.
var priceTypeToXT = map[priceKey]int{
	{domain.ExchangeSSE, domain.OrderTypeLimit}:   xtapi.FixPrice,
	{domain.ExchangeSZSE, domain.OrderTypeLimit}:  xtapi.FixPrice,
	{domain.ExchangeBSE, domain.OrderTypeLimit}:   xtapi.FixPrice,
	{domain.ExchangeSSE, domain.OrderTypeMarket}:  xtapi.MarketSHConvert5Cancel,
	{domain.ExchangeSZSE, domain.OrderTypeMarket}: xtapi.MarketSZConvert5Cancel,
}

// Push-side codes. The service echoes different numbers than it accepts.
var priceTypeFromXT = map[int]domain.OrderType{
	xtapi.PushPriceLimit:  domain.OrderTypeLimit,
	xtapi.PushPriceMarket: domain.OrderTypeMarket,
}

// PriceTypeToXT maps (venue, order type) to the request-side price code.
func PriceTypeToXT(ex domain.Exchange, typ domain.OrderType) (int, bool) {
	code, ok := priceTypeToXT[priceKey{ex, typ}]
	return code, ok
}

// PriceTypeFromXT maps a push-side price code to the canonical order type.
func PriceTypeFromXT(code int) (domain.OrderType, bool) {
	typ, ok := priceTypeFromXT[code]
	return typ, ok
}

// ---------------------------------------------------------------------------
// Product classification
// ---------------------------------------------------------------------------

type prefixRule struct {
	prefix  string
	product domain.Product
}

// Prefix rules per stock market code, first match wins. Purely empirical:
// venue symbologies reserve number ranges per product type.
var stockClassification = map[string]struct {
	rules    []prefixRule
	fallback domain.Product
}{
	"SZ": {
		rules: []prefixRule{
			{"00", domain.ProductEquity},
			{"159", domain.ProductFund},
		},
		fallback: domain.ProductIndex,
	},
	"SH": {
		rules: []prefixRule{
			{"60", domain.ProductEquity},
			{"68", domain.ProductEquity},
			{"51", domain.ProductFund},
		},
		fallback: domain.ProductIndex,
	},
	"BJ": {
		fallback: domain.ProductEquity,
	},
}

// ClassifyStock derives the product class of a stock-market instrument from
// its market code and symbol prefix. Returns false for unknown markets.
func ClassifyStock(xtExchange, symbol string) (domain.Product, bool) {
	c, ok := stockClassification[xtExchange]
	if !ok {
		return "", false
	}
	for _, r := range c.rules {
		if strings.HasPrefix(symbol, r.prefix) {
			return r.product, true
		}
	}
	return c.fallback, true
}

// ClassifyFuture discriminates options from futures on the derivative
// markets. Each venue encodes option symbols differently.
func ClassifyFuture(xtExchange, symbol string) domain.Product {
	switch xtExchange {
	case "ZF":
		if len(symbol) > 6 && !strings.Contains(symbol, "&") {
			return domain.ProductOption
		}
	case "IF", "GF":
		if strings.Contains(symbol, "-") {
			return domain.ProductOption
		}
	case "DF", "INE", "SF":
		if (strings.Contains(symbol, "C") || strings.Contains(symbol, "P")) && !strings.Contains(symbol, "SP") {
			return domain.ProductOption
		}
	}
	return domain.ProductFutures
}

// StockCode builds the broker-side instrument code for a canonical (symbol,
// exchange) pair. Stock-venue symbols longer than six characters are option
// codes and route through the dedicated option feed ("SHO"/"SZO").
func StockCode(symbol string, ex domain.Exchange) (string, bool) {
	code, ok := exchangeToXT[ex]
	if !ok {
		return "", false
	}
	if (code == "SH" || code == "SZ") && len(symbol) > 6 {
		code += "O"
	}
	return symbol + "." + code, true
}
