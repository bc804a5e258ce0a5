package xtapi

// Account selects the trading account a request acts on. Type is "STOCK" or
// "STOCK_OPTION".
type Account struct {
	ID   string
	Type string
}

// Order is an order record as pushed or queried from the trading service.
// StockCode is "symbol.market", e.g. "600000.SH". OrderRemark carries the
// caller's tag; pushes without one originate from other sessions.
type Order struct {
	AccountID    string
	StockCode    string
	OrderSysID   string // venue-assigned id, empty until reported
	OrderRemark  string
	OrderStatus  int
	OrderType    int // operation code (StockBuy, ...)
	PriceType    int // push-side price code (PushPriceLimit, ...)
	Price        float64
	OrderVolume  int64
	TradedVolume int64
	OrderTime    int64 // unix seconds
}

// Trade is an execution record.
type Trade struct {
	AccountID    string
	StockCode    string
	TradedID     string
	OrderRemark  string
	OrderType    int // operation code of the parent order
	TradedPrice  float64
	TradedVolume int64
	TradedTime   int64 // unix seconds
}

// Asset is a snapshot of account cash.
type Asset struct {
	AccountID  string
	TotalAsset float64
	FrozenCash float64
	Cash       float64
}

// Position is a holding snapshot per stock code and direction flag.
type Position struct {
	AccountID    string
	StockCode    string
	Direction    int // DirectionFlagBuy / DirectionFlagSell
	Volume       int64
	CanUseVolume int64
	OpenPrice    float64
}

// OrderError is pushed when the venue rejects an order.
type OrderError struct {
	OrderRemark string
	ErrorID     int
	ErrorMsg    string
}

// CancelError is pushed when a cancellation request fails.
type CancelError struct {
	ErrorID  int
	ErrorMsg string
}

// InstrumentDetail is the static metadata record for one instrument.
type InstrumentDetail struct {
	InstrumentID        string
	InstrumentName      string
	ProductID           string
	VolumeMultiple      float64
	PriceTick           float64
	MinLimitOrderVolume float64
	UpStopPrice         float64
	DownStopPrice       float64
	OpenDate            string // YYYYMMDD
	ExpireDate          string // YYYYMMDD, empty for perpetual instruments
	OptExercisePrice    float64
	OptUndlCode         string
}

// MarketTick is one quote snapshot as delivered by the market-data push.
// Prices arrive unrounded.
type MarketTick struct {
	Time      int64 // unix milliseconds
	LastPrice float64
	Open      float64
	High      float64
	Low       float64
	LastClose float64
	Volume    float64
	Amount    float64
	OpenInt   float64
	BidPrice  [5]float64
	AskPrice  [5]float64
	BidVol    [5]float64
	AskVol    [5]float64
}

// RawBar is one historical OHLCV row from the local data store. Time marks
// the END of the interval; the datafeed shifts it to interval start.
type RawBar struct {
	Time         int64 // unix milliseconds, interval end
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	Amount       float64
	OpenInterest float64
}
