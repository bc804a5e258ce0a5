package xtapi

// TraderCallback receives trading pushes. All methods are invoked on the
// client's own delivery goroutine, never on the caller's.
type TraderCallback interface {
	// OnDisconnected signals an unsolicited session loss.
	OnDisconnected()

	// OnStockOrder is pushed for every order status change.
	OnStockOrder(order *Order)

	// OnStockTrade is pushed for every execution.
	OnStockTrade(trade *Trade)

	// OnOrderError is pushed when the venue rejects an order outright.
	OnOrderError(e *OrderError)

	// OnCancelError is pushed when a cancellation request fails.
	OnCancelError(e *CancelError)
}

// TraderClient is the trading session surface. All Query*/Order*/Cancel*
// methods are fire-and-forget: results arrive later through the registered
// callback or the per-call closure, on the delivery goroutine.
type TraderClient interface {
	// RegisterCallback installs the push sink. Must be called before Start.
	RegisterCallback(cb TraderCallback)

	// Start launches the client's internal delivery goroutine.
	Start()

	// Connect performs the session handshake.
	Connect() error

	// SubscribeAccount enables order/trade pushes for the account.
	SubscribeAccount(acc Account) error

	// OrderStockAsync places an order. The remark tags the order so pushes
	// can be correlated back to the caller.
	OrderStockAsync(acc Account, stockCode string, operation int, volume int64, priceType int, price float64, strategyName, remark string) error

	// CancelOrderSysIDAsync cancels by venue-assigned sysid.
	CancelOrderSysIDAsync(acc Account, market int, sysID string) error

	QueryAssetAsync(acc Account, fn func(*Asset)) error
	QueryPositionsAsync(acc Account, fn func([]*Position)) error
	QueryOrdersAsync(acc Account, fn func([]*Order)) error
	QueryTradesAsync(acc Account, fn func([]*Trade)) error

	// Stop tears down the session and the delivery goroutine.
	Stop()
}

// TraderDialer creates a fresh trading client bound to a session id. The
// service rejects session-id reuse, so every (re)connect needs a new client
// from the dialer.
type TraderDialer func(path string, session int) TraderClient

// QuoteFunc receives market-data pushes for one subscribed instrument.
type QuoteFunc func(stockCode string, ticks []*MarketTick)

// MarketClient is the market-data and reference-data surface.
type MarketClient interface {
	// Init authenticates against the data service and confirms it is
	// reachable, typically by fetching a well-known instrument detail.
	Init(token string) error

	// InstrumentDetail fetches static metadata. withOption requests the
	// extended option fields.
	InstrumentDetail(stockCode string, withOption bool) (*InstrumentDetail, error)

	// SectorSymbols lists the stock codes in a named sector.
	SectorSymbols(sector string) ([]string, error)

	// SubscribeQuote registers a tick push callback for one instrument.
	SubscribeQuote(stockCode, period string, fn QuoteFunc) error

	// DownloadHistory pulls bar history into the local data store. Start and
	// end use the "YYYYMMDDHHMMSS" wire format.
	DownloadHistory(stockCode, period, start, end string) error

	// LocalBars reads previously downloaded bars from the local data store,
	// front-ratio adjusted.
	LocalBars(stockCode, period, start, end string) ([]*RawBar, error)
}
