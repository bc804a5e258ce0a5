package gateway

import "errors"

var (
	// ErrTradingDisabled is returned when an order or cancel is attempted on
	// a market-data-only connection.
	ErrTradingDisabled = errors.New("trading is not enabled on this connection")

	// ErrNotConnected is returned when the trading session is down.
	ErrNotConnected = errors.New("trading session is not connected")

	// ErrUnknownContract is returned for orders on symbols absent from the
	// contract cache.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrNotResolvable is the soft failure for cancellations whose local id
	// has no broker sysid: either the order is not yet acknowledged or it is
	// already terminal.
	ErrNotResolvable = errors.New("cancel rejected: order id not resolvable")
)
