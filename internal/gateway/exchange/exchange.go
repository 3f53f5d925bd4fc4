// Package exchange defines a common abstraction for trading venues.
// The rebalance core is venue-agnostic; anything beyond this contract
// (signing, wire formats, rate limits) belongs to the concrete adapter.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"capfolio/internal/types"
)

// Constants describes the venue parameters the core needs for sizing.
type Constants struct {
	QuoteSymbol   string          // quote currency, e.g. "USDT"
	MinOrderQuote decimal.Decimal // minimum order size in quote currency
	TakerFee      decimal.Decimal // taker fee fraction, e.g. 0.001
	MakerFee      decimal.Decimal // maker fee fraction
}

type Exchange interface {
	Name() string

	Constants() Constants

	// GetBalance returns the account balance with the quote-currency asset
	// first, valued at current prices.
	GetBalance(ctx context.Context) (*types.Balance, error)

	// CancelAllOrders cancels every open order except those whose base
	// symbol is in ignore, returning the cancellations.
	CancelAllOrders(ctx context.Context, ignore map[string]bool) ([]*types.Order, error)

	// Sell places a market sell for amountQuote worth of symbol. available
	// caps the sell at the actually spendable base amount; price is the
	// last known price used for that conversion. simulate requests a
	// venue-side test order that never fills.
	Sell(ctx context.Context, symbol string, amountQuote decimal.Decimal, simulate bool, available, price decimal.Decimal) (*types.Order, error)

	// Buy places a market buy for amountQuote worth of symbol.
	Buy(ctx context.Context, symbol string, amountQuote decimal.Decimal, simulate bool) (*types.Order, error)

	GetOrder(ctx context.Context, market, orderID string) (*types.Order, error)

	CancelOrder(ctx context.Context, market, orderID string) (*types.Order, error)

	// IsTradable reports whether the market (base+quote pair) is currently
	// tradable on this venue.
	IsTradable(ctx context.Context, market string) (bool, error)
}
