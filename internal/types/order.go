package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus tracks the exchange-reported lifecycle of an order. Venues may
// report additional variants; status checks therefore go through the helper
// methods instead of direct comparison.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partiallyFilled"
	StatusCanceled        OrderStatus = "canceled"
	StatusExpired         OrderStatus = "expired"
	StatusRejected        OrderStatus = "rejected"
)

// Resolved reports whether the order needs no further polling: filled,
// expired, rejected, or any cancel-prefixed status.
func (s OrderStatus) Resolved() bool {
	switch s {
	case StatusFilled, StatusExpired, StatusRejected:
		return true
	}
	return strings.HasPrefix(string(s), "cancel")
}

// Order is the result of a single exchange trade request. It lives for one
// rebalance cycle only.
type Order struct {
	OrderID           string
	Market            string
	Side              OrderSide
	Status            OrderStatus
	Amount            decimal.Decimal
	AmountQuote       decimal.Decimal
	FilledAmount      decimal.Decimal
	FilledAmountQuote decimal.Decimal
	FeePaid           decimal.Decimal
	ErrorCode         int
	Error             string
}

// Failed reports whether the venue returned an error for this order.
func (o *Order) Failed() bool {
	return o != nil && (o.ErrorCode != 0 || o.Error != "")
}

// Clone returns an independent copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
