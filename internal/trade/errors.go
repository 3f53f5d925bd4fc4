package trade

import (
	"fmt"

	"capfolio/internal/types"
)

// OrderError reports a venue-rejected order. It is collected per order, not
// raised; one failed order never aborts the rest of the batch.
type OrderError struct {
	Market  string
	Side    types.OrderSide
	Code    int
	Message string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %s %s failed (code %d): %s", e.Side, e.Market, e.Code, e.Message)
}

// NotFilledError reports an order that survived the verify loop without
// filling. Distinct from OrderError so operators can tell venue rejection
// from liquidity or timeout problems.
type NotFilledError struct {
	Market  string
	OrderID string
	Status  types.OrderStatus
}

func (e *NotFilledError) Error() string {
	return fmt.Sprintf("order %s on %s not filled (status %s)", e.OrderID, e.Market, e.Status)
}
