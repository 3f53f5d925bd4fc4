// Package trade drives the multi-phase rebalance protocol against an
// exchange adapter: cancel open orders, sell overweight positions, verify
// fills, refresh the balance, then buy underweight positions with the quote
// that is actually available.
package trade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"capfolio/internal/decmath"
	"capfolio/internal/gateway/exchange"
	"capfolio/internal/logger"
	"capfolio/internal/portfolio"
	"capfolio/internal/types"
)

// Defaults for the execution envelope.
const (
	DefaultConcurrency  = 20
	DefaultBatchTimeout = 299 * time.Second
	DefaultPollMax      = 60
	defaultPollInterval = time.Second

	// buyScale is the fractional precision buy amounts are floored to so
	// rationing rounding can never overspend the available quote.
	buyScale = 8
)

// Options tune the orchestrator. Zero values fall back to the defaults.
type Options struct {
	Concurrency  int
	BatchTimeout time.Duration
	PollInterval time.Duration
	PollMax      int
}

// Outcome is the result of one rebalance cycle. Orders holds every sell and
// buy order placed (cancellations are not included); Errors aggregates
// per-order failures and unfilled sells for the caller to report.
type Outcome struct {
	Orders []*types.Order
	Errors []error
}

// Trades counts orders that were actually accepted by the venue.
func (o *Outcome) Trades() int {
	n := 0
	for _, ord := range o.Orders {
		if !ord.Failed() {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	ex           exchange.Exchange
	concurrency  int
	batchTimeout time.Duration
	pollInterval time.Duration
	pollMax      int
}

func NewOrchestrator(ex exchange.Exchange, opts Options) *Orchestrator {
	o := &Orchestrator{
		ex:           ex,
		concurrency:  opts.Concurrency,
		batchTimeout: opts.BatchTimeout,
		pollInterval: opts.PollInterval,
		pollMax:      opts.PollMax,
	}
	if o.concurrency < 1 {
		o.concurrency = DefaultConcurrency
	}
	if o.batchTimeout <= 0 {
		o.batchTimeout = DefaultBatchTimeout
	}
	if o.pollInterval <= 0 {
		o.pollInterval = defaultPollInterval
	}
	if o.pollMax < 1 {
		o.pollMax = DefaultPollMax
	}
	return o
}

// Rebalance converges the merged balance toward its target fractions for the
// selected mode. simulate requests venue-side test orders and skips the
// cancel and verify side effects, which is how fee estimates are produced
// without moving funds.
//
// The returned error covers infrastructure failures only (cancel sweep or
// balance refresh); individual order failures are carried in the Outcome.
func (o *Orchestrator) Rebalance(ctx context.Context, bal *types.Balance, mode string, simulate bool) (*Outcome, error) {
	if mode == "" {
		mode = types.DefaultMode
	}
	cons := o.ex.Constants()
	outcome := &Outcome{}

	// Phase 1: clear stale open orders so they cannot distort sizing.
	if !simulate {
		if _, err := o.ex.CancelAllOrders(ctx, nil); err != nil {
			return nil, err
		}
	}

	// Phase 2: sells, bounded concurrency, one batch.
	working := bal.Clone()
	sells := o.sellPhase(ctx, working, mode, simulate, cons)
	outcome.Orders = append(outcome.Orders, sells...)

	// Phase 3: poll sells to resolution, force-canceling stragglers.
	if !simulate {
		outcome.Errors = append(outcome.Errors, o.verifyFills(ctx, sells)...)
	}
	for _, ord := range sells {
		if ord.Failed() {
			outcome.Errors = append(outcome.Errors, &OrderError{
				Market: ord.Market, Side: ord.Side, Code: ord.ErrorCode, Message: ord.Error,
			})
		}
	}

	// Phase 4: refresh so buy sizing sees post-fill holdings and fees.
	live, err := o.ex.GetBalance(ctx)
	if err != nil {
		return outcome, err
	}
	working = portfolio.Merge(working, live, decimal.Zero)

	// Phases 5+6: size buys against the available quote, then place them.
	buys, buyErrs := o.buyPhase(ctx, working, mode, simulate, cons)
	outcome.Orders = append(outcome.Orders, buys...)
	outcome.Errors = append(outcome.Errors, buyErrs...)
	return outcome, nil
}

// sellPhase places a market sell for every overweight non-quote asset whose
// excess clears the venue minimum. Amounts below the minimum are left as
// drift on purpose: selling dust costs more than it restores.
func (o *Orchestrator) sellPhase(ctx context.Context, bal *types.Balance, mode string, simulate bool, cons exchange.Constants) []*types.Order {
	total := bal.AmountQuoteTotal
	results := make([]*types.Order, len(bal.Assets))

	batchCtx, cancel := context.WithTimeout(ctx, o.batchTimeout)
	defer cancel()
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for i, a := range bal.Assets {
		if a.Symbol == cons.QuoteSymbol {
			continue
		}
		balanced := total.Mul(a.Allocation.Fraction(mode))
		diff := balanced.Sub(a.AmountQuote)
		if !diff.IsNegative() {
			continue
		}
		sellAmount := diff.Abs()
		if sellAmount.LessThan(cons.MinOrderQuote) {
			continue
		}
		i, a := i, a
		g.Go(func() error {
			order, err := o.ex.Sell(batchCtx, a.Symbol, sellAmount, simulate, a.Available, a.Price)
			if err != nil {
				order = &types.Order{
					Market: a.Symbol, Side: types.SideSell, Status: types.StatusRejected,
					AmountQuote: sellAmount, Error: err.Error(),
				}
			}
			results[i] = order
			return nil
		})
	}
	_ = g.Wait()

	orders := make([]*types.Order, 0, len(results))
	for i, ord := range results {
		if ord == nil {
			continue
		}
		bal.Assets[i].SellOrder = ord
		orders = append(orders, ord)
	}
	return orders
}

// verifyFills polls each placed sell once per interval until it resolves or
// the iteration budget runs out; leftovers are actively canceled so the
// cycle can never block indefinitely. Returns one NotFilledError per sell
// that ended in any state other than filled.
func (o *Orchestrator) verifyFills(ctx context.Context, orders []*types.Order) []error {
	pending := make([]*types.Order, 0, len(orders))
	for _, ord := range orders {
		if !ord.Failed() && !ord.Status.Resolved() {
			pending = append(pending, ord)
		}
	}

	for iter := 0; iter < o.pollMax && len(pending) > 0; iter++ {
		last := iter == o.pollMax-1
		next := pending[:0]
		for _, ord := range pending {
			latest, err := o.ex.GetOrder(ctx, ord.Market, ord.OrderID)
			if err == nil && latest != nil {
				ord.Status = latest.Status
				ord.FilledAmount = latest.FilledAmount
				ord.FilledAmountQuote = latest.FilledAmountQuote
				ord.FeePaid = latest.FeePaid
			} else if err != nil {
				logger.Warnf("polling order %s on %s failed: %v", ord.OrderID, ord.Market, err)
			}
			if ord.Status.Resolved() {
				continue
			}
			if last {
				if _, err := o.ex.CancelOrder(ctx, ord.Market, ord.OrderID); err != nil {
					logger.Warnf("canceling order %s on %s failed: %v", ord.OrderID, ord.Market, err)
				}
				ord.Status = types.StatusCanceled
				continue
			}
			next = append(next, ord)
		}
		pending = next
		if len(pending) > 0 {
			select {
			case <-ctx.Done():
				pending = nil
			case <-time.After(o.pollInterval):
			}
		}
	}

	var errs []error
	for _, ord := range orders {
		if !ord.Failed() && ord.Status != types.StatusFilled {
			errs = append(errs, &NotFilledError{Market: ord.Market, OrderID: ord.OrderID, Status: ord.Status})
		}
	}
	return errs
}

// buyPhase sizes buys against the quote asset's available balance. Desired
// buys can exceed what is spendable (partial fills, fees), so each buy is
// scaled by available/toBuyTotal when rationing is needed; the scaled sum
// can never exceed the available quote.
func (o *Orchestrator) buyPhase(ctx context.Context, bal *types.Balance, mode string, simulate bool, cons exchange.Constants) ([]*types.Order, []error) {
	total := bal.AmountQuoteTotal
	available := decimal.Zero
	if quote := bal.Find(cons.QuoteSymbol); quote != nil {
		available = quote.Available
	}

	toBuyTotal := decimal.Zero
	for _, a := range bal.Assets {
		if a.Symbol == cons.QuoteSymbol {
			continue
		}
		a.AmountQuoteToBuy = decimal.Zero
		diff := total.Mul(a.Allocation.Fraction(mode)).Sub(a.AmountQuote)
		if diff.IsPositive() && !diff.LessThan(cons.MinOrderQuote) {
			a.AmountQuoteToBuy = diff
			toBuyTotal = toBuyTotal.Add(diff)
		}
	}
	if toBuyTotal.IsZero() || !available.IsPositive() {
		return nil, nil
	}

	scale := decimal.NewFromInt(1)
	if toBuyTotal.GreaterThan(available) {
		scale = available.DivRound(toBuyTotal, 24)
	}

	results := make([]*types.Order, len(bal.Assets))
	batchCtx, cancel := context.WithTimeout(ctx, o.batchTimeout)
	defer cancel()
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for i, a := range bal.Assets {
		if !a.AmountQuoteToBuy.IsPositive() {
			continue
		}
		amount, _ := decimal.NewFromString(decmath.FloorTo(a.AmountQuoteToBuy.Mul(scale).String(), buyScale))
		if amount.LessThan(cons.MinOrderQuote) {
			continue
		}
		i, a, amount := i, a, amount
		g.Go(func() error {
			order, err := o.ex.Buy(batchCtx, a.Symbol, amount, simulate)
			if err != nil {
				order = &types.Order{
					Market: a.Symbol, Side: types.SideBuy, Status: types.StatusRejected,
					AmountQuote: amount, Error: err.Error(),
				}
			}
			results[i] = order
			return nil
		})
	}
	_ = g.Wait()

	var orders []*types.Order
	var errs []error
	for i, ord := range results {
		if ord == nil {
			continue
		}
		bal.Assets[i].BuyOrder = ord
		orders = append(orders, ord)
		if ord.Failed() {
			errs = append(errs, &OrderError{
				Market: ord.Market, Side: ord.Side, Code: ord.ErrorCode, Message: ord.Error,
			})
		}
	}
	return orders, errs
}
