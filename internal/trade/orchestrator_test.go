package trade

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capfolio/internal/gateway/exchange"
	"capfolio/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type placedOrder struct {
	symbol      string
	amountQuote decimal.Decimal
	simulate    bool
}

// mockVenue scripts exchange behavior and records every call. Sells start in
// status new; GetOrder reports them filled after fillAfter polls (negative
// means never).
type mockVenue struct {
	mu sync.Mutex

	cons       exchange.Constants
	balance    *types.Balance
	balanceErr error

	cancelSweepErr error
	cancelSweeps   int

	sellErr   error
	fillAfter int
	polls     int

	sells         []placedOrder
	buys          []placedOrder
	forceCanceled []string
	nextID        int
}

func newMockVenue(balance *types.Balance) *mockVenue {
	return &mockVenue{
		cons: exchange.Constants{
			QuoteSymbol:   "USDT",
			MinOrderQuote: decimal.NewFromInt(10),
		},
		balance: balance,
	}
}

func (m *mockVenue) Name() string                  { return "mock" }
func (m *mockVenue) Constants() exchange.Constants { return m.cons }

func (m *mockVenue) GetBalance(ctx context.Context) (*types.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return m.balance.Clone(), nil
}

func (m *mockVenue) CancelAllOrders(ctx context.Context, ignore map[string]bool) ([]*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelSweeps++
	return nil, m.cancelSweepErr
}

func (m *mockVenue) Sell(ctx context.Context, symbol string, amountQuote decimal.Decimal, simulate bool, available, price decimal.Decimal) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sells = append(m.sells, placedOrder{symbol: symbol, amountQuote: amountQuote, simulate: simulate})
	if m.sellErr != nil {
		return nil, m.sellErr
	}
	m.nextID++
	return &types.Order{
		OrderID:     strconv.Itoa(m.nextID),
		Market:      symbol,
		Side:        types.SideSell,
		Status:      types.StatusNew,
		AmountQuote: amountQuote,
	}, nil
}

func (m *mockVenue) Buy(ctx context.Context, symbol string, amountQuote decimal.Decimal, simulate bool) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buys = append(m.buys, placedOrder{symbol: symbol, amountQuote: amountQuote, simulate: simulate})
	m.nextID++
	return &types.Order{
		OrderID:     strconv.Itoa(m.nextID),
		Market:      symbol,
		Side:        types.SideBuy,
		Status:      types.StatusFilled,
		AmountQuote: amountQuote,
	}, nil
}

func (m *mockVenue) GetOrder(ctx context.Context, market, orderID string) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	status := types.StatusNew
	if m.fillAfter >= 0 && m.polls > m.fillAfter {
		status = types.StatusFilled
	}
	return &types.Order{OrderID: orderID, Market: market, Status: status}, nil
}

func (m *mockVenue) CancelOrder(ctx context.Context, market, orderID string) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceCanceled = append(m.forceCanceled, orderID)
	return &types.Order{OrderID: orderID, Market: market, Status: types.StatusCanceled}, nil
}

func (m *mockVenue) IsTradable(ctx context.Context, market string) (bool, error) {
	return true, nil
}

func asset(symbol, frac, amountQuote, available string) *types.Asset {
	alloc := types.NewModeAllocations()
	alloc.Set(types.DefaultMode, d(frac))
	return &types.Asset{
		Symbol:      symbol,
		Allocation:  alloc,
		AmountQuote: d(amountQuote),
		Amount:      d(amountQuote),
		Available:   d(available),
		Price:       decimal.NewFromInt(1),
	}
}

func balanceOf(total string, assets ...*types.Asset) *types.Balance {
	return &types.Balance{Assets: assets, AmountQuoteTotal: d(total)}
}

func fastOpts() Options {
	return Options{PollInterval: time.Millisecond, PollMax: 3}
}

func TestRebalanceQuoteOnlyBuysTarget(t *testing.T) {
	bal := balanceOf("100",
		asset("USDT", "0.5", "100", "100"),
		asset("BTC", "0.5", "0", "0"),
	)
	venue := newMockVenue(bal)
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	require.NoError(t, err)

	assert.Empty(t, venue.sells)
	require.Len(t, venue.buys, 1)
	assert.Equal(t, "BTC", venue.buys[0].symbol)
	assert.True(t, d("50").Equal(venue.buys[0].amountQuote), "got %s", venue.buys[0].amountQuote)
	assert.Equal(t, 1, venue.cancelSweeps)
	assert.Equal(t, 1, outcome.Trades())
	assert.Empty(t, outcome.Errors)
}

func TestRebalanceRationsBuysToAvailableQuote(t *testing.T) {
	// Both buys want 50 but only 40 quote is spendable: each is scaled to 20.
	bal := balanceOf("200",
		asset("USDT", "0", "100", "40"),
		asset("BTC", "0.5", "50", "50"),
		asset("ETH", "0.5", "50", "50"),
	)
	venue := newMockVenue(bal)
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	require.NoError(t, err)

	require.Len(t, venue.buys, 2)
	spent := decimal.Zero
	for _, b := range venue.buys {
		assert.True(t, d("20").Equal(b.amountQuote), "got %s", b.amountQuote)
		spent = spent.Add(b.amountQuote)
	}
	assert.True(t, spent.LessThanOrEqual(d("40")))
	assert.Equal(t, 2, outcome.Trades())
}

func TestRebalanceIgnoresSubMinimumDrift(t *testing.T) {
	// 5 quote of drift is below the 10 minimum on both sides.
	bal := balanceOf("100",
		asset("USDT", "0", "5", "5"),
		asset("BTC", "0.5", "45", "45"),
		asset("ETH", "0.5", "50", "50"),
	)
	venue := newMockVenue(bal)
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	require.NoError(t, err)

	assert.Empty(t, venue.sells)
	assert.Empty(t, venue.buys)
	assert.Equal(t, 0, outcome.Trades())
}

func TestRebalanceSellsOverweightAndVerifiesFill(t *testing.T) {
	bal := balanceOf("100",
		asset("USDT", "1", "0", "0"),
		asset("BTC", "0", "100", "100"),
	)
	venue := newMockVenue(balanceOf("100", asset("USDT", "1", "100", "100")))
	venue.fillAfter = 1
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	require.NoError(t, err)

	require.Len(t, venue.sells, 1)
	assert.Equal(t, "BTC", venue.sells[0].symbol)
	assert.True(t, d("100").Equal(venue.sells[0].amountQuote))
	assert.Empty(t, venue.forceCanceled)
	assert.Empty(t, outcome.Errors)
	assert.Equal(t, 1, outcome.Trades())
	assert.Equal(t, types.StatusFilled, outcome.Orders[0].Status)
}

func TestRebalanceForceCancelsUnfilledSell(t *testing.T) {
	bal := balanceOf("100",
		asset("USDT", "1", "0", "0"),
		asset("BTC", "0", "100", "100"),
	)
	venue := newMockVenue(balanceOf("100", asset("USDT", "1", "0", "0")))
	venue.fillAfter = -1
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	require.NoError(t, err)

	require.Len(t, venue.forceCanceled, 1)
	assert.Equal(t, types.StatusCanceled, outcome.Orders[0].Status)

	var notFilled *NotFilledError
	found := false
	for _, e := range outcome.Errors {
		if errors.As(e, &notFilled) {
			found = true
		}
	}
	assert.True(t, found, "expected a not-filled error, got %v", outcome.Errors)
}

func TestRebalanceAbortsWhenCancelSweepFails(t *testing.T) {
	bal := balanceOf("100", asset("USDT", "1", "100", "100"))
	venue := newMockVenue(bal)
	venue.cancelSweepErr = errors.New("venue unavailable")
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.Empty(t, venue.sells)
	assert.Empty(t, venue.buys)
}

func TestRebalanceRecordsSellTransportError(t *testing.T) {
	bal := balanceOf("100",
		asset("USDT", "1", "0", "0"),
		asset("BTC", "0", "100", "100"),
	)
	venue := newMockVenue(balanceOf("100", asset("USDT", "1", "0", "0")))
	venue.sellErr = errors.New("connection reset")
	o := NewOrchestrator(venue, fastOpts())

	outcome, err := o.Rebalance(context.Background(), bal, types.DefaultMode, false)
	require.NoError(t, err)

	// The failure is carried as a rejected order plus an order error, not as
	// an infrastructure error.
	require.Len(t, outcome.Orders, 1)
	assert.True(t, outcome.Orders[0].Failed())
	assert.Equal(t, 0, outcome.Trades())

	var orderErr *OrderError
	found := false
	for _, e := range outcome.Errors {
		if errors.As(e, &orderErr) {
			found = true
		}
	}
	assert.True(t, found, "expected an order error, got %v", outcome.Errors)
}

func TestRebalanceSimulateSkipsSideEffects(t *testing.T) {
	bal := balanceOf("100",
		asset("USDT", "1", "0", "0"),
		asset("BTC", "0", "100", "100"),
	)
	venue := newMockVenue(balanceOf("100", asset("USDT", "1", "100", "100")))
	o := NewOrchestrator(venue, fastOpts())

	_, err := o.Rebalance(context.Background(), bal, types.DefaultMode, true)
	require.NoError(t, err)

	assert.Equal(t, 0, venue.cancelSweeps)
	assert.Equal(t, 0, venue.polls)
	require.Len(t, venue.sells, 1)
	assert.True(t, venue.sells[0].simulate)
}
