package allocation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capfolio/internal/config"
	"capfolio/internal/gateway/exchange"
	"capfolio/internal/types"
)

type fakeProvider struct {
	ranked []types.RankedAsset
	err    error
}

func (p *fakeProvider) ListLatest(ctx context.Context) ([]types.RankedAsset, error) {
	return p.ranked, p.err
}

type fakeSentiment struct {
	index int
	ok    bool
}

func (s *fakeSentiment) Index() (int, bool) { return s.index, s.ok }

// fakeExchange satisfies the exchange contract; only Constants and
// IsTradable matter for allocation.
type fakeExchange struct {
	cons       exchange.Constants
	untradable map[string]bool
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		cons: exchange.Constants{
			QuoteSymbol:   "USDT",
			MinOrderQuote: decimal.NewFromInt(10),
		},
		untradable: map[string]bool{},
	}
}

func (f *fakeExchange) Name() string                  { return "fake" }
func (f *fakeExchange) Constants() exchange.Constants { return f.cons }
func (f *fakeExchange) GetBalance(ctx context.Context) (*types.Balance, error) {
	return &types.Balance{}, nil
}
func (f *fakeExchange) CancelAllOrders(ctx context.Context, ignore map[string]bool) ([]*types.Order, error) {
	return nil, nil
}
func (f *fakeExchange) Sell(ctx context.Context, symbol string, amountQuote decimal.Decimal, simulate bool, available, price decimal.Decimal) (*types.Order, error) {
	return nil, nil
}
func (f *fakeExchange) Buy(ctx context.Context, symbol string, amountQuote decimal.Decimal, simulate bool) (*types.Order, error) {
	return nil, nil
}
func (f *fakeExchange) GetOrder(ctx context.Context, market, orderID string) (*types.Order, error) {
	return nil, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, market, orderID string) (*types.Order, error) {
	return nil, nil
}
func (f *fakeExchange) IsTradable(ctx context.Context, market string) (bool, error) {
	return !f.untradable[market], nil
}

func ranked(symbol, cap string, tags ...string) types.RankedAsset {
	return types.RankedAsset{Symbol: symbol, MarketCap: decimal.RequireFromString(cap), Tags: tags}
}

func userConfig(t *testing.T, mutate func(*config.UserConfig)) *config.UserConfig {
	t.Helper()
	cfg := &config.UserConfig{
		UserID:  "u1",
		NthRoot: decimal.NewFromInt(1),
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())
	return cfg
}

func frac(t *testing.T, bal *types.Balance, symbol string) decimal.Decimal {
	t.Helper()
	a := bal.Find(symbol)
	require.NotNil(t, a, "asset %s missing", symbol)
	return a.Allocation.Fraction(types.DefaultMode)
}

func TestTargetBalanceCapProportional(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{
		ranked("ETH", "100"),
		ranked("BTC", "400"),
	}}
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) { c.TopCount = 2 })

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	// Quote first, then assets in descending allocation order.
	require.Len(t, bal.Assets, 3)
	assert.Equal(t, "USDT", bal.Assets[0].Symbol)
	assert.Equal(t, "BTC", bal.Assets[1].Symbol)
	assert.Equal(t, "ETH", bal.Assets[2].Symbol)

	assert.True(t, decimal.RequireFromString("0.8").Equal(frac(t, bal, "BTC")))
	assert.True(t, decimal.RequireFromString("0.2").Equal(frac(t, bal, "ETH")))
	assert.True(t, frac(t, bal, "USDT").IsZero())
}

func TestTargetBalanceFractionsSumToOne(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{
		ranked("BTC", "700"),
		ranked("ETH", "300"),
		ranked("SOL", "130"),
	}}
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) {
		c.TopCount = 3
		c.AllocQuote = decimal.NewFromInt(25)
	})

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, a := range bal.Assets {
		sum = sum.Add(a.Allocation.Fraction(types.DefaultMode))
	}
	assert.True(t, sum.Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.RequireFromString("0.000001")), "sum %s", sum)
	assert.True(t, decimal.RequireFromString("0.25").Equal(frac(t, bal, "USDT")))
}

func TestTargetBalanceZeroWeightingExcludes(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{
		ranked("BTC", "400"),
		ranked("ETH", "100"),
	}}
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) {
		c.TopCount = 2
		c.AssetWeightings = map[string]decimal.Decimal{"BTC": decimal.Zero}
	})

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	assert.Nil(t, bal.Find("BTC"))
	assert.True(t, decimal.NewFromInt(1).Equal(frac(t, bal, "ETH")))
}

func TestTargetBalanceTagExclusion(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{
		ranked("BTC", "400"),
		ranked("USDC", "300", "stablecoin"),
		ranked("DAI", "200", "stablecoin"),
		ranked("ETH", "100"),
	}}
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) {
		c.TopCount = 3
		c.ExcludedTags = []string{"stablecoin"}
		// An explicit weighting overrides the tag exclusion.
		c.AssetWeightings = map[string]decimal.Decimal{"DAI": decimal.NewFromInt(1)}
	})

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	assert.Nil(t, bal.Find("USDC"))
	assert.NotNil(t, bal.Find("DAI"))
	assert.NotNil(t, bal.Find("BTC"))
	assert.NotNil(t, bal.Find("ETH"))
}

func TestTargetBalanceSkipsUntradable(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{
		ranked("BTC", "400"),
		ranked("ETH", "100"),
	}}
	ex := newFakeExchange()
	ex.untradable["BTC/USDT"] = true
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) { c.TopCount = 2 })

	bal, err := engine.TargetBalance(context.Background(), ex, cfg)
	require.NoError(t, err)

	// The untradable asset does not consume a top-count slot.
	assert.Nil(t, bal.Find("BTC"))
	assert.True(t, decimal.NewFromInt(1).Equal(frac(t, bal, "ETH")))
}

func TestTargetBalanceSentimentScaling(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{ranked("BTC", "400")}}
	// Index 50: half the reservation stays parked.
	engine := NewEngine(provider, &fakeSentiment{index: 50, ok: true})
	cfg := userConfig(t, func(c *config.UserConfig) {
		c.TopCount = 1
		c.AllocQuote = decimal.NewFromInt(40)
		c.AllocQuoteFagMultiply = true
	})

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.2").Equal(frac(t, bal, "USDT")))
	assert.True(t, decimal.RequireFromString("0.8").Equal(frac(t, bal, "BTC")))
}

func TestTargetBalanceDistinctSideline(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{ranked("BTC", "400")}}
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) {
		c.TopCount = 1
		c.AllocQuote = decimal.NewFromInt(30)
		c.SidelineCurrency = "EUR"
	})

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	require.True(t, len(bal.Assets) >= 2)
	assert.Equal(t, "USDT", bal.Assets[0].Symbol)
	assert.Equal(t, "EUR", bal.Assets[1].Symbol)
	assert.True(t, frac(t, bal, "USDT").IsZero())
	assert.True(t, decimal.RequireFromString("0.3").Equal(frac(t, bal, "EUR")))
	assert.True(t, decimal.RequireFromString("0.7").Equal(frac(t, bal, "BTC")))
}

func TestTargetBalanceAbsoluteMode(t *testing.T) {
	provider := &fakeProvider{ranked: []types.RankedAsset{
		ranked("BTC", "400"),
		ranked("ETH", "100"),
	}}
	engine := NewEngine(provider, nil)
	cfg := userConfig(t, func(c *config.UserConfig) {
		c.TopCount = 2
		c.AssetWeightings = map[string]decimal.Decimal{
			"BTC": decimal.NewFromInt(1),
			"ETH": decimal.NewFromInt(3),
		}
	})

	bal, err := engine.TargetBalance(context.Background(), newFakeExchange(), cfg)
	require.NoError(t, err)

	// Absolute mode ignores market cap entirely.
	btc, _ := bal.Find("BTC").Allocation.Get(types.AbsoluteMode)
	eth, _ := bal.Find("ETH").Allocation.Get(types.AbsoluteMode)
	assert.True(t, decimal.RequireFromString("0.25").Equal(btc), "got %s", btc)
	assert.True(t, decimal.RequireFromString("0.75").Equal(eth), "got %s", eth)
}
