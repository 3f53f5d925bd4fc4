package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capfolio/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func targetAsset(symbol, frac string) *types.Asset {
	alloc := types.NewModeAllocations()
	alloc.Set(types.DefaultMode, d(frac))
	return &types.Asset{Symbol: symbol, Allocation: alloc}
}

func liveAsset(symbol, amount, price, amountQuote, current string) *types.Asset {
	return &types.Asset{
		Symbol:            symbol,
		Amount:            d(amount),
		Available:         d(amount),
		Price:             d(price),
		AmountQuote:       d(amountQuote),
		AllocationCurrent: d(current),
	}
}

func TestMergeCopiesLiveFields(t *testing.T) {
	target := &types.Balance{Assets: []*types.Asset{
		targetAsset("USDT", "0"),
		targetAsset("BTC", "1"),
	}}
	live := &types.Balance{
		Assets: []*types.Asset{
			liveAsset("USDT", "40", "1", "40", "0.4"),
			liveAsset("BTC", "0.001", "60000", "60", "0.6"),
		},
		AmountQuoteTotal: d("100"),
	}

	merged := Merge(target, live, decimal.Zero)

	require.Len(t, merged.Assets, 2)
	assert.True(t, d("100").Equal(merged.AmountQuoteTotal))

	btc := merged.Find("BTC")
	require.NotNil(t, btc)
	assert.True(t, d("60").Equal(btc.AmountQuote))
	assert.True(t, d("0.6").Equal(btc.AllocationCurrent))
	assert.True(t, d("60000").Equal(btc.Price))
	// The target fraction survives the merge.
	assert.True(t, d("1").Equal(btc.Allocation.Fraction(types.DefaultMode)))
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	target := &types.Balance{Assets: []*types.Asset{
		targetAsset("USDT", "0"),
		targetAsset("BTC", "1"),
	}}
	live := &types.Balance{
		Assets:           []*types.Asset{liveAsset("USDT", "100", "1", "100", "1")},
		AmountQuoteTotal: d("100"),
	}

	Merge(target, live, d("50"))

	assert.True(t, target.Assets[0].Allocation.Fraction(types.DefaultMode).IsZero())
	assert.True(t, d("1").Equal(target.Assets[1].Allocation.Fraction(types.DefaultMode)))
	assert.True(t, live.Assets[0].AmountQuote.Equal(d("100")))
}

func TestMergeTakeoutShiftsToQuote(t *testing.T) {
	target := &types.Balance{Assets: []*types.Asset{
		targetAsset("USDT", "0"),
		targetAsset("BTC", "0.5"),
		targetAsset("ETH", "0.5"),
	}}
	live := &types.Balance{
		Assets:           []*types.Asset{liveAsset("USDT", "100", "1", "100", "1")},
		AmountQuoteTotal: d("100"),
	}

	// 25 of 100 withheld: quote gains 0.25, others scale by 0.75.
	merged := Merge(target, live, d("25"))

	assert.True(t, d("0.25").Equal(merged.Find("USDT").Allocation.Fraction(types.DefaultMode)))
	assert.True(t, d("0.375").Equal(merged.Find("BTC").Allocation.Fraction(types.DefaultMode)))
	assert.True(t, d("0.375").Equal(merged.Find("ETH").Allocation.Fraction(types.DefaultMode)))
}

func TestMergeTakeoutClampedToLiveTotal(t *testing.T) {
	target := &types.Balance{Assets: []*types.Asset{
		targetAsset("USDT", "0"),
		targetAsset("BTC", "1"),
	}}
	live := &types.Balance{
		Assets:           []*types.Asset{liveAsset("USDT", "100", "1", "100", "1")},
		AmountQuoteTotal: d("100"),
	}

	merged := Merge(target, live, d("250"))

	assert.True(t, d("1").Equal(merged.Find("USDT").Allocation.Fraction(types.DefaultMode)))
	assert.True(t, merged.Find("BTC").Allocation.Fraction(types.DefaultMode).IsZero())
}

func TestMergeNegativeTakeoutIgnored(t *testing.T) {
	target := &types.Balance{Assets: []*types.Asset{
		targetAsset("USDT", "0"),
		targetAsset("BTC", "1"),
	}}
	live := &types.Balance{
		Assets:           []*types.Asset{liveAsset("USDT", "100", "1", "100", "1")},
		AmountQuoteTotal: d("100"),
	}

	merged := Merge(target, live, d("-10"))

	assert.True(t, merged.Find("USDT").Allocation.Fraction(types.DefaultMode).IsZero())
	assert.True(t, d("1").Equal(merged.Find("BTC").Allocation.Fraction(types.DefaultMode)))
}

func TestMergeAppendsLiveOnlyAssets(t *testing.T) {
	target := &types.Balance{Assets: []*types.Asset{
		targetAsset("USDT", "0"),
		targetAsset("BTC", "1"),
	}}
	live := &types.Balance{
		Assets: []*types.Asset{
			liveAsset("USDT", "50", "1", "50", "0.5"),
			liveAsset("DOGE", "1000", "0.05", "50", "0.5"),
		},
		AmountQuoteTotal: d("100"),
	}

	merged := Merge(target, live, d("10"))

	doge := merged.Find("DOGE")
	require.NotNil(t, doge)
	// Live-only holdings are carried over untouched, with no target.
	assert.Nil(t, doge.Allocation)
	assert.True(t, d("50").Equal(doge.AmountQuote))
	// And they come after every target-origin asset.
	assert.Equal(t, "DOGE", merged.Assets[len(merged.Assets)-1].Symbol)
}

func TestMergeBothModesReshaped(t *testing.T) {
	quote := types.NewModeAllocations()
	quote.Set(types.DefaultMode, decimal.Zero)
	quote.Set(types.AbsoluteMode, decimal.Zero)
	btc := types.NewModeAllocations()
	btc.Set(types.DefaultMode, d("1"))
	btc.Set(types.AbsoluteMode, d("0.8"))

	target := &types.Balance{Assets: []*types.Asset{
		{Symbol: "USDT", Allocation: quote},
		{Symbol: "BTC", Allocation: btc},
	}}
	live := &types.Balance{
		Assets:           []*types.Asset{liveAsset("USDT", "100", "1", "100", "1")},
		AmountQuoteTotal: d("100"),
	}

	merged := Merge(target, live, d("50"))

	gotDef, _ := merged.Find("BTC").Allocation.Get(types.DefaultMode)
	gotAbs, _ := merged.Find("BTC").Allocation.Get(types.AbsoluteMode)
	assert.True(t, d("0.5").Equal(gotDef))
	assert.True(t, d("0.4").Equal(gotAbs))

	quoteDef, _ := merged.Find("USDT").Allocation.Get(types.DefaultMode)
	quoteAbs, _ := merged.Find("USDT").Allocation.Get(types.AbsoluteMode)
	assert.True(t, d("0.5").Equal(quoteDef))
	assert.True(t, d("0.5").Equal(quoteAbs))
}
