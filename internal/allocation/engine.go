// Package allocation turns a market-cap ranking plus a user's rebalance
// parameters into normalized target allocation fractions.
package allocation

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"capfolio/internal/config"
	"capfolio/internal/gateway/exchange"
	"capfolio/internal/gateway/ranking"
	"capfolio/internal/logger"
	"capfolio/internal/pkg/symbol"
	"capfolio/internal/types"
)

var oneHundred = decimal.NewFromInt(100)

// SentimentIndex exposes the current fear & greed value in [0,100].
type SentimentIndex interface {
	Index() (int, bool)
}

// Engine computes target balances. It is stateless across calls; ranking
// caching is the caller's concern (see ranking.Cached).
type Engine struct {
	provider  ranking.Provider
	sentiment SentimentIndex
}

// NewEngine builds an engine. sentiment may be nil, in which case sentiment
// scaling is a no-op.
func NewEngine(provider ranking.Provider, sentiment SentimentIndex) *Engine {
	return &Engine{provider: provider, sentiment: sentiment}
}

// TargetBalance derives the target allocation for one user against the given
// venue. The returned balance carries allocation fractions only; live
// amounts are merged in later. The quote-currency asset is always first and
// a distinct sideline asset second.
func (e *Engine) TargetBalance(ctx context.Context, ex exchange.Exchange, cfg *config.UserConfig) (*types.Balance, error) {
	ranked, err := e.provider.ListLatest(ctx)
	if err != nil {
		return nil, err
	}

	// Smoothing can reorder assets relative to instantaneous market cap, so
	// the whole list is re-sorted by the smoothed value before admission.
	for i := range ranked {
		ranked[i].CapEMA = SmoothedCap(ranked[i].History, ranked[i].MarketCap, cfg.Smoothing)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CapEMA.GreaterThan(ranked[j].CapEMA)
	})

	quote := ex.Constants().QuoteSymbol
	sideline := cfg.SidelineCurrency
	if sideline == "" {
		sideline = quote
	}

	admitted := e.admit(ctx, ex, cfg, ranked, quote, sideline)

	allocSideline := e.sidelineFraction(cfg)
	assets, err := e.allocate(cfg, admitted, allocSideline)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].Allocation.Fraction(types.DefaultMode).
			GreaterThan(assets[j].Allocation.Fraction(types.DefaultMode))
	})

	// Quote first, distinct sideline second. When no distinct sideline is
	// configured the reservation parks in the quote asset itself.
	head := make([]*types.Asset, 0, 2)
	quoteAsset := &types.Asset{Symbol: quote, Allocation: types.NewModeAllocations()}
	for _, mode := range []string{types.DefaultMode, types.AbsoluteMode} {
		if sideline == quote {
			quoteAsset.Allocation.Set(mode, allocSideline)
		} else {
			quoteAsset.Allocation.Set(mode, decimal.Zero)
		}
	}
	head = append(head, quoteAsset)
	if sideline != quote {
		sideAsset := &types.Asset{Symbol: sideline, Allocation: types.NewModeAllocations()}
		for _, mode := range []string{types.DefaultMode, types.AbsoluteMode} {
			sideAsset.Allocation.Set(mode, allocSideline)
		}
		head = append(head, sideAsset)
	}

	return &types.Balance{Assets: append(head, assets...)}, nil
}

// admit walks the smoothed ranking and keeps up to TopCount tradable assets,
// honoring weighting and tag exclusions. Skipped assets do not count toward
// the cap.
func (e *Engine) admit(ctx context.Context, ex exchange.Exchange, cfg *config.UserConfig, ranked []types.RankedAsset, quote, sideline string) []types.RankedAsset {
	admitted := make([]types.RankedAsset, 0, cfg.TopCount)
	for _, ra := range ranked {
		if len(admitted) == cfg.TopCount {
			break
		}
		if ra.Symbol == quote || ra.Symbol == sideline {
			continue
		}
		weighting, explicit := cfg.Weighting(ra.Symbol)
		if weighting.IsZero() {
			continue
		}
		if !explicit && anyTagExcluded(cfg, ra) {
			continue
		}
		tradable, err := ex.IsTradable(ctx, symbol.Market(ra.Symbol, quote))
		if err != nil {
			logger.Warnf("tradability check for %s failed, skipping: %v", ra.Symbol, err)
			continue
		}
		if !tradable {
			continue
		}
		admitted = append(admitted, ra)
	}
	return admitted
}

// allocate computes both allocation modes for the admitted assets and
// normalizes each mode into true fractions that, together with the sideline
// reservation, sum to one.
func (e *Engine) allocate(cfg *config.UserConfig, admitted []types.RankedAsset, allocSideline decimal.Decimal) ([]*types.Asset, error) {
	exponent := one.DivRound(cfg.NthRoot, emaPrecision)
	modes := []string{types.DefaultMode, types.AbsoluteMode}

	raw := make([]map[string]decimal.Decimal, len(admitted))
	totals := map[string]decimal.Decimal{
		types.DefaultMode:  decimal.Zero,
		types.AbsoluteMode: decimal.Zero,
	}
	for i, ra := range admitted {
		weighting, _ := cfg.Weighting(ra.Symbol)

		// default: weighting-scaled, dampened market-cap score. A zero
		// smoothed cap scores zero here but may still receive absolute
		// weighting.
		dampened := decimal.Zero
		if ra.CapEMA.IsPositive() {
			var err error
			dampened, err = ra.CapEMA.PowWithPrecision(exponent, emaPrecision)
			if err != nil {
				return nil, err
			}
		}
		defVal := decimal.Max(decimal.Zero, weighting.Mul(dampened))
		absVal := decimal.Max(decimal.Zero, weighting)

		raw[i] = map[string]decimal.Decimal{
			types.DefaultMode:  defVal,
			types.AbsoluteMode: absVal,
		}
		totals[types.DefaultMode] = totals[types.DefaultMode].Add(defVal)
		totals[types.AbsoluteMode] = totals[types.AbsoluteMode].Add(absVal)
	}

	remainder := one.Sub(allocSideline)
	assets := make([]*types.Asset, len(admitted))
	for i, ra := range admitted {
		alloc := types.NewModeAllocations()
		for _, mode := range modes {
			// value/total, scaled so the non-sideline assets fill the
			// remaining fraction. Zero totals yield zero fractions.
			frac := safeDiv(raw[i][mode], totals[mode]).Mul(remainder)
			alloc.Set(mode, frac)
		}
		assets[i] = &types.Asset{Symbol: ra.Symbol, Allocation: alloc}
	}
	return assets, nil
}

// sidelineFraction converts AllocQuote percent into a [0,1] fraction,
// optionally scaled by the sentiment index: deeper fear keeps more of the
// reservation parked.
func (e *Engine) sidelineFraction(cfg *config.UserConfig) decimal.Decimal {
	alloc := cfg.AllocQuote
	if alloc.IsNegative() {
		alloc = decimal.Zero
	}
	if alloc.GreaterThan(oneHundred) {
		alloc = oneHundred
	}
	if cfg.AllocQuoteFagMultiply && e.sentiment != nil {
		if idx, ok := e.sentiment.Index(); ok {
			scale := oneHundred.Sub(decimal.NewFromInt(int64(idx))).DivRound(oneHundred, emaPrecision)
			alloc = alloc.Mul(scale)
		}
	}
	return alloc.DivRound(oneHundred, emaPrecision)
}

func anyTagExcluded(cfg *config.UserConfig, ra types.RankedAsset) bool {
	for _, tag := range ra.Tags {
		if cfg.TagExcluded(tag) {
			return true
		}
	}
	return false
}

func safeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, emaPrecision)
}
