// Package portfolio reconciles target allocations with live exchange
// holdings.
package portfolio

import (
	"github.com/shopspring/decimal"

	"capfolio/internal/types"
)

// Merge combines a target balance (allocation fractions, no live amounts)
// with a live exchange balance (amounts, no targets) into a fresh balance.
// Neither input is mutated.
//
// takeout is a quote amount withheld from reinvestment: it is clamped to the
// live total, converted to a fraction, added to the quote asset's target in
// every mode and proportionally removed from every other target-bearing
// asset. Assets only present in the live balance are appended unchanged so
// holdings are never silently dropped.
func Merge(target, live *types.Balance, takeout decimal.Decimal) *types.Balance {
	merged := &types.Balance{}
	if live != nil {
		merged.AmountQuoteTotal = live.AmountQuoteTotal
	}

	takeoutFrac := takeoutFraction(takeout, merged.AmountQuoteTotal)
	keep := decimal.NewFromInt(1).Sub(takeoutFrac)

	seen := make(map[string]bool)
	if target != nil {
		for i, t := range target.Assets {
			a := t.Clone()
			if found := live.Find(t.Symbol); found != nil {
				a.Price = found.Price
				a.Amount = found.Amount
				a.Available = found.Available
				a.AmountQuote = found.AmountQuote
				a.AllocationCurrent = found.AllocationCurrent
			}
			// Takeout reshapes only target-origin assets; live-only assets
			// appended below keep their absent targets.
			if !takeoutFrac.IsZero() && a.Allocation != nil {
				for _, mode := range a.Allocation.Modes() {
					frac, _ := a.Allocation.Get(mode)
					if i == 0 {
						a.Allocation.Set(mode, frac.Add(takeoutFrac))
					} else {
						a.Allocation.Set(mode, frac.Mul(keep))
					}
				}
			}
			seen[a.Symbol] = true
			merged.Assets = append(merged.Assets, a)
		}
	}

	if live != nil {
		for _, l := range live.Assets {
			if seen[l.Symbol] {
				continue
			}
			merged.Assets = append(merged.Assets, l.Clone())
		}
	}
	return merged
}

// takeoutFraction clamps the requested takeout to [0, liveTotal] and
// expresses it as a fraction of the live total.
func takeoutFraction(takeout, liveTotal decimal.Decimal) decimal.Decimal {
	if !takeout.IsPositive() || !liveTotal.IsPositive() {
		return decimal.Zero
	}
	if takeout.GreaterThan(liveTotal) {
		takeout = liveTotal
	}
	return takeout.DivRound(liveTotal, 24)
}
