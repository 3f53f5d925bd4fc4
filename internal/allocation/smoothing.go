package allocation

import (
	"github.com/shopspring/decimal"

	"capfolio/internal/types"
)

const emaPrecision = 24

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// SmoothedCap computes an exponential moving average over the recorded daily
// market-cap series (newest first), using at most `periods` observations.
// The window is truncated at the first calendar-day gap: a day with no
// recorded observation breaks the smoothing window, since an unattended gap
// makes older observations unreliable as a trend base. With fewer than two
// usable points the smoothed value is simply the most recent raw value.
func SmoothedCap(history []types.CapPoint, latest decimal.Decimal, periods int) decimal.Decimal {
	window := contiguousWindow(history, periods)
	if len(window) < 2 {
		return latest
	}

	// EMA seeded with the oldest value, walking toward the newest.
	k := two.DivRound(decimal.NewFromInt(int64(len(window))+1), emaPrecision)
	ema := window[len(window)-1].MarketCap
	for i := len(window) - 2; i >= 0; i-- {
		diff := window[i].MarketCap.Sub(ema)
		ema = ema.Add(diff.Mul(k))
	}
	return ema
}

// contiguousWindow returns the newest run of consecutive calendar days,
// capped at periods entries.
func contiguousWindow(history []types.CapPoint, periods int) []types.CapPoint {
	if periods < 1 || len(history) == 0 {
		return nil
	}
	end := 1
	for end < len(history) && end < periods {
		prev := history[end-1].Day
		cur := history[end].Day
		if int(prev.Sub(cur).Hours()/24) != 1 {
			break
		}
		end++
	}
	return history[:end]
}
