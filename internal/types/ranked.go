package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapPoint is one recorded market-cap observation.
type CapPoint struct {
	Day       time.Time // calendar day of the observation, UTC midnight
	MarketCap decimal.Decimal
}

// RankedAsset is one entry from the market-ranking provider. History holds
// the locally recorded daily series, newest first; CapEMA is attached by the
// allocation engine after smoothing.
type RankedAsset struct {
	Symbol    string
	Tags      []string
	MarketCap decimal.Decimal
	History   []CapPoint
	CapEMA    decimal.Decimal
}

// HasTag reports whether the asset carries the given lowercase tag.
func (r *RankedAsset) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
