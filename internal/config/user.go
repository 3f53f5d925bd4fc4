package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Defaults applied by Normalize when a field is unset or out of range.
const (
	DefaultTopCount      = 10
	DefaultSmoothingDays = 14
	DefaultIntervalHours = 24
	MaxTopCount          = 100
)

var (
	defaultNthRoot   = decimal.NewFromFloat(2.5)
	defaultThreshold = decimal.NewFromInt(1)
	oneHundred       = decimal.NewFromInt(100)
)

// UserConfig holds one user's rebalance parameters. Exactly one instance
// exists per user; persistence is the store's concern. Every field is
// explicit and individually clamped, the request-parameter mapping happens
// at the transport boundary.
type UserConfig struct {
	UserID string

	// AssetWeightings maps symbol -> weighting. Absent symbols default to 1;
	// an explicit 0 excludes the asset.
	AssetWeightings map[string]decimal.Decimal
	// ExcludedTags excludes untweighted assets carrying any of these
	// lowercase provider tags (e.g. "stablecoin").
	ExcludedTags []string

	TopCount  int             // number of ranked assets to hold, [1,100]
	Smoothing int             // EMA period in days, >= 1
	NthRoot   decimal.Decimal // dampening exponent denominator, > 0

	DustLimit          decimal.Decimal // ignore holdings below this quote value
	RebalanceThreshold decimal.Decimal // percentage points of drift before trading

	AllocQuote            decimal.Decimal // percent reserved in quote/sideline, [0,100]
	AllocQuoteFagMultiply bool            // scale AllocQuote by the fear & greed index
	Takeout               decimal.Decimal // quote amount withheld from reinvestment
	SidelineCurrency      string          // optional parking asset treated like quote

	IntervalHours     int // minimum gap between automated runs
	AutomationEnabled bool
	LastRebalance     *time.Time
}

// Normalize clamps every field to its documented range. Out-of-range values
// are corrected, not rejected; only a missing user id is an error because no
// sensible value can be substituted.
func (c *UserConfig) Normalize() error {
	c.UserID = strings.TrimSpace(c.UserID)
	if c.UserID == "" {
		return fmt.Errorf("user config: missing user id")
	}

	weightings := make(map[string]decimal.Decimal, len(c.AssetWeightings))
	for sym, w := range c.AssetWeightings {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if w.IsNegative() {
			w = decimal.Zero
		}
		weightings[sym] = w
	}
	c.AssetWeightings = weightings

	tags := make([]string, 0, len(c.ExcludedTags))
	seen := make(map[string]bool, len(c.ExcludedTags))
	for _, tag := range c.ExcludedTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	c.ExcludedTags = tags

	if c.TopCount < 1 {
		c.TopCount = DefaultTopCount
	}
	if c.TopCount > MaxTopCount {
		c.TopCount = MaxTopCount
	}
	if c.Smoothing < 1 {
		c.Smoothing = DefaultSmoothingDays
	}
	if !c.NthRoot.IsPositive() {
		c.NthRoot = defaultNthRoot
	}
	if c.DustLimit.IsNegative() {
		c.DustLimit = decimal.Zero
	}
	if !c.RebalanceThreshold.IsPositive() {
		c.RebalanceThreshold = defaultThreshold
	}
	if c.AllocQuote.IsNegative() {
		c.AllocQuote = decimal.Zero
	}
	if c.AllocQuote.GreaterThan(oneHundred) {
		c.AllocQuote = oneHundred
	}
	if c.Takeout.IsNegative() {
		c.Takeout = decimal.Zero
	}
	c.SidelineCurrency = strings.ToUpper(strings.TrimSpace(c.SidelineCurrency))
	if c.IntervalHours < 1 {
		c.IntervalHours = DefaultIntervalHours
	}
	return nil
}

// Weighting returns the weighting for a symbol and whether it was set
// explicitly. Unconfigured symbols weigh 1.
func (c *UserConfig) Weighting(sym string) (decimal.Decimal, bool) {
	if w, ok := c.AssetWeightings[strings.ToUpper(sym)]; ok {
		return w, true
	}
	return decimal.NewFromInt(1), false
}

// TagExcluded reports whether the tag is on the exclusion list.
func (c *UserConfig) TagExcluded(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range c.ExcludedTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (c *UserConfig) Clone() *UserConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.AssetWeightings = make(map[string]decimal.Decimal, len(c.AssetWeightings))
	for k, v := range c.AssetWeightings {
		out.AssetWeightings[k] = v
	}
	out.ExcludedTags = append([]string(nil), c.ExcludedTags...)
	if c.LastRebalance != nil {
		ts := *c.LastRebalance
		out.LastRebalance = &ts
	}
	return &out
}
