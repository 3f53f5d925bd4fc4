// Package types holds the portfolio domain model shared across the
// allocation engine, balance merge and trade execution.
package types

import "github.com/shopspring/decimal"

// DefaultMode is the allocation mode used when the caller does not select
// one explicitly. Engines always populate it first.
const DefaultMode = "default"

// AbsoluteMode ignores market-cap magnitude and allocates by weighting only.
const AbsoluteMode = "absolute"

// ModeAllocations maps allocation mode name to a target fraction in [0,1].
// Insertion order is preserved; the first inserted mode is the one used when
// no mode is selected explicitly.
type ModeAllocations struct {
	modes  []string
	values map[string]decimal.Decimal
}

func NewModeAllocations() *ModeAllocations {
	return &ModeAllocations{values: make(map[string]decimal.Decimal)}
}

// Set stores a fraction for a mode, appending the mode on first use.
func (m *ModeAllocations) Set(mode string, v decimal.Decimal) {
	if _, ok := m.values[mode]; !ok {
		m.modes = append(m.modes, mode)
	}
	m.values[mode] = v
}

// Get returns the fraction for a mode and whether the mode exists.
func (m *ModeAllocations) Get(mode string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	v, ok := m.values[mode]
	return v, ok
}

// Fraction returns the fraction for mode, falling back to the first mode
// when the requested one is absent, and zero when empty.
func (m *ModeAllocations) Fraction(mode string) decimal.Decimal {
	if m == nil || len(m.modes) == 0 {
		return decimal.Zero
	}
	if v, ok := m.values[mode]; ok {
		return v
	}
	return m.values[m.modes[0]]
}

// Modes returns mode names in insertion order.
func (m *ModeAllocations) Modes() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.modes))
	copy(out, m.modes)
	return out
}

// Clone returns an independent copy.
func (m *ModeAllocations) Clone() *ModeAllocations {
	if m == nil {
		return nil
	}
	c := NewModeAllocations()
	for _, mode := range m.modes {
		c.Set(mode, m.values[mode])
	}
	return c
}

// Asset is one tradable unit within a Balance. Amounts are carried as exact
// decimals; AmountQuote is always Amount*Price at snapshot time.
type Asset struct {
	Symbol            string
	Price             decimal.Decimal
	Amount            decimal.Decimal
	Available         decimal.Decimal // spendable part of Amount (not locked in orders)
	AmountQuote       decimal.Decimal
	AllocationCurrent decimal.Decimal  // fraction of current portfolio value
	Allocation        *ModeAllocations // target fractions per mode; nil on live-only assets

	// Filled in during one rebalance cycle, discarded afterwards.
	SellOrder        *Order
	BuyOrder         *Order
	AmountQuoteToBuy decimal.Decimal
}

// Clone returns a deep copy so phases can hand over state without aliasing.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Allocation = a.Allocation.Clone()
	c.SellOrder = a.SellOrder.Clone()
	c.BuyOrder = a.BuyOrder.Clone()
	return &c
}

// Balance is a snapshot of a portfolio. If the quote-currency asset is
// present it is Assets[0]; a distinct sideline asset, if present, is
// Assets[1].
type Balance struct {
	Assets           []*Asset
	AmountQuoteTotal decimal.Decimal
}

// Find returns the asset with the given symbol, or nil.
func (b *Balance) Find(symbol string) *Asset {
	if b == nil {
		return nil
	}
	for _, a := range b.Assets {
		if a.Symbol == symbol {
			return a
		}
	}
	return nil
}

// Clone returns a deep copy of the balance.
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	c := &Balance{AmountQuoteTotal: b.AmountQuoteTotal}
	c.Assets = make([]*Asset, 0, len(b.Assets))
	for _, a := range b.Assets {
		c.Assets = append(c.Assets, a.Clone())
	}
	return c
}
