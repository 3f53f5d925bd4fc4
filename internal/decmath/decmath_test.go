package decmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicOps(t *testing.T) {
	assert.Equal(t, "0.3", Add("0.1", "0.2"))
	assert.Equal(t, "-0.1", Sub("0.2", "0.3"))
	assert.Equal(t, "0.02", Mul("0.1", "0.2"))
	assert.Equal(t, "0.5", Div("1", "2"))
}

func TestDivByZero(t *testing.T) {
	assert.Equal(t, "0", Div("42", "0"))
	assert.Equal(t, "0", Allocation("42", "0"))
	assert.Equal(t, "0", Percentage("42", "0", 2))
	assert.Equal(t, "0", GainPercentage("42", "0", 2))
}

func TestCanonicalOutput(t *testing.T) {
	assert.Equal(t, "1.5", Add("1.50", "0.00"))
	assert.Equal(t, "0", Sub("0.10", "0.1"))
	assert.Equal(t, "3", Mul("1.5", "2"))
}

func TestFloorCeil(t *testing.T) {
	assert.Equal(t, "1.23", FloorTo("1.2399", 2))
	assert.Equal(t, "1.24", CeilTo("1.2301", 2))
	assert.Equal(t, "-1.24", FloorTo("-1.2301", 2))
	assert.Equal(t, "-1.23", CeilTo("-1.2399", 2))
}

func TestMinMax(t *testing.T) {
	// Numeric comparison, not lexical: "9" < "10".
	assert.Equal(t, "9", MinOf("10", "9", "11"))
	assert.Equal(t, "11", MaxOf("10", "9", "11"))
	assert.Equal(t, "0", MinOf())
	assert.Equal(t, "0", MaxOf())
}

func TestAllocationRoundTrip(t *testing.T) {
	cases := []struct{ portion, total string }{
		{"25", "100"},
		{"1", "3"},
		{"0.125", "0.5"},
	}
	for _, tc := range cases {
		frac := Allocation(tc.portion, tc.total)
		back := Mul(frac, tc.total)
		diff := Sub(back, tc.portion)
		assert.Equal(t, "0", FloorTo(MaxOf(diff, Mul(diff, "-1")), 18),
			"allocation(%s,%s)*total should round-trip", tc.portion, tc.total)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, "25", Percentage("25", "100", 2))
	assert.Equal(t, "33.33", Percentage("1", "3", 2))
}

func TestGainPercentage(t *testing.T) {
	assert.Equal(t, "10", GainPercentage("110", "100", 2))
	assert.Equal(t, "-50", GainPercentage("50", "100", 2))
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, "2", StdDev([]string{"2", "4", "4", "4", "5", "5", "7", "9"}))
	assert.Equal(t, "0", StdDev([]string{"3", "3", "3"}))
	assert.Equal(t, "0", StdDev(nil))
}
