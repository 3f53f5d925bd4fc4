package allocation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"capfolio/internal/types"
)

func day(offset int) time.Time {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func caps(values []string, offsets []int) []types.CapPoint {
	points := make([]types.CapPoint, len(values))
	for i, v := range values {
		points[i] = types.CapPoint{Day: day(offsets[i]), MarketCap: decimal.RequireFromString(v)}
	}
	return points
}

func TestSmoothedCapTooFewPoints(t *testing.T) {
	latest := decimal.RequireFromString("123.45")

	got := SmoothedCap(nil, latest, 14)
	assert.True(t, latest.Equal(got))

	single := caps([]string{"999"}, []int{0})
	got = SmoothedCap(single, latest, 14)
	assert.True(t, latest.Equal(got))
}

func TestSmoothedCapThreeDayWindow(t *testing.T) {
	// Newest first: 100, 200, 300 on consecutive days. With n=3 the
	// multiplier is exactly 0.5: seed 300, then 250, then 175.
	history := caps([]string{"100", "200", "300"}, []int{0, -1, -2})

	got := SmoothedCap(history, decimal.RequireFromString("100"), 14)
	assert.True(t, decimal.RequireFromString("175").Equal(got), "got %s", got)
}

func TestSmoothedCapPeriodsCapWindow(t *testing.T) {
	// Four contiguous days but periods=3 keeps only the newest three; the
	// oldest observation must not influence the result.
	history := caps([]string{"100", "200", "300", "100000"}, []int{0, -1, -2, -3})

	got := SmoothedCap(history, decimal.RequireFromString("100"), 3)
	assert.True(t, decimal.RequireFromString("175").Equal(got), "got %s", got)
}

func TestSmoothedCapGapTruncatesWindow(t *testing.T) {
	// A missing calendar day breaks the window. Only the newest point
	// survives, so the raw latest value wins.
	history := caps([]string{"100", "300"}, []int{0, -2})
	latest := decimal.RequireFromString("100")

	got := SmoothedCap(history, latest, 14)
	assert.True(t, latest.Equal(got))
}

func TestSmoothedCapGapAfterRun(t *testing.T) {
	// Two contiguous days, then a gap. The window is the two newest points
	// and the stale tail is ignored.
	history := caps([]string{"100", "300", "700"}, []int{0, -1, -3})

	// n=2, k=2/3: 300 + (100-300)*2/3 = 166.66..
	got := SmoothedCap(history, decimal.RequireFromString("100"), 14)
	expected := decimal.RequireFromString("166.666666666666666666666667")
	assert.True(t, got.Sub(expected).Abs().LessThan(decimal.RequireFromString("0.0001")), "got %s", got)
}
