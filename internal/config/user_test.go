package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClampsRanges(t *testing.T) {
	cfg := &UserConfig{
		UserID:     " alice ",
		TopCount:   500,
		AllocQuote: decimal.NewFromInt(150),
		Takeout:    decimal.NewFromInt(-5),
		AssetWeightings: map[string]decimal.Decimal{
			"btc": decimal.NewFromInt(2),
			"doge": decimal.NewFromInt(-1),
		},
		ExcludedTags: []string{"Stablecoin", "stablecoin", " "},
	}
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, MaxTopCount, cfg.TopCount)
	assert.True(t, cfg.AllocQuote.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.Takeout.IsZero())
	// Negative weightings clamp to zero (= exclusion), keys upper-cased.
	w, explicit := cfg.Weighting("DOGE")
	assert.True(t, explicit)
	assert.True(t, w.IsZero())
	assert.Equal(t, []string{"stablecoin"}, cfg.ExcludedTags)
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &UserConfig{UserID: "bob"}
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, DefaultTopCount, cfg.TopCount)
	assert.Equal(t, DefaultSmoothingDays, cfg.Smoothing)
	assert.Equal(t, DefaultIntervalHours, cfg.IntervalHours)
	assert.True(t, cfg.NthRoot.IsPositive())
	assert.True(t, cfg.RebalanceThreshold.IsPositive())
}

func TestNormalizeRequiresUserID(t *testing.T) {
	cfg := &UserConfig{}
	assert.Error(t, cfg.Normalize())
}

func TestWeightingDefaultsToOne(t *testing.T) {
	cfg := &UserConfig{UserID: "carol"}
	require.NoError(t, cfg.Normalize())

	w, explicit := cfg.Weighting("ETH")
	assert.False(t, explicit)
	assert.True(t, w.Equal(decimal.NewFromInt(1)))
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := &UserConfig{
		UserID:          "dave",
		AssetWeightings: map[string]decimal.Decimal{"BTC": decimal.NewFromInt(2)},
	}
	require.NoError(t, cfg.Normalize())

	clone := cfg.Clone()
	clone.AssetWeightings["BTC"] = decimal.Zero
	w, _ := cfg.Weighting("BTC")
	assert.True(t, w.Equal(decimal.NewFromInt(2)))
}
