package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"capfolio/internal/config"
)

// Decimal columns are stored as strings so values round-trip exactly.
type userConfigModel struct {
	UserID                string            `gorm:"column:user_id;primaryKey;size:64"`
	AssetWeightings       datatypes.JSONMap `gorm:"column:asset_weightings"`
	ExcludedTags          datatypes.JSON    `gorm:"column:excluded_tags"`
	TopCount              int               `gorm:"column:top_count"`
	Smoothing             int               `gorm:"column:smoothing"`
	NthRoot               string            `gorm:"column:nth_root"`
	DustLimit             string            `gorm:"column:dust_limit"`
	RebalanceThreshold    string            `gorm:"column:rebalance_threshold"`
	AllocQuote            string            `gorm:"column:alloc_quote"`
	AllocQuoteFagMultiply bool              `gorm:"column:alloc_quote_fag_multiply"`
	Takeout               string            `gorm:"column:takeout"`
	SidelineCurrency      string            `gorm:"column:sideline_currency;size:32"`
	IntervalHours         int               `gorm:"column:interval_hours"`
	AutomationEnabled     bool              `gorm:"column:automation_enabled;index"`
	LastRebalance         *time.Time        `gorm:"column:last_rebalance"`
	UpdatedAt             time.Time         `gorm:"column:updated_at"`
}

func (userConfigModel) TableName() string { return "user_configs" }

type capHistoryModel struct {
	Symbol    string    `gorm:"column:symbol;primaryKey;size:32"`
	Day       time.Time `gorm:"column:day;primaryKey"`
	MarketCap string    `gorm:"column:market_cap"`
}

func (capHistoryModel) TableName() string { return "cap_history" }

type eventModel struct {
	ID        string         `gorm:"column:id;primaryKey;size:36"`
	UserID    string         `gorm:"column:user_id;size:64;index"`
	Timestamp time.Time      `gorm:"column:timestamp;index"`
	Errors    datatypes.JSON `gorm:"column:errors"`
	Trades    int            `gorm:"column:trades"`
}

func (eventModel) TableName() string { return "automation_events" }

func fromConfig(cfg *config.UserConfig) (*userConfigModel, error) {
	weightings := make(datatypes.JSONMap, len(cfg.AssetWeightings))
	for sym, w := range cfg.AssetWeightings {
		weightings[sym] = w.String()
	}
	tags, err := json.Marshal(cfg.ExcludedTags)
	if err != nil {
		return nil, err
	}
	return &userConfigModel{
		UserID:                cfg.UserID,
		AssetWeightings:       weightings,
		ExcludedTags:          tags,
		TopCount:              cfg.TopCount,
		Smoothing:             cfg.Smoothing,
		NthRoot:               cfg.NthRoot.String(),
		DustLimit:             cfg.DustLimit.String(),
		RebalanceThreshold:    cfg.RebalanceThreshold.String(),
		AllocQuote:            cfg.AllocQuote.String(),
		AllocQuoteFagMultiply: cfg.AllocQuoteFagMultiply,
		Takeout:               cfg.Takeout.String(),
		SidelineCurrency:      cfg.SidelineCurrency,
		IntervalHours:         cfg.IntervalHours,
		AutomationEnabled:     cfg.AutomationEnabled,
		LastRebalance:         cfg.LastRebalance,
		UpdatedAt:             time.Now(),
	}, nil
}

func (m *userConfigModel) toConfig() (*config.UserConfig, error) {
	cfg := &config.UserConfig{
		UserID:                m.UserID,
		AssetWeightings:       make(map[string]decimal.Decimal, len(m.AssetWeightings)),
		TopCount:              m.TopCount,
		Smoothing:             m.Smoothing,
		AllocQuoteFagMultiply: m.AllocQuoteFagMultiply,
		SidelineCurrency:      m.SidelineCurrency,
		IntervalHours:         m.IntervalHours,
		AutomationEnabled:     m.AutomationEnabled,
		LastRebalance:         m.LastRebalance,
	}
	for sym, raw := range m.AssetWeightings {
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("weighting for %s is not a string", sym)
		}
		w, err := decimal.NewFromString(str)
		if err != nil {
			return nil, fmt.Errorf("weighting for %s invalid: %w", sym, err)
		}
		cfg.AssetWeightings[sym] = w
	}
	if len(m.ExcludedTags) > 0 {
		if err := json.Unmarshal(m.ExcludedTags, &cfg.ExcludedTags); err != nil {
			return nil, fmt.Errorf("excluded tags invalid: %w", err)
		}
	}
	var err error
	if cfg.NthRoot, err = parseDecimal(m.NthRoot); err != nil {
		return nil, err
	}
	if cfg.DustLimit, err = parseDecimal(m.DustLimit); err != nil {
		return nil, err
	}
	if cfg.RebalanceThreshold, err = parseDecimal(m.RebalanceThreshold); err != nil {
		return nil, err
	}
	if cfg.AllocQuote, err = parseDecimal(m.AllocQuote); err != nil {
		return nil, err
	}
	if cfg.Takeout, err = parseDecimal(m.Takeout); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
