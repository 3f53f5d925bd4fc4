// Package gormstore implements the store contracts on gorm + SQLite.
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"capfolio/internal/config"
	"capfolio/internal/types"
)

type Store struct {
	db *gorm.DB
}

// New opens (or creates) the SQLite database at path and migrates the
// schema.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store failed: %w", err)
	}
	if err := db.AutoMigrate(&userConfigModel{}, &capHistoryModel{}, &eventModel{}); err != nil {
		return nil, fmt.Errorf("migrating store failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Get loads one user's configuration.
func (s *Store) Get(ctx context.Context, userID string) (*config.UserConfig, error) {
	var m userConfigModel
	err := s.db.WithContext(ctx).First(&m, "user_id = ?", strings.TrimSpace(userID)).Error
	if err != nil {
		return nil, fmt.Errorf("loading config for %s failed: %w", userID, err)
	}
	return m.toConfig()
}

// Save upserts one user's configuration after normalizing it.
func (s *Store) Save(ctx context.Context, cfg *config.UserConfig) error {
	if err := cfg.Normalize(); err != nil {
		return err
	}
	m, err := fromConfig(cfg)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(m).Error
}

// ListAutomationEnabled returns automation-enabled configurations grouped by
// user id.
func (s *Store) ListAutomationEnabled(ctx context.Context) (map[string][]*config.UserConfig, error) {
	var models []userConfigModel
	err := s.db.WithContext(ctx).
		Where("automation_enabled = ?", true).
		Order("user_id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing automation configs failed: %w", err)
	}
	out := make(map[string][]*config.UserConfig, len(models))
	for _, m := range models {
		cfg, err := m.toConfig()
		if err != nil {
			return nil, err
		}
		out[cfg.UserID] = append(out[cfg.UserID], cfg)
	}
	return out, nil
}

// RecordCap stores one observation per asset per calendar day; repeated
// observations on the same day overwrite.
func (s *Store) RecordCap(symbol string, day time.Time, cap decimal.Decimal) error {
	m := capHistoryModel{
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		Day:       day.UTC().Truncate(24 * time.Hour),
		MarketCap: cap.String(),
	}
	return s.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "day"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// CapHistory returns the recorded series for symbol, newest first.
func (s *Store) CapHistory(symbol string, limit int) ([]types.CapPoint, error) {
	var models []capHistoryModel
	err := s.db.
		Where("symbol = ?", strings.ToUpper(strings.TrimSpace(symbol))).
		Order("day DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading cap history for %s failed: %w", symbol, err)
	}
	points := make([]types.CapPoint, 0, len(models))
	for _, m := range models {
		cap, err := decimal.NewFromString(m.MarketCap)
		if err != nil {
			continue
		}
		points = append(points, types.CapPoint{Day: m.Day, MarketCap: cap})
	}
	return points, nil
}
