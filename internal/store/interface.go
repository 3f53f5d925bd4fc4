// Package store defines the persistence contracts the rebalance core
// depends on. The core never sees the storage engine.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"capfolio/internal/config"
	"capfolio/internal/types"
)

// ConfigStore persists per-user rebalance configurations. Exactly one
// configuration exists per user; Save replaces it.
type ConfigStore interface {
	Get(ctx context.Context, userID string) (*config.UserConfig, error)
	Save(ctx context.Context, cfg *config.UserConfig) error
	// ListAutomationEnabled returns the automation-enabled configurations
	// grouped by user id.
	ListAutomationEnabled(ctx context.Context) (map[string][]*config.UserConfig, error)
}

// HistoryStore keeps one market-cap observation per asset per calendar day;
// the allocation smoothing window is built from this series.
type HistoryStore interface {
	RecordCap(symbol string, day time.Time, cap decimal.Decimal) error
	CapHistory(symbol string, limit int) ([]types.CapPoint, error)
}

// EventRecord is one persisted automation outcome.
type EventRecord struct {
	ID        string
	UserID    string
	Timestamp time.Time
	Errors    []string
	Trades    int
}

// EventStore keeps recent automation outcomes for the status surface.
type EventStore interface {
	AppendEvent(ctx context.Context, ev EventRecord) error
	RecentEvents(ctx context.Context, limit int) ([]EventRecord, error)
}
