package gormstore

import (
	"context"
	"encoding/json"
	"fmt"

	"capfolio/internal/store"
)

// AppendEvent persists one automation outcome.
func (s *Store) AppendEvent(ctx context.Context, ev store.EventRecord) error {
	errs, err := json.Marshal(ev.Errors)
	if err != nil {
		return err
	}
	m := eventModel{
		ID:        ev.ID,
		UserID:    ev.UserID,
		Timestamp: ev.Timestamp,
		Errors:    errs,
		Trades:    ev.Trades,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// RecentEvents returns the newest events, most recent first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]store.EventRecord, error) {
	if limit < 1 {
		limit = 50
	}
	var models []eventModel
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing events failed: %w", err)
	}
	out := make([]store.EventRecord, 0, len(models))
	for _, m := range models {
		rec := store.EventRecord{
			ID:        m.ID,
			UserID:    m.UserID,
			Timestamp: m.Timestamp,
			Trades:    m.Trades,
		}
		if len(m.Errors) > 0 {
			if err := json.Unmarshal(m.Errors, &rec.Errors); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
