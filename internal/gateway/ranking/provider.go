// Package ranking supplies market-cap ranked assets with enough locally
// recorded history for allocation smoothing.
package ranking

import (
	"context"
	"fmt"
	"sync"

	"capfolio/internal/types"
)

// Provider returns assets sorted by market cap, largest first.
type Provider interface {
	ListLatest(ctx context.Context) ([]types.RankedAsset, error)
}

// ProviderError wraps a ranking data failure so callers can tell a data
// problem from an execution problem.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ranking provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Cached memoizes one ListLatest result. The scheduler creates a fresh
// instance per run so every user in the same cycle sees the same ranking
// without refetching, and nothing leaks across cycles.
type Cached struct {
	inner Provider

	mu     sync.Mutex
	done   bool
	assets []types.RankedAsset
	err    error
}

func NewCached(inner Provider) *Cached {
	return &Cached{inner: inner}
}

func (c *Cached) ListLatest(ctx context.Context) ([]types.RankedAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.assets, c.err = c.inner.ListLatest(ctx)
		c.done = true
	}
	if c.err != nil {
		return nil, c.err
	}
	// Hand out copies: callers attach per-user smoothing results.
	out := make([]types.RankedAsset, len(c.assets))
	copy(out, c.assets)
	return out, nil
}
