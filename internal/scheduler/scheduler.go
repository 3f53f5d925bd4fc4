// Package scheduler evaluates every automation-enabled user configuration
// and triggers a rebalance only when the configured interval has elapsed and
// the portfolio has drifted past the user's threshold.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"capfolio/internal/allocation"
	"capfolio/internal/config"
	"capfolio/internal/decmath"
	"capfolio/internal/gateway/exchange"
	"capfolio/internal/gateway/ranking"
	"capfolio/internal/logger"
	"capfolio/internal/portfolio"
	"capfolio/internal/store"
	"capfolio/internal/trade"
	"capfolio/internal/types"
)

// driftBreakerPct aborts a cycle whose summed absolute allocation drift
// exceeds this many percentage points. Drift that large means broken input
// data, not a portfolio that needs two thirds of its value turned over.
var driftBreakerPct = decimal.NewFromFloat(66.67)

// Event is one completed or failed automation attempt for one user.
type Event struct {
	ID        string
	UserID    string
	Timestamp time.Time
	Errors    []string
	Trades    int
	Triggered bool
}

// Sink receives one Event per automation attempt.
type Sink interface {
	Publish(ev Event)
}

// ExchangeFactory yields the exchange bound to one user's credentials.
type ExchangeFactory interface {
	ForUser(ctx context.Context, userID string) (exchange.Exchange, error)
}

// Refresher is implemented by data services that want a poke before a cycle.
type Refresher interface {
	RefreshIfStale(ctx context.Context)
}

// Reporter renders a post-rebalance allocation report. Optional.
type Reporter interface {
	Generate(userID string, bal *types.Balance, mode string) error
}

type Options struct {
	UserConcurrency int
	BatchTimeout    time.Duration
	Trade           trade.Options
}

type Automation struct {
	configs   store.ConfigStore
	events    store.EventStore
	factory   ExchangeFactory
	provider  ranking.Provider
	sentiment allocation.SentimentIndex
	sink      Sink
	reporter  Reporter

	userConcurrency int
	batchTimeout    time.Duration
	tradeOpts       trade.Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(configs store.ConfigStore, events store.EventStore, factory ExchangeFactory, provider ranking.Provider, sentiment allocation.SentimentIndex, sink Sink, reporter Reporter, opts Options) *Automation {
	a := &Automation{
		configs:         configs,
		events:          events,
		factory:         factory,
		provider:        provider,
		sentiment:       sentiment,
		sink:            sink,
		reporter:        reporter,
		userConcurrency: opts.UserConcurrency,
		batchTimeout:    opts.BatchTimeout,
		tradeOpts:       opts.Trade,
		locks:           make(map[string]*sync.Mutex),
	}
	if a.userConcurrency < 1 {
		a.userConcurrency = 8
	}
	if a.batchTimeout <= 0 {
		a.batchTimeout = trade.DefaultBatchTimeout
	}
	return a
}

// userLock serializes all rebalance activity per account: an automation run
// and a manual trigger for the same user can never race on order placement.
func (a *Automation) userLock(userID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[userID] = l
	}
	return l
}

// Run evaluates every automation-enabled configuration once. One user's
// failure never aborts the others; every attempt produces exactly one Event.
func (a *Automation) Run(ctx context.Context) []Event {
	if r, ok := a.sentiment.(Refresher); ok && r != nil {
		r.RefreshIfStale(ctx)
	}
	byUser, err := a.configs.ListAutomationEnabled(ctx)
	if err != nil {
		logger.Errorf("listing automation configs failed: %v", err)
		return nil
	}
	if len(byUser) == 0 {
		return nil
	}

	// One ranking fetch serves the whole cycle.
	provider := ranking.NewCached(a.provider)

	batchCtx, cancel := context.WithTimeout(ctx, a.batchTimeout)
	defer cancel()
	g := new(errgroup.Group)
	g.SetLimit(a.userConcurrency)

	var evMu sync.Mutex
	var events []Event
	for userID, cfgs := range byUser {
		userID, cfgs := userID, cfgs
		g.Go(func() error {
			for _, ev := range a.runUser(batchCtx, provider, userID, cfgs) {
				a.publish(ctx, ev)
				evMu.Lock()
				events = append(events, ev)
				evMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return events
}

func (a *Automation) runUser(ctx context.Context, provider ranking.Provider, userID string, cfgs []*config.UserConfig) []Event {
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ex, err := a.factory.ForUser(ctx, userID)
	if err != nil {
		return []Event{newEvent(userID, err)}
	}
	// One balance fetch per user; if it fails there is nothing to evaluate.
	live, err := ex.GetBalance(ctx)
	if err != nil {
		return []Event{newEvent(userID, err)}
	}

	engine := allocation.NewEngine(provider, a.sentiment)
	var events []Event
	for _, cfg := range cfgs {
		if !cfg.AutomationEnabled {
			continue
		}
		if !intervalElapsed(cfg, time.Now()) {
			logger.Debugf("user %s: rebalance interval not elapsed, skipping", cfg.UserID)
			continue
		}
		events = append(events, a.evaluate(ctx, engine, ex, live, cfg))
	}
	return events
}

func (a *Automation) evaluate(ctx context.Context, engine *allocation.Engine, ex exchange.Exchange, live *types.Balance, cfg *config.UserConfig) Event {
	target, err := engine.TargetBalance(ctx, ex, cfg)
	if err != nil {
		return newEvent(cfg.UserID, err)
	}
	merged := portfolio.Merge(target, live, cfg.Takeout)

	open, drift := a.gate(merged, cfg, ex.Constants())
	if drift.GreaterThan(driftBreakerPct) {
		logger.Warnf("user %s: drift %s%% exceeds circuit breaker, skipping", cfg.UserID, drift.StringFixed(2))
		ev := newEvent(cfg.UserID, nil)
		ev.Errors = append(ev.Errors, "drift circuit breaker tripped at "+drift.StringFixed(2)+"%")
		return ev
	}
	if !open {
		logger.Debugf("user %s: drift %s%% below threshold, nothing to do", cfg.UserID, drift.StringFixed(2))
		return newEvent(cfg.UserID, nil)
	}

	orchestrator := trade.NewOrchestrator(ex, a.tradeOpts)
	outcome, err := orchestrator.Rebalance(ctx, merged, types.DefaultMode, false)
	if err != nil {
		ev := newEvent(cfg.UserID, err)
		if outcome != nil {
			ev.Trades = outcome.Trades()
		}
		return ev
	}

	ev := newEvent(cfg.UserID, nil)
	ev.Triggered = true
	ev.Trades = outcome.Trades()
	for _, oerr := range outcome.Errors {
		ev.Errors = append(ev.Errors, oerr.Error())
	}
	if ev.Trades > 0 {
		now := time.Now()
		updated := cfg.Clone()
		updated.LastRebalance = &now
		if err := a.configs.Save(ctx, updated); err != nil {
			ev.Errors = append(ev.Errors, "persisting last rebalance failed: "+err.Error())
		}
		if a.reporter != nil {
			if err := a.reporter.Generate(cfg.UserID, merged, types.DefaultMode); err != nil {
				logger.Warnf("allocation report for %s failed: %v", cfg.UserID, err)
			}
		}
	}
	return ev
}

// gate decides whether trading is justified. It opens when at least one
// asset's quote-value drift already clears the venue minimum (and the user's
// dust limit) AND that asset either drifted past the threshold in percentage
// points of portfolio value or should be fully exited but is still held. The
// second return is the summed absolute drift for the circuit breaker.
func (a *Automation) gate(merged *types.Balance, cfg *config.UserConfig, cons exchange.Constants) (bool, decimal.Decimal) {
	total := merged.AmountQuoteTotal
	minQuote, _ := decimal.NewFromString(decmath.MaxOf(cons.MinOrderQuote.String(), cfg.DustLimit.String()))

	open := false
	driftSum := decimal.Zero
	for _, asset := range merged.Assets {
		// Holdings absent from the target carry a nil allocation and count
		// as target zero, so a position dropped from the ranking can still
		// trigger its own exit.
		targetFrac := asset.Allocation.Fraction(types.DefaultMode)
		quoteDiff := total.Mul(targetFrac).Sub(asset.AmountQuote).Abs()
		pctDiff, _ := decimal.NewFromString(decmath.Percentage(quoteDiff.String(), total.String(), 8))
		driftSum = driftSum.Add(pctDiff)

		if quoteDiff.LessThan(minQuote) {
			continue
		}
		fullExit := targetFrac.IsZero() && asset.AllocationCurrent.IsPositive()
		if pctDiff.GreaterThan(cfg.RebalanceThreshold) || fullExit {
			open = true
		}
	}
	return open, driftSum
}

// RebalanceUser performs one manually triggered rebalance for a user,
// bypassing the interval and threshold gates but holding the same per-user
// lock as the automation pass.
func (a *Automation) RebalanceUser(ctx context.Context, userID string, simulate bool) (*trade.Outcome, error) {
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := a.configs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ex, err := a.factory.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	live, err := ex.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	engine := allocation.NewEngine(ranking.NewCached(a.provider), a.sentiment)
	target, err := engine.TargetBalance(ctx, ex, cfg)
	if err != nil {
		return nil, err
	}
	merged := portfolio.Merge(target, live, cfg.Takeout)

	orchestrator := trade.NewOrchestrator(ex, a.tradeOpts)
	outcome, err := orchestrator.Rebalance(ctx, merged, types.DefaultMode, simulate)
	if err != nil {
		return outcome, err
	}
	if !simulate && outcome.Trades() > 0 {
		now := time.Now()
		updated := cfg.Clone()
		updated.LastRebalance = &now
		if err := a.configs.Save(ctx, updated); err != nil {
			logger.Warnf("persisting last rebalance for %s failed: %v", userID, err)
		}
	}
	return outcome, nil
}

func (a *Automation) publish(ctx context.Context, ev Event) {
	if a.sink != nil {
		a.sink.Publish(ev)
	}
	if a.events != nil {
		rec := store.EventRecord{
			ID:        ev.ID,
			UserID:    ev.UserID,
			Timestamp: ev.Timestamp,
			Errors:    ev.Errors,
			Trades:    ev.Trades,
		}
		if err := a.events.AppendEvent(ctx, rec); err != nil {
			logger.Warnf("persisting event for %s failed: %v", ev.UserID, err)
		}
	}
}

// intervalElapsed applies the minimum-gap gate: elapsed time is rounded down
// to whole hours before comparing against the configured interval.
func intervalElapsed(cfg *config.UserConfig, now time.Time) bool {
	if cfg.LastRebalance == nil {
		return true
	}
	elapsedHours := int(now.Sub(*cfg.LastRebalance).Hours())
	return elapsedHours >= cfg.IntervalHours
}

func newEvent(userID string, err error) Event {
	ev := Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Errors = append(ev.Errors, err.Error())
	}
	return ev
}
