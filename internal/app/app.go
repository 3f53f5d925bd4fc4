// Package app assembles the process: store, exchange, ranking provider,
// automation and the status HTTP server, built from one Config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"capfolio/internal/config"
	"capfolio/internal/gateway/binance"
	"capfolio/internal/gateway/exchange"
	"capfolio/internal/gateway/notifier"
	"capfolio/internal/gateway/ranking"
	"capfolio/internal/logger"
	"capfolio/internal/market"
	"capfolio/internal/report"
	"capfolio/internal/scheduler"
	"capfolio/internal/store/gormstore"
	"capfolio/internal/trade"
	statushttp "capfolio/internal/transport/http"
)

type App struct {
	cfg     *config.Config
	cfgPath string
	store   *gormstore.Store
	auto    *scheduler.Automation
	runner  *scheduler.Runner
	httpSrv *statushttp.Server
}

// staticFactory hands every user the same exchange client. Per-user API
// credentials would slot in here without touching the scheduler.
type staticFactory struct {
	ex exchange.Exchange
}

func (f staticFactory) ForUser(ctx context.Context, userID string) (exchange.Exchange, error) {
	return f.ex, nil
}

// New builds the application from a validated configuration. Nothing is
// started; Run does that.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	st, err := gormstore.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	ex := binance.New(binance.Options{
		APIKey:        cfg.Exchange.APIKey,
		APISecret:     cfg.Exchange.APISecret,
		QuoteSymbol:   cfg.Exchange.QuoteSymbol,
		MinOrderQuote: decimal.NewFromFloat(cfg.Exchange.MinOrderQuote),
		TakerFee:      decimal.NewFromFloat(cfg.Exchange.TakerFee),
		MakerFee:      decimal.NewFromFloat(cfg.Exchange.MakerFee),
		Testnet:       cfg.Exchange.Testnet,
	})

	provider := ranking.NewListingsClient(cfg.Ranking.Endpoint, cfg.Ranking.APIKey, cfg.Ranking.Currency, cfg.Ranking.Limit, st)
	sentiment := market.NewFearGreedService()

	var sink scheduler.Sink
	if cfg.Notify.Telegram.Enabled {
		sink = notifier.NewEventSink(notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID))
		logger.Infof("telegram notifications enabled for chat %s", cfg.Notify.Telegram.ChatID)
	}

	var reporter scheduler.Reporter
	if cfg.Report.Dir != "" {
		gen, err := report.NewGenerator(cfg.Report.Dir)
		if err != nil {
			return nil, fmt.Errorf("preparing report dir: %w", err)
		}
		reporter = gen
	}

	auto := scheduler.New(st, st, staticFactory{ex: ex}, provider, sentiment, sink, reporter, scheduler.Options{
		UserConcurrency: cfg.Scheduler.UserConcurrency,
		BatchTimeout:    time.Duration(cfg.Scheduler.BatchTimeoutSec) * time.Second,
		Trade: trade.Options{
			Concurrency:  cfg.Scheduler.OrderConcurrency,
			BatchTimeout: time.Duration(cfg.Scheduler.BatchTimeoutSec) * time.Second,
		},
	})

	runner, err := scheduler.NewRunner(cfg.Scheduler.Cron, auto)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Scheduler.Cron, err)
	}

	var profiles *config.ProfileRegistry
	if cfg.App.Profiles != "" {
		profiles, err = config.NewProfileRegistry(cfg.App.Profiles)
		if err != nil {
			return nil, fmt.Errorf("loading profiles: %w", err)
		}
	}

	httpSrv, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Configs:  st,
		Events:   st,
		Auto:     auto,
		Profiles: profiles,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		store:   st,
		auto:    auto,
		runner:  runner,
		httpSrv: httpSrv,
	}, nil
}

// Automation exposes the automation engine for test and replay harnesses.
func (a *App) Automation() *scheduler.Automation {
	return a.auto
}

// Run starts the cron runner and the status HTTP server and blocks until the
// context is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	// Log level follows the config file without a restart.
	config.Watch(a.cfgPath, func(next *config.Config) {
		logger.SetLevel(next.App.LogLevel)
		logger.Infof("config reloaded, log level now %s", next.App.LogLevel)
	})

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("status http server error: %w", err)
		}
		return nil
	})

	a.runner.Start()
	group.Go(func() error {
		<-ctx.Done()
		a.runner.Stop()
		return nil
	})

	logger.Infof("capfolio up: env=%s, schedule=%q, http=%s", a.cfg.App.Env, a.cfg.Scheduler.Cron, a.cfg.App.HTTPAddr)
	return group.Wait()
}
