package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Ranking.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Name)) {
	case "binance":
	default:
		return fmt.Errorf("exchange.name %q is not supported", e.Name)
	}
	if strings.TrimSpace(e.QuoteSymbol) == "" {
		return fmt.Errorf("exchange.quote_symbol cannot be empty")
	}
	if e.MinOrderQuote <= 0 {
		return fmt.Errorf("exchange.min_order_quote must be > 0")
	}
	return nil
}

func (r *RankingConfig) validate() error {
	if strings.TrimSpace(r.Endpoint) == "" {
		return fmt.Errorf("ranking.endpoint cannot be empty")
	}
	if r.Limit < 1 || r.Limit > 5000 {
		return fmt.Errorf("ranking.limit must be in [1,5000]")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" {
		return fmt.Errorf("notify.telegram.bot_token required when enabled")
	}
	if strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram.chat_id required when enabled")
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if s.UserConcurrency < 1 {
		return fmt.Errorf("scheduler.user_concurrency must be >= 1")
	}
	if s.OrderConcurrency < 1 {
		return fmt.Errorf("scheduler.order_concurrency must be >= 1")
	}
	return nil
}
