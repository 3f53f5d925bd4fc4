package config

// Config is the application-level configuration. Per-user rebalance
// parameters live in UserConfig and are persisted through the store; this
// struct only carries process wiring.
type Config struct {
	App       AppConfig       `toml:"app"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Ranking   RankingConfig   `toml:"ranking"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Report    ReportConfig    `toml:"report"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
	Profiles string `toml:"profiles_path"`
}

type ExchangeConfig struct {
	Name          string  `toml:"name"`
	APIKey        string  `toml:"api_key"`
	APISecret     string  `toml:"api_secret"`
	QuoteSymbol   string  `toml:"quote_symbol"`
	MinOrderQuote float64 `toml:"min_order_quote"`
	TakerFee      float64 `toml:"taker_fee"`
	MakerFee      float64 `toml:"maker_fee"`
	Testnet       bool    `toml:"testnet"`
}

type RankingConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Limit    int    `toml:"limit"`
	Currency string `toml:"currency"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type SchedulerConfig struct {
	Cron             string `toml:"cron"`
	UserConcurrency  int    `toml:"user_concurrency"`
	OrderConcurrency int    `toml:"order_concurrency"`
	BatchTimeoutSec  int    `toml:"batch_timeout_seconds"`
}

type ReportConfig struct {
	Dir string `toml:"dir"`
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8980"
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "binance"
	}
	if c.Exchange.QuoteSymbol == "" {
		c.Exchange.QuoteSymbol = "USDT"
	}
	if c.Exchange.MinOrderQuote <= 0 {
		c.Exchange.MinOrderQuote = 10
	}
	if c.Exchange.TakerFee <= 0 {
		c.Exchange.TakerFee = 0.001
	}
	if c.Exchange.MakerFee <= 0 {
		c.Exchange.MakerFee = 0.001
	}
	if c.Ranking.Limit <= 0 {
		c.Ranking.Limit = 200
	}
	if c.Ranking.Currency == "" {
		c.Ranking.Currency = "USD"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/capfolio.db"
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "@every 15m"
	}
	if c.Scheduler.UserConcurrency <= 0 {
		c.Scheduler.UserConcurrency = 8
	}
	if c.Scheduler.OrderConcurrency <= 0 {
		c.Scheduler.OrderConcurrency = 20
	}
	if c.Scheduler.BatchTimeoutSec <= 0 {
		c.Scheduler.BatchTimeoutSec = 299
	}
}
