package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"card-arb-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs scrape-run cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// RetryConfig tunes the shared exponential backoff policy.
type RetryConfig struct {
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

// MetadataConfig covers the card metadata lookup service.
type MetadataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSec     float64       `mapstructure:"rate_per_sec"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

// ScrapeConfig covers the marketplace listing source.
type ScrapeConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	Token          string            `mapstructure:"token"`
	MaxItems       int               `mapstructure:"max_items"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
	Marketplaces   map[string]string `mapstructure:"marketplaces"`
	Retry          RetryConfig       `mapstructure:"retry"`
}

// IngestConfig tunes the ingestion worker pool and extra targets beyond the
// built-in priority watch list.
type IngestConfig struct {
	Workers int      `mapstructure:"workers"`
	Targets []string `mapstructure:"targets"`
}

// ArbitrageConfig holds the fee model and minimum-profit policy.
type ArbitrageConfig struct {
	FeeBasis       string             `mapstructure:"fee_basis"`
	DefaultFeePct  float64            `mapstructure:"default_fee_pct"`
	Fees           map[string]float64 `mapstructure:"fees"`
	FixedFees      map[string]float64 `mapstructure:"fixed_fees"`
	MinNetProfit   float64            `mapstructure:"min_net_profit"`
	MinProfitPct   float64            `mapstructure:"min_profit_pct"`
	ProfitScale    float64            `mapstructure:"profit_scale"`
	OpportunityTTL time.Duration      `mapstructure:"opportunity_ttl"`
	RecencyWindow  time.Duration      `mapstructure:"recency_window"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	MinScore float64        `mapstructure:"min_score"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CARDWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cardwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "6h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x63617264))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("metadata.base_url", "https://api.pokemontcg.io/v2")
	v.SetDefault("metadata.request_timeout", "15s")
	v.SetDefault("metadata.rate_per_sec", 2.0)
	v.SetDefault("metadata.retry.attempts", 3)
	v.SetDefault("metadata.retry.base_delay", "1s")

	v.SetDefault("scrape.base_url", "https://api.apify.com/v2")
	v.SetDefault("scrape.max_items", 100)
	v.SetDefault("scrape.request_timeout", "120s")
	v.SetDefault("scrape.user_agent", "cardwatcher/1.0")
	v.SetDefault("scrape.retry.attempts", 3)
	v.SetDefault("scrape.retry.base_delay", "1s")

	v.SetDefault("ingest.workers", 4)

	v.SetDefault("arbitrage.fee_basis", "sell")
	v.SetDefault("arbitrage.default_fee_pct", 0.13)
	v.SetDefault("arbitrage.min_net_profit", 5.0)
	v.SetDefault("arbitrage.min_profit_pct", 0.0)
	v.SetDefault("arbitrage.profit_scale", 50.0)
	v.SetDefault("arbitrage.opportunity_ttl", "24h")
	v.SetDefault("arbitrage.recency_window", "48h")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_score", 7.0)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Configuration errors are the one failure class that stops the process
// instead of degrading.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Arbitrage.OpportunityTTL <= 0 {
		return fmt.Errorf("arbitrage.opportunity_ttl must be greater than zero")
	}
	if c.Arbitrage.RecencyWindow <= 0 {
		return fmt.Errorf("arbitrage.recency_window must be greater than zero")
	}
	if basis := c.Arbitrage.FeeBasis; basis != "sell" && basis != "buy" {
		return fmt.Errorf("arbitrage.fee_basis must be \"sell\" or \"buy\", got %q", basis)
	}
	if c.Arbitrage.DefaultFeePct < 0 || c.Arbitrage.DefaultFeePct >= 1 {
		return fmt.Errorf("arbitrage.default_fee_pct must be in [0,1)")
	}
	if c.Metadata.Retry.Attempts <= 0 || c.Scrape.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be greater than zero")
	}
	if len(c.Scrape.Marketplaces) > 0 && c.Scrape.Token == "" {
		return fmt.Errorf("scrape.token 必须配置 (marketplaces are enabled)")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
