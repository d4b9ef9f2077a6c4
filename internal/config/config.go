// Package config defines the top-level configuration for the edge bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EDGEBOT_* environment variables.
type Config struct {
	Sports    []string         `toml:"sports"`
	Providers []ProviderConfig `toml:"providers"`
	Cycle     CycleConfig      `toml:"cycle"`
	Postgres  PostgresConfig   `toml:"postgres"`
	Redis     RedisConfig      `toml:"redis"`
	S3        S3Config         `toml:"s3"`
	Strategy  StrategyConfig   `toml:"strategy"`
	Risk      RiskConfig       `toml:"risk"`
	Archive   ArchiveConfig    `toml:"archive"`
	Notify    NotifyConfig     `toml:"notify"`
	Mode      string           `toml:"mode"`
	LogLevel  string           `toml:"log_level"`
}

// ProviderConfig holds one odds provider's connection and resilience
// parameters. Kind selects the transport: "http" polls a REST board, "ws"
// subscribes to a push stream.
type ProviderConfig struct {
	Name    string   `toml:"name"`
	Kind    string   `toml:"kind"`
	URL     string   `toml:"url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
	// Markets extends the default provider-to-canonical market mapping.
	Markets map[string]string `toml:"markets"`

	// Rate limit: at most MaxRequests fetches per RateWindow.
	MaxRequests int      `toml:"max_requests"`
	RateWindow  duration `toml:"rate_window"`

	// Retry: total attempts for transient errors, exponential backoff.
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`

	// Circuit breaker: consecutive failures before tripping, and how long the
	// breaker stays open before probing.
	FailureThreshold int      `toml:"failure_threshold"`
	BreakerTimeout   duration `toml:"breaker_timeout"`
}

// CycleConfig holds the aggregation cycle cadence.
type CycleConfig struct {
	Interval     duration `toml:"interval"`
	FetchTimeout duration `toml:"fetch_timeout"`
	MaxParallel  int      `toml:"max_parallel"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters plus the event stream the
// dispatcher publishes to.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	EventStream  string `toml:"event_stream"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// StrategyConfig selects and tunes the evaluators.
type StrategyConfig struct {
	Arbitrage ArbitrageStrategyConfig `toml:"arbitrage"`
	Value     ValueStrategyConfig     `toml:"value"`
	Steam     SteamStrategyConfig     `toml:"steam"`
}

// ArbitrageStrategyConfig holds config for the cross-provider arbitrage
// evaluator.
type ArbitrageStrategyConfig struct {
	Enabled      bool     `toml:"enabled"`
	MinProfitPct float64  `toml:"min_profit_pct"`
	MaxSkew      duration `toml:"max_skew"`
	TotalStake   float64  `toml:"total_stake"`
}

// ValueStrategyConfig holds config for the model-vs-market value evaluator.
type ValueStrategyConfig struct {
	Enabled       bool     `toml:"enabled"`
	EdgeThreshold float64  `toml:"edge_threshold"`
	Stake         float64  `toml:"stake"`
	MaxQuoteAge   duration `toml:"max_quote_age"`
}

// SteamStrategyConfig holds config for the steam-move evaluator.
type SteamStrategyConfig struct {
	Enabled         bool     `toml:"enabled"`
	MoveThreshold   float64  `toml:"move_threshold"`
	Window          duration `toml:"window"`
	Stake           float64  `toml:"stake"`
	MaxPointsPerKey int      `toml:"max_points_per_key"`
}

// RiskConfig holds the exposure limits. All limits are absolute stake amounts
// except per_bet_pct, which is a fraction of bankroll.
type RiskConfig struct {
	Bankroll         float64                  `toml:"bankroll"`
	PerBetPct        float64                  `toml:"per_bet_pct"`
	DailyLossLimit   float64                  `toml:"daily_loss_limit"`
	MaxEventExposure float64                  `toml:"max_event_exposure"`
	MaxSportExposure float64                  `toml:"max_sport_exposure"`
	AllowDownsize    bool                     `toml:"allow_downsize"`
	MinStake         float64                  `toml:"min_stake"`
	Window           duration                 `toml:"window"`
	Correlations     []CorrelationGroupConfig `toml:"correlations"`
}

// CorrelationGroupConfig names market types that count as one position within
// the same event.
type CorrelationGroupConfig struct {
	Name    string   `toml:"name"`
	Markets []string `toml:"markets"`
}

// ArchiveConfig holds the retention schedule for the S3 archiver.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	QuoteRetention duration `toml:"quote_retention"`
	BatchSize      int      `toml:"batch_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Sports: []string{"soccer"},
		Cycle: CycleConfig{
			Interval:     duration{15 * time.Second},
			FetchTimeout: duration{10 * time.Second},
			MaxParallel:  8,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "edgebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			EventStream:  "edgebot:events",
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "edgebot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Strategy: StrategyConfig{
			Arbitrage: ArbitrageStrategyConfig{
				Enabled:      true,
				MinProfitPct: 0.5,
				MaxSkew:      duration{5 * time.Second},
				TotalStake:   100.0,
			},
			Value: ValueStrategyConfig{
				Enabled:       false,
				EdgeThreshold: 0.03,
				Stake:         50.0,
				MaxQuoteAge:   duration{2 * time.Minute},
			},
			Steam: SteamStrategyConfig{
				Enabled:         false,
				MoveThreshold:   0.05,
				Window:          duration{5 * time.Minute},
				Stake:           50.0,
				MaxPointsPerKey: 64,
			},
		},
		Risk: RiskConfig{
			Bankroll:         10000.0,
			PerBetPct:        0.02,
			DailyLossLimit:   500.0,
			MaxEventExposure: 400.0,
			MaxSportExposure: 2000.0,
			AllowDownsize:    true,
			MinStake:         5.0,
			Window:           duration{24 * time.Hour},
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Interval:       duration{6 * time.Hour},
			QuoteRetention: duration{7 * 24 * time.Hour},
			BatchSize:      5000,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_alert", "order_placed", "bet_settled"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. In scan mode
// approved opportunities raise operator alerts; trade mode hands them to the
// execution boundary.
var validModes = map[string]bool{
	"scan":  true,
	"trade": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validProviderKinds = map[string]bool{
	"http": true,
	"ws":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Sports) == 0 {
		errs = append(errs, "sports: at least one sport must be configured")
	}

	// Providers
	if len(c.Providers) == 0 {
		errs = append(errs, "providers: at least one provider must be configured")
	}
	seen := map[string]bool{}
	for i, p := range c.Providers {
		tag := p.Name
		if tag == "" {
			tag = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Sprintf("providers[%d]: name must not be empty", i))
		}
		if seen[p.Name] && p.Name != "" {
			errs = append(errs, fmt.Sprintf("providers: duplicate name %q", p.Name))
		}
		seen[p.Name] = true

		if !validProviderKinds[p.Kind] {
			errs = append(errs, fmt.Sprintf("provider %s: unknown kind %q (valid: http, ws)", tag, p.Kind))
		}
		if p.URL == "" {
			errs = append(errs, fmt.Sprintf("provider %s: url must not be empty", tag))
		}
	}

	// Cycle
	if c.Cycle.Interval.Duration <= 0 {
		errs = append(errs, "cycle: interval must be > 0")
	}
	if c.Cycle.FetchTimeout.Duration <= 0 {
		errs = append(errs, "cycle: fetch_timeout must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when archiving is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.QuoteRetention.Duration <= 0 {
			errs = append(errs, "archive: quote_retention must be > 0")
		}
	}

	// Strategy: at least one evaluator must run.
	if !c.Strategy.Arbitrage.Enabled && !c.Strategy.Value.Enabled && !c.Strategy.Steam.Enabled {
		errs = append(errs, "strategy: at least one evaluator must be enabled")
	}
	if c.Strategy.Arbitrage.Enabled {
		if c.Strategy.Arbitrage.MinProfitPct <= 0 {
			errs = append(errs, "strategy.arbitrage: min_profit_pct must be > 0")
		}
		if c.Strategy.Arbitrage.TotalStake <= 0 {
			errs = append(errs, "strategy.arbitrage: total_stake must be > 0")
		}
	}
	if c.Strategy.Value.Enabled {
		if c.Strategy.Value.EdgeThreshold <= 0 {
			errs = append(errs, "strategy.value: edge_threshold must be > 0")
		}
		if c.Strategy.Value.Stake <= 0 {
			errs = append(errs, "strategy.value: stake must be > 0")
		}
	}
	if c.Strategy.Steam.Enabled {
		if c.Strategy.Steam.MoveThreshold <= 0 {
			errs = append(errs, "strategy.steam: move_threshold must be > 0")
		}
		if c.Strategy.Steam.Window.Duration <= 0 {
			errs = append(errs, "strategy.steam: window must be > 0")
		}
		if c.Strategy.Steam.Stake <= 0 {
			errs = append(errs, "strategy.steam: stake must be > 0")
		}
	}

	// Risk
	if c.Risk.Bankroll <= 0 {
		errs = append(errs, "risk: bankroll must be > 0")
	}
	if c.Risk.PerBetPct <= 0 || c.Risk.PerBetPct > 1 {
		errs = append(errs, fmt.Sprintf("risk: per_bet_pct must be in (0, 1], got %g", c.Risk.PerBetPct))
	}
	if c.Risk.DailyLossLimit <= 0 {
		errs = append(errs, "risk: daily_loss_limit must be > 0")
	}
	if c.Risk.MaxEventExposure <= 0 {
		errs = append(errs, "risk: max_event_exposure must be > 0")
	}
	if c.Risk.MaxSportExposure <= 0 {
		errs = append(errs, "risk: max_sport_exposure must be > 0")
	}
	for i, g := range c.Risk.Correlations {
		if g.Name == "" {
			errs = append(errs, fmt.Sprintf("risk.correlations[%d]: name must not be empty", i))
		}
		if len(g.Markets) < 2 {
			errs = append(errs, fmt.Sprintf("risk.correlations[%d]: at least two markets required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
