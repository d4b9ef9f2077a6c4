package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EDGEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
// Provider entries are positional TOML arrays, so only their API keys are
// overridable, via EDGEBOT_PROVIDER_<UPPERCASE_NAME>_API_KEY.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "EDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "EDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EDGEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "EDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EDGEBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.EventStream, "EDGEBOT_REDIS_EVENT_STREAM")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "EDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EDGEBOT_S3_FORCE_PATH_STYLE")

	// ── Providers (API keys only) ──
	for i := range cfg.Providers {
		key := "EDGEBOT_PROVIDER_" + envName(cfg.Providers[i].Name) + "_API_KEY"
		setStr(&cfg.Providers[i].APIKey, key)
	}

	// ── Strategy ──
	setBool(&cfg.Strategy.Arbitrage.Enabled, "EDGEBOT_STRATEGY_ARBITRAGE_ENABLED")
	setFloat64(&cfg.Strategy.Arbitrage.MinProfitPct, "EDGEBOT_STRATEGY_ARBITRAGE_MIN_PROFIT_PCT")
	setFloat64(&cfg.Strategy.Arbitrage.TotalStake, "EDGEBOT_STRATEGY_ARBITRAGE_TOTAL_STAKE")
	setBool(&cfg.Strategy.Value.Enabled, "EDGEBOT_STRATEGY_VALUE_ENABLED")
	setFloat64(&cfg.Strategy.Value.EdgeThreshold, "EDGEBOT_STRATEGY_VALUE_EDGE_THRESHOLD")
	setFloat64(&cfg.Strategy.Value.Stake, "EDGEBOT_STRATEGY_VALUE_STAKE")
	setBool(&cfg.Strategy.Steam.Enabled, "EDGEBOT_STRATEGY_STEAM_ENABLED")
	setFloat64(&cfg.Strategy.Steam.MoveThreshold, "EDGEBOT_STRATEGY_STEAM_MOVE_THRESHOLD")
	setFloat64(&cfg.Strategy.Steam.Stake, "EDGEBOT_STRATEGY_STEAM_STAKE")

	// ── Risk ──
	setFloat64(&cfg.Risk.Bankroll, "EDGEBOT_RISK_BANKROLL")
	setFloat64(&cfg.Risk.PerBetPct, "EDGEBOT_RISK_PER_BET_PCT")
	setFloat64(&cfg.Risk.DailyLossLimit, "EDGEBOT_RISK_DAILY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.MaxEventExposure, "EDGEBOT_RISK_MAX_EVENT_EXPOSURE")
	setFloat64(&cfg.Risk.MaxSportExposure, "EDGEBOT_RISK_MAX_SPORT_EXPOSURE")
	setBool(&cfg.Risk.AllowDownsize, "EDGEBOT_RISK_ALLOW_DOWNSIZE")
	setFloat64(&cfg.Risk.MinStake, "EDGEBOT_RISK_MIN_STAKE")
	setDuration(&cfg.Risk.Window, "EDGEBOT_RISK_WINDOW")

	// ── Cycle ──
	setDuration(&cfg.Cycle.Interval, "EDGEBOT_CYCLE_INTERVAL")
	setDuration(&cfg.Cycle.FetchTimeout, "EDGEBOT_CYCLE_FETCH_TIMEOUT")
	setInt(&cfg.Cycle.MaxParallel, "EDGEBOT_CYCLE_MAX_PARALLEL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "EDGEBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "EDGEBOT_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.QuoteRetention, "EDGEBOT_ARCHIVE_QUOTE_RETENTION")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EDGEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStringSlice(&cfg.Sports, "EDGEBOT_SPORTS")
	setStr(&cfg.Mode, "EDGEBOT_MODE")
	setStr(&cfg.LogLevel, "EDGEBOT_LOG_LEVEL")
}

// envName converts a provider name into its environment-variable segment,
// e.g. "sharp-line" -> "SHARP_LINE".
func envName(name string) string {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
