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
// built-in defaults, applies POOLBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POOLBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POOLBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POOLBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POOLBOT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setUint64(&cfg.Chain.ID, "POOLBOT_CHAIN_ID")
	setStr(&cfg.Chain.RPCURL, "POOLBOT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ExplorerURL, "POOLBOT_CHAIN_EXPLORER_URL")

	// ── Contracts ──
	setStr(&cfg.Contracts.Market, "POOLBOT_CONTRACTS_MARKET")
	setStr(&cfg.Contracts.USDC, "POOLBOT_CONTRACTS_USDC")
	setStr(&cfg.Contracts.USDT, "POOLBOT_CONTRACTS_USDT")

	// ── Providers ──
	setStr(&cfg.Providers.Primary, "POOLBOT_PROVIDERS_PRIMARY")
	setStr(&cfg.Providers.LocalRPCURL, "POOLBOT_PROVIDERS_LOCAL_RPC_URL")

	// ── Submit ──
	setInt64(&cfg.Submit.GasLimit, "POOLBOT_SUBMIT_GAS_LIMIT")
	setDuration(&cfg.Submit.ConfirmInterval, "POOLBOT_SUBMIT_CONFIRM_INTERVAL")
	setDuration(&cfg.Submit.ConfirmTimeout, "POOLBOT_SUBMIT_CONFIRM_TIMEOUT")

	// ── Market ──
	setInt64(&cfg.Market.FeeBps, "POOLBOT_MARKET_FEE_BPS")
	setInt(&cfg.Market.SubmitLimit, "POOLBOT_MARKET_SUBMIT_LIMIT")
	setDuration(&cfg.Market.SubmitWindow, "POOLBOT_MARKET_SUBMIT_WINDOW")
	setInt(&cfg.Market.HistoryLimit, "POOLBOT_MARKET_HISTORY_LIMIT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POOLBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POOLBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POOLBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POOLBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POOLBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POOLBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POOLBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POOLBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POOLBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POOLBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POOLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POOLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POOLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POOLBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POOLBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POOLBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POOLBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POOLBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POOLBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POOLBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POOLBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POOLBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POOLBOT_S3_FORCE_PATH_STYLE")

	// ── Watch ──
	setDuration(&cfg.Watch.Interval, "POOLBOT_WATCH_INTERVAL")
	setDuration(&cfg.Watch.BalanceRefresh, "POOLBOT_WATCH_BALANCE_REFRESH")
	setDuration(&cfg.Watch.ArchiveEvery, "POOLBOT_WATCH_ARCHIVE_EVERY")
	setDuration(&cfg.Watch.ArchiveAge, "POOLBOT_WATCH_ARCHIVE_AGE")

	// ── Server ──
	setInt(&cfg.Server.Port, "POOLBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POOLBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POOLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POOLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POOLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POOLBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POOLBOT_MODE")
	setStr(&cfg.LogLevel, "POOLBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
