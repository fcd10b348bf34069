// Package config defines the top-level configuration for poolbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POOLBOT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Providers ProvidersConfig `toml:"providers"`
	Submit    SubmitConfig    `toml:"submit"`
	Market    MarketConfig    `toml:"market"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Watch     WatchConfig     `toml:"watch"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the local signing key credentials. These are only needed
// when providers.local_rpc_url is set; browser-style WS providers carry their
// own keys.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig describes the single target chain. The descriptor is sent
// verbatim with wallet_addEthereumChain when a wallet does not know the chain.
type ChainConfig struct {
	ID               uint64 `toml:"id"`
	Name             string `toml:"name"`
	CurrencyName     string `toml:"currency_name"`
	CurrencySymbol   string `toml:"currency_symbol"`
	CurrencyDecimals int    `toml:"currency_decimals"`
	RPCURL           string `toml:"rpc_url"`
	ExplorerURL      string `toml:"explorer_url"`
}

// ContractsConfig holds the on-chain contract addresses.
type ContractsConfig struct {
	Market string `toml:"market"`
	USDC   string `toml:"usdc"`
	USDT   string `toml:"usdt"`
}

// WSEndpointConfig identifies one websocket wallet bridge.
type WSEndpointConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// ProvidersConfig configures the wallet provider set and how the primary one
// is selected. When local_rpc_url is set, a key-backed provider named "local"
// joins the set alongside any websocket bridges.
type ProvidersConfig struct {
	Primary     string             `toml:"primary"`
	LocalRPCURL string             `toml:"local_rpc_url"`
	WS          []WSEndpointConfig `toml:"ws"`
}

// SubmitConfig holds transaction submission parameters.
type SubmitConfig struct {
	GasLimit        int64    `toml:"gas_limit"`
	ConfirmInterval duration `toml:"confirm_interval"`
	ConfirmTimeout  duration `toml:"confirm_timeout"`
}

// MarketConfig holds market-level parameters.
type MarketConfig struct {
	FeeBps       int64    `toml:"fee_bps"`
	SubmitLimit  int      `toml:"submit_limit"`
	SubmitWindow duration `toml:"submit_window"`
	HistoryLimit int      `toml:"history_limit"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
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

// WatchConfig holds settlement watcher and balance poller parameters.
// archive_every of zero disables archival.
type WatchConfig struct {
	Interval       duration `toml:"interval"`
	BalanceRefresh duration `toml:"balance_refresh"`
	ArchiveEvery   duration `toml:"archive_every"`
	ArchiveAge     duration `toml:"archive_age"`
}

// ServerConfig holds HTTP server parameters. An empty api_key disables
// authentication.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML values can be written as "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
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
		Chain: ChainConfig{
			ID:               84532,
			Name:             "Base Sepolia",
			CurrencyName:     "Ether",
			CurrencySymbol:   "ETH",
			CurrencyDecimals: 18,
			RPCURL:           "https://sepolia.base.org",
			ExplorerURL:      "https://sepolia.basescan.org",
		},
		Contracts: ContractsConfig{
			Market: "0x69868918e7Bd1117e90fbf27d0dD92010A13Cc8d",
			USDC:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			USDT:   "0xb20A893fb1Ef6D46d97E6dAFb0A3d2E0A6aF6C3e",
		},
		Providers: ProvidersConfig{
			Primary: "local",
		},
		Submit: SubmitConfig{
			GasLimit:        500_000,
			ConfirmInterval: duration{2 * time.Second},
			ConfirmTimeout:  duration{2 * time.Minute},
		},
		Market: MarketConfig{
			FeeBps:       500,
			SubmitLimit:  10,
			SubmitWindow: duration{time.Minute},
			HistoryLimit: 200,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "poolbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "poolbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Watch: WatchConfig{
			Interval:       duration{time.Minute},
			BalanceRefresh: duration{30 * time.Second},
			ArchiveEvery:   duration{0},
			ArchiveAge:     duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Notify: NotifyConfig{
			Events: []string{"stake_submitted", "pool_resolved", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve": true,
	"watch": true,
	"full":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, watch, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.ID == 0 {
		errs = append(errs, "chain: id must be positive")
	}
	if c.Chain.Name == "" {
		errs = append(errs, "chain: name must not be empty")
	}
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.CurrencyDecimals <= 0 {
		errs = append(errs, "chain: currency_decimals must be positive")
	}

	// Contracts
	if !common.IsHexAddress(c.Contracts.Market) {
		errs = append(errs, fmt.Sprintf("contracts: market %q is not a valid address", c.Contracts.Market))
	}
	if !common.IsHexAddress(c.Contracts.USDC) {
		errs = append(errs, fmt.Sprintf("contracts: usdc %q is not a valid address", c.Contracts.USDC))
	}
	if !common.IsHexAddress(c.Contracts.USDT) {
		errs = append(errs, fmt.Sprintf("contracts: usdt %q is not a valid address", c.Contracts.USDT))
	}

	// Providers: at least one provider source must exist.
	if c.Providers.LocalRPCURL == "" && len(c.Providers.WS) == 0 {
		errs = append(errs, "providers: either local_rpc_url or at least one [[providers.ws]] entry must be set")
	}
	for i, ws := range c.Providers.WS {
		if ws.Name == "" {
			errs = append(errs, fmt.Sprintf("providers: ws[%d] name must not be empty", i))
		}
		if !strings.HasPrefix(ws.URL, "ws://") && !strings.HasPrefix(ws.URL, "wss://") {
			errs = append(errs, fmt.Sprintf("providers: ws[%d] url must be a ws:// or wss:// URL, got %q", i, ws.URL))
		}
	}

	// Wallet: the local provider needs a key source.
	if c.Providers.LocalRPCURL != "" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set when providers.local_rpc_url is set")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Submit
	if c.Submit.GasLimit <= 0 {
		errs = append(errs, "submit: gas_limit must be positive")
	}
	if c.Submit.ConfirmInterval.Duration <= 0 {
		errs = append(errs, "submit: confirm_interval must be positive")
	}
	if c.Submit.ConfirmTimeout.Duration <= c.Submit.ConfirmInterval.Duration {
		errs = append(errs, "submit: confirm_timeout must exceed confirm_interval")
	}

	// Market
	if c.Market.FeeBps < 0 || c.Market.FeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("market: fee_bps must be in [0, 10000), got %d", c.Market.FeeBps))
	}
	if c.Market.SubmitLimit <= 0 {
		errs = append(errs, "market: submit_limit must be positive")
	}
	if c.Market.SubmitWindow.Duration <= 0 {
		errs = append(errs, "market: submit_window must be positive")
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
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// Watch
	if c.Watch.Interval.Duration <= 0 {
		errs = append(errs, "watch: interval must be positive")
	}
	if c.Watch.BalanceRefresh.Duration <= 0 {
		errs = append(errs, "watch: balance_refresh must be positive")
	}
	if c.Watch.ArchiveEvery.Duration > 0 {
		if c.S3.Bucket == "" {
			errs = append(errs, "watch: archival enabled but s3.bucket is empty")
		}
		if c.Watch.ArchiveAge.Duration <= 0 {
			errs = append(errs, "watch: archive_age must be positive when archival is enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Notify: token and chat id must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
