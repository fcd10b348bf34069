package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/pricepoolhq/poolbot/internal/blob/s3"
	"github.com/pricepoolhq/poolbot/internal/cache/redis"
	"github.com/pricepoolhq/poolbot/internal/config"
	"github.com/pricepoolhq/poolbot/internal/crypto"
	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/ledger"
	"github.com/pricepoolhq/poolbot/internal/notify"
	"github.com/pricepoolhq/poolbot/internal/store/postgres"
	"github.com/pricepoolhq/poolbot/internal/wallet"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Wallet
	Guard *wallet.Guard

	// Ledger
	Ledger    *ledger.Client
	Submitter *ledger.Submitter
	History   *ledger.HistoryClient
	Balances  *ledger.BalanceLedger

	// Stores. Settlements is kept concrete because it also serves as the
	// tracked-wallet source for the watcher and the balance poller.
	Settlements *postgres.SettlementStore
	Profiles    domain.ProfileStore
	Audit       domain.AuditStore

	// Caches
	Leaderboard domain.Leaderboard
	RateLimiter domain.RateLimiter

	// Blob storage (nil unless archival is enabled for the mode)
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsArchiver returns true for modes that run the settlement watcher and so
// may drive archival.
func needsArchiver(mode string) bool {
	switch mode {
	case "watch", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Wallet providers ---
	var providers []wallet.Provider
	if cfg.Providers.LocalRPCURL != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		local, err := wallet.NewLocalProvider(ctx, "local", cfg.Providers.LocalRPCURL, keyHex, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: local provider: %w", err)
		}
		closers = append(closers, func() { _ = local.Close() })
		providers = append(providers, local)
	}
	for _, ep := range cfg.Providers.WS {
		p, err := wallet.DialWS(ctx, ep.Name, ep.URL, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ws provider %s: %w", ep.Name, err)
		}
		closers = append(closers, func() { _ = p.Close() })
		providers = append(providers, p)
	}

	primary, err := wallet.PreferNamed{Primary: cfg.Providers.Primary}.Select(providers)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: selecting provider: %w", err)
	}

	deps.Guard = wallet.NewGuard(primary, wallet.ChainDescriptor{
		ID:               cfg.Chain.ID,
		Name:             cfg.Chain.Name,
		CurrencyName:     cfg.Chain.CurrencyName,
		CurrencySymbol:   cfg.Chain.CurrencySymbol,
		CurrencyDecimals: cfg.Chain.CurrencyDecimals,
		RPCURL:           cfg.Chain.RPCURL,
		ExplorerURL:      cfg.Chain.ExplorerURL,
	}, logger)

	// --- Ledger client and the submission pipeline ---
	deps.Ledger = ledger.NewClient(primary, ledger.Options{
		Contract: common.HexToAddress(cfg.Contracts.Market),
		Tokens: map[domain.Token]common.Address{
			domain.TokenUSDC: common.HexToAddress(cfg.Contracts.USDC),
			domain.TokenUSDT: common.HexToAddress(cfg.Contracts.USDT),
		},
		GasLimit:        uint64(cfg.Submit.GasLimit),
		ConfirmInterval: cfg.Submit.ConfirmInterval.Duration,
		ConfirmTimeout:  cfg.Submit.ConfirmTimeout.Duration,
	}, logger)

	allowance := ledger.NewAllowanceCoordinator(deps.Ledger, logger)
	deps.Submitter = ledger.NewSubmitter(deps.Guard, allowance, deps.Ledger, logger)
	deps.History = ledger.NewHistoryClient(deps.Ledger, logger)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Settlements = postgres.NewSettlementStore(pool)
	deps.Profiles = postgres.NewProfileStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Leaderboard = redis.NewLeaderboard(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Balances = ledger.NewBalanceLedger(
		deps.Ledger,
		redis.NewBalanceCache(redisClient),
		cfg.Watch.BalanceRefresh.Duration,
		logger,
	)

	// --- S3 blob storage (only when the mode archives) ---
	if needsArchiver(cfg.Mode) && cfg.Watch.ArchiveEvery.Duration > 0 {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSettlementArchiver(
			s3blob.NewWriter(s3Client),
			deps.Settlements,
			deps.Audit,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
