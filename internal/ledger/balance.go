package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// BalanceReader is the contract-client slice the balance ledger reads from.
type BalanceReader interface {
	ContractBalance(ctx context.Context, user common.Address, token domain.Token) (*big.Int, error)
}

// WalletLister names the wallets the background refresher keeps warm.
type WalletLister interface {
	TrackedWallets(ctx context.Context) ([]string, error)
}

// BalanceLedger tracks each user's spendable ledger balance per token. Reads
// go through a cache that is refreshed on a fixed interval by Run and
// invalidated immediately after any successful submit, deposit, or
// withdrawal. Balances are advisory: the ledger enforces sufficiency at
// submission time regardless of what the cache said.
type BalanceLedger struct {
	reader   BalanceReader
	cache    domain.BalanceCache
	interval time.Duration
	logger   *slog.Logger
}

// NewBalanceLedger creates a BalanceLedger refreshing on the given interval.
func NewBalanceLedger(reader BalanceReader, cache domain.BalanceCache, interval time.Duration, logger *slog.Logger) *BalanceLedger {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BalanceLedger{
		reader:   reader,
		cache:    cache,
		interval: interval,
		logger:   logger.With(slog.String("component", "balance_ledger")),
	}
}

// Balance returns the user's spendable balances, served from cache when
// fresh and fetched from the ledger otherwise.
func (b *BalanceLedger) Balance(ctx context.Context, user common.Address) (domain.UserBalance, error) {
	cached, err := b.cache.Get(ctx, user.Hex())
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		b.logger.Warn("balance cache read failed, falling through to ledger",
			slog.String("error", err.Error()))
	}
	return b.Refresh(ctx, user)
}

// Refresh fetches both token balances from the ledger and stores them.
func (b *BalanceLedger) Refresh(ctx context.Context, user common.Address) (domain.UserBalance, error) {
	usdc, err := b.reader.ContractBalance(ctx, user, domain.TokenUSDC)
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance: fetching USDC balance: %w", err)
	}
	usdt, err := b.reader.ContractBalance(ctx, user, domain.TokenUSDT)
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance: fetching USDT balance: %w", err)
	}

	bal := domain.UserBalance{USDC: usdc, USDT: usdt}
	if err := b.cache.Set(ctx, user.Hex(), bal); err != nil {
		b.logger.Warn("balance cache write failed", slog.String("error", err.Error()))
	}
	return bal, nil
}

// Invalidate drops the cached balances so the next read hits the ledger.
// Call it after any successful submit, deposit, or withdrawal.
func (b *BalanceLedger) Invalidate(ctx context.Context, user common.Address) {
	if err := b.cache.Invalidate(ctx, user.Hex()); err != nil {
		b.logger.Warn("balance cache invalidation failed",
			slog.String("wallet", user.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// CheckSufficient reports whether the user's cached-or-fresh balance covers
// amount of token. Advisory only.
func (b *BalanceLedger) CheckSufficient(ctx context.Context, user common.Address, token domain.Token, amount *big.Int) error {
	bal, err := b.Balance(ctx, user)
	if err != nil {
		return err
	}
	if bal.Of(token).Cmp(amount) < 0 {
		return fmt.Errorf("balance: %s short of %s: %w", token, amount, domain.ErrInsufficientBalance)
	}
	return nil
}

// Run refreshes the tracked wallets' balances until ctx is done.
func (b *BalanceLedger) Run(ctx context.Context, wallets WalletLister) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.refreshAll(ctx, wallets)
		}
	}
}

func (b *BalanceLedger) refreshAll(ctx context.Context, wallets WalletLister) {
	tracked, err := wallets.TrackedWallets(ctx)
	if err != nil {
		b.logger.Warn("listing tracked wallets failed", slog.String("error", err.Error()))
		return
	}
	for _, w := range tracked {
		if _, err := b.Refresh(ctx, common.HexToAddress(w)); err != nil {
			b.logger.Warn("balance refresh failed",
				slog.String("wallet", w),
				slog.String("error", err.Error()),
			)
		}
	}
}
