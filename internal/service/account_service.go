package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/notify"
)

// maxDisplayNameLen bounds stored display names.
const maxDisplayNameLen = 32

// FundsMover is the contract-client slice that moves funds in and out of the
// ledger.
type FundsMover interface {
	Deposit(ctx context.Context, from common.Address, token domain.Token, amount *big.Int) (common.Hash, error)
	Withdraw(ctx context.Context, from common.Address, token domain.Token, amount *big.Int) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) error
	UserPoints(ctx context.Context, user common.Address) (int64, error)
}

// AccountService owns everything about a user that is not a stake: ledger
// balances, deposits and withdrawals, points, display profiles, and the
// leaderboard.
type AccountService struct {
	identity    IdentitySource
	funds       FundsMover
	balances    BalanceKeeper
	profiles    domain.ProfileStore
	leaderboard domain.Leaderboard
	audit       domain.AuditStore
	notifier    Notifier
	logger      *slog.Logger
}

// NewAccountService wires an AccountService.
func NewAccountService(
	identity IdentitySource,
	funds FundsMover,
	balances BalanceKeeper,
	profiles domain.ProfileStore,
	leaderboard domain.Leaderboard,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		identity:    identity,
		funds:       funds,
		balances:    balances,
		profiles:    profiles,
		leaderboard: leaderboard,
		audit:       audit,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "account_service")),
	}
}

// Balance returns the caller's spendable ledger balances.
func (s *AccountService) Balance(ctx context.Context) (domain.UserBalance, error) {
	identity, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("service: resolving identity: %w", err)
	}
	return s.balances.Balance(ctx, identity.Address)
}

// Deposit moves funds from the caller's wallet into the ledger and waits for
// confirmation.
func (s *AccountService) Deposit(ctx context.Context, token domain.Token, amount *big.Int) (string, error) {
	return s.moveFunds(ctx, token, amount, notify.EventDeposit, s.funds.Deposit)
}

// Withdraw moves funds from the ledger back to the caller's wallet and waits
// for confirmation.
func (s *AccountService) Withdraw(ctx context.Context, token domain.Token, amount *big.Int) (string, error) {
	return s.moveFunds(ctx, token, amount, notify.EventWithdrawal, s.funds.Withdraw)
}

func (s *AccountService) moveFunds(
	ctx context.Context,
	token domain.Token,
	amount *big.Int,
	event string,
	move func(context.Context, common.Address, domain.Token, *big.Int) (common.Hash, error),
) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("service: %s amount must be positive: %w", event, domain.ErrInvalidPrediction)
	}

	if err := s.identity.EnsureTargetChain(ctx); err != nil {
		return "", fmt.Errorf("service: %s: %w", event, err)
	}
	identity, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("service: resolving identity: %w", err)
	}

	txHash, err := move(ctx, identity.Address, token, amount)
	if err != nil {
		return "", fmt.Errorf("service: %s: %w", event, err)
	}
	if err := s.funds.WaitMined(ctx, txHash); err != nil {
		return "", fmt.Errorf("service: %s confirmation: %w", event, err)
	}

	s.balances.Invalidate(ctx, identity.Address)

	walletHex := identity.Address.Hex()
	if err := s.audit.Log(ctx, "funds."+event, map[string]any{
		"wallet":  walletHex,
		"token":   token,
		"amount":  amount.String(),
		"tx_hash": txHash.Hex(),
	}); err != nil {
		s.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}

	title := fmt.Sprintf("%s confirmed", strings.ToUpper(event[:1])+event[1:])
	message := fmt.Sprintf("%s %s base units for %s\ntx %s",
		amount, token, domain.ShortAddress(walletHex), txHash.Hex())
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.Warn("funds notification failed", slog.String("error", err.Error()))
	}

	return txHash.Hex(), nil
}

// Points returns the user's on-chain points total.
func (s *AccountService) Points(ctx context.Context, user common.Address) (int64, error) {
	points, err := s.funds.UserPoints(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("service: fetching points for %s: %w", user.Hex(), err)
	}
	return points, nil
}

// Profile returns the user's display profile with their points total. A
// wallet with no stored profile gets the shortened-address fallback rather
// than an error.
func (s *AccountService) Profile(ctx context.Context, user common.Address) (domain.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, user.Hex())
	if errors.Is(err, domain.ErrNotFound) {
		profile = domain.UserProfile{Wallet: user.Hex()}
	} else if err != nil {
		return domain.UserProfile{}, err
	}

	points, err := s.funds.UserPoints(ctx, user)
	if err != nil {
		s.logger.Warn("points lookup failed, serving profile without",
			slog.String("wallet", user.Hex()),
			slog.String("error", err.Error()),
		)
	} else {
		profile.TotalPoints = points
	}
	return profile, nil
}

// SetDisplayName stores the caller's chosen display name.
func (s *AccountService) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxDisplayNameLen {
		return fmt.Errorf("service: display name must be 1-%d characters: %w",
			maxDisplayNameLen, domain.ErrInvalidPrediction)
	}

	identity, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("service: resolving identity: %w", err)
	}
	return s.profiles.Upsert(ctx, identity.Address.Hex(), name)
}

// Leaderboard returns the top n identities by points, with display names
// resolved where profiles exist.
func (s *AccountService) Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.leaderboard.Top(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("service: leaderboard: %w", err)
	}

	for i, e := range entries {
		profile, err := s.profiles.Get(ctx, e.Identity)
		if err != nil {
			entries[i].Identity = domain.ShortAddress(e.Identity)
			continue
		}
		entries[i].Identity = profile.DisplayIdentity()
	}
	return entries, nil
}
