package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// TokenLedger is the slice of the contract client the allowance flow needs.
type TokenLedger interface {
	TokenAllowance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error)
	ApproveToken(ctx context.Context, token domain.Token, owner common.Address, amount *big.Int) error
}

// AllowanceCoordinator makes sure the market contract can move the exact
// stake amount before a stake is submitted. It always re-checks the current
// allowance first, so a dangling approval from an earlier aborted submit is
// reused instead of stacked.
type AllowanceCoordinator struct {
	tokens TokenLedger
	logger *slog.Logger
}

// NewAllowanceCoordinator creates an AllowanceCoordinator over a token
// ledger.
func NewAllowanceCoordinator(tokens TokenLedger, logger *slog.Logger) *AllowanceCoordinator {
	return &AllowanceCoordinator{
		tokens: tokens,
		logger: logger.With(slog.String("component", "allowance_coordinator")),
	}
}

// CurrentAllowance returns the live on-chain allowance for (token, owner).
func (a *AllowanceCoordinator) CurrentAllowance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error) {
	allowance, err := a.tokens.TokenAllowance(ctx, token, owner)
	if err != nil {
		return nil, fmt.Errorf("allowance: reading allowance: %w", err)
	}
	return allowance, nil
}

// Authorize approves the market contract for exactly amount.
func (a *AllowanceCoordinator) Authorize(ctx context.Context, token domain.Token, owner common.Address, amount *big.Int) error {
	if err := a.tokens.ApproveToken(ctx, token, owner, amount); err != nil {
		return fmt.Errorf("allowance: approving %s: %w", amount, err)
	}
	a.logger.Info("allowance authorized",
		slog.String("token", string(token)),
		slog.String("owner", owner.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// EnsureAllowance checks the current allowance and authorizes the exact
// amount only when the existing allowance falls short. It reports whether an
// approval transaction was sent. Idempotent: a second call for the same
// amount performs a read and nothing else.
func (a *AllowanceCoordinator) EnsureAllowance(ctx context.Context, token domain.Token, owner common.Address, amount *big.Int) (approved bool, err error) {
	current, err := a.CurrentAllowance(ctx, token, owner)
	if err != nil {
		return false, err
	}
	if current.Cmp(amount) >= 0 {
		a.logger.Debug("allowance already sufficient",
			slog.String("token", string(token)),
			slog.String("current", current.String()),
			slog.String("needed", amount.String()),
		)
		return false, nil
	}

	if err := a.Authorize(ctx, token, owner, amount); err != nil {
		return false, err
	}
	return true, nil
}
