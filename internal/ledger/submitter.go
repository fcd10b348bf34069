package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/wallet"
)

// Phase names the stage a stake submission is in when it fails. The pipeline
// is strictly ordered; a failure in any phase aborts the remainder.
type Phase string

const (
	PhaseValidating        Phase = "validating"
	PhaseGuardingChain     Phase = "guarding_chain"
	PhaseCheckingAllowance Phase = "checking_allowance"
	PhaseAuthorizing       Phase = "authorizing"
	PhaseSubmitting        Phase = "submitting"
	PhaseConfirming        Phase = "confirming"
	PhaseDone              Phase = "done"
)

// PhaseError tags a submission failure with the phase it occurred in. The
// underlying error is preserved verbatim; no retries happen inside the
// pipeline.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

func phaseErr(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}

// ChainGuard is the identity-guard slice the submitter depends on.
type ChainGuard interface {
	CurrentIdentity(ctx context.Context) (wallet.Identity, error)
	EnsureTargetChain(ctx context.Context) error
}

// Allowancer coordinates token approvals ahead of a stake.
type Allowancer interface {
	CurrentAllowance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error)
	Authorize(ctx context.Context, token domain.Token, owner common.Address, amount *big.Int) error
}

// StakePlacer is the contract-client slice that writes stakes.
type StakePlacer interface {
	PlaceBet(ctx context.Context, from common.Address, in domain.PredictionInput) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) error
}

// Submitter orchestrates the two-phase commit of one stake: authorize the
// exact amount if needed, then submit and wait for confirmation. The two
// phases are not atomic; an approval that lands without its stake is left
// dangling and reused by the allowance re-check on the next attempt.
type Submitter struct {
	guard     ChainGuard
	allowance Allowancer
	placer    StakePlacer
	logger    *slog.Logger
}

// NewSubmitter wires a Submitter from its three collaborators.
func NewSubmitter(guard ChainGuard, allowance Allowancer, placer StakePlacer, logger *slog.Logger) *Submitter {
	return &Submitter{
		guard:     guard,
		allowance: allowance,
		placer:    placer,
		logger:    logger.With(slog.String("component", "stake_submitter")),
	}
}

// Submit runs the full submission pipeline for one prediction. Validation
// happens before any network call; the chain guard runs before any
// authorization; the stake is only sent once the allowance covers the exact
// amount. Failures carry their phase via PhaseError and are never retried
// internally.
func (s *Submitter) Submit(ctx context.Context, in domain.PredictionInput) (*domain.PredictionReceipt, error) {
	if err := in.Validate(); err != nil {
		return nil, phaseErr(PhaseValidating, err)
	}

	if err := s.guard.EnsureTargetChain(ctx); err != nil {
		return nil, phaseErr(PhaseGuardingChain, err)
	}
	identity, err := s.guard.CurrentIdentity(ctx)
	if err != nil {
		return nil, phaseErr(PhaseGuardingChain, err)
	}

	current, err := s.allowance.CurrentAllowance(ctx, in.Token, identity.Address)
	if err != nil {
		return nil, phaseErr(PhaseCheckingAllowance, err)
	}
	if current.Cmp(in.Amount) < 0 {
		if err := s.allowance.Authorize(ctx, in.Token, identity.Address, in.Amount); err != nil {
			return nil, phaseErr(PhaseAuthorizing, err)
		}
	} else {
		s.logger.Debug("existing allowance covers stake",
			slog.String("current", current.String()),
			slog.String("amount", in.Amount.String()),
		)
	}

	txHash, err := s.placer.PlaceBet(ctx, identity.Address, in)
	if err != nil {
		return nil, phaseErr(PhaseSubmitting, err)
	}

	if err := s.placer.WaitMined(ctx, txHash); err != nil {
		return nil, phaseErr(PhaseConfirming, err)
	}

	receipt := &domain.PredictionReceipt{
		SubmissionID: uuid.NewString(),
		TxHash:       txHash.Hex(),
		Input:        in,
		CreatedAt:    time.Now().UTC(),
	}
	s.logger.Info("stake confirmed",
		slog.String("submission_id", receipt.SubmissionID),
		slog.String("tx_hash", receipt.TxHash),
		slog.String("asset", string(in.Asset)),
		slog.String("amount", in.Amount.String()),
	)
	return receipt, nil
}
