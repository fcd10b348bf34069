// Package service composes the wallet, ledger, store, cache, and notify
// layers into the operations the HTTP API and the background modes expose.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/ledger"
	"github.com/pricepoolhq/poolbot/internal/wallet"
)

// StakeSubmitter runs the two-phase submission pipeline.
type StakeSubmitter interface {
	Submit(ctx context.Context, in domain.PredictionInput) (*domain.PredictionReceipt, error)
}

// HistoryReader fetches enriched prediction history.
type HistoryReader interface {
	History(ctx context.Context, user common.Address) ([]domain.EnrichedPrediction, error)
}

// BalanceKeeper is the balance-ledger slice the services use.
type BalanceKeeper interface {
	Balance(ctx context.Context, user common.Address) (domain.UserBalance, error)
	CheckSufficient(ctx context.Context, user common.Address, token domain.Token, amount *big.Int) error
	Invalidate(ctx context.Context, user common.Address)
}

// IdentitySource resolves the active wallet identity.
type IdentitySource interface {
	CurrentIdentity(ctx context.Context) (wallet.Identity, error)
	EnsureTargetChain(ctx context.Context) error
}

// Notifier is the notification slice the services use.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
	StakeSubmitted(ctx context.Context, receipt *domain.PredictionReceipt) error
}

// PredictionConfig bounds the submission path.
type PredictionConfig struct {
	// SubmitLimit / SubmitWindow cap how many stakes one wallet may submit
	// per window.
	SubmitLimit  int
	SubmitWindow time.Duration

	// FeeBps is the ledger's cut of the losing pool, used for payout
	// previews.
	FeeBps int64

	// HistoryLimit caps local bookkeeping reads.
	HistoryLimit int
}

func (c *PredictionConfig) applyDefaults() {
	if c.SubmitLimit <= 0 {
		c.SubmitLimit = 10
	}
	if c.SubmitWindow <= 0 {
		c.SubmitWindow = time.Minute
	}
	if c.FeeBps < 0 || c.FeeBps >= 10_000 {
		c.FeeBps = 500
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 200
	}
}

// PredictionService owns the stake lifecycle: submission with rate limiting
// and an advisory balance check, history reads, and payout previews.
type PredictionService struct {
	identity    IdentitySource
	submitter   StakeSubmitter
	history     HistoryReader
	balances    BalanceKeeper
	settlements domain.SettlementStore
	audit       domain.AuditStore
	limiter     domain.RateLimiter
	notifier    Notifier
	cfg         PredictionConfig
	logger      *slog.Logger
}

// NewPredictionService wires a PredictionService.
func NewPredictionService(
	identity IdentitySource,
	submitter StakeSubmitter,
	history HistoryReader,
	balances BalanceKeeper,
	settlements domain.SettlementStore,
	audit domain.AuditStore,
	limiter domain.RateLimiter,
	notifier Notifier,
	cfg PredictionConfig,
	logger *slog.Logger,
) *PredictionService {
	cfg.applyDefaults()
	return &PredictionService{
		identity:    identity,
		submitter:   submitter,
		history:     history,
		balances:    balances,
		settlements: settlements,
		audit:       audit,
		limiter:     limiter,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "prediction_service")),
	}
}

// Submit runs one stake through rate limiting, the advisory balance check,
// and the submission pipeline, then records the result locally. The ledger
// stays authoritative for sufficiency; the local check only avoids sending
// transactions that are certain to fail.
func (s *PredictionService) Submit(ctx context.Context, in domain.PredictionInput) (*domain.PredictionReceipt, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	identity, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: resolving identity: %w", err)
	}
	walletHex := identity.Address.Hex()

	allowed, err := s.limiter.Allow(ctx, "submit:"+walletHex, s.cfg.SubmitLimit, s.cfg.SubmitWindow)
	if err != nil {
		// A broken limiter must not block trading; log and continue.
		s.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
	} else if !allowed {
		return nil, fmt.Errorf("service: wallet %s: %w", domain.ShortAddress(walletHex), domain.ErrRateLimited)
	}

	if err := s.balances.CheckSufficient(ctx, identity.Address, in.Token, in.Amount); err != nil {
		return nil, err
	}

	receipt, err := s.submitter.Submit(ctx, in)
	if err != nil {
		s.auditLog(ctx, "stake.failed", map[string]any{
			"wallet": walletHex,
			"error":  err.Error(),
		})
		return nil, err
	}

	s.balances.Invalidate(ctx, identity.Address)

	rec := domain.StakeRecord{
		ID:        receipt.SubmissionID,
		Wallet:    walletHex,
		TxHash:    receipt.TxHash,
		Asset:     in.Asset,
		Threshold: in.Threshold,
		Direction: in.Direction,
		Window:    in.Window,
		Token:     in.Token,
		Amount:    in.Amount.String(),
		Result:    domain.OutcomePending,
		CreatedAt: receipt.CreatedAt,
	}
	if err := s.settlements.RecordStake(ctx, rec); err != nil {
		// The stake is on chain; bookkeeping failure is logged, not fatal.
		s.logger.Error("recording stake failed",
			slog.String("submission_id", receipt.SubmissionID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "stake.submitted", map[string]any{
		"submission_id": receipt.SubmissionID,
		"wallet":        walletHex,
		"tx_hash":       receipt.TxHash,
		"asset":         in.Asset,
		"amount":        in.Amount.String(),
	})

	if err := s.notifier.StakeSubmitted(ctx, receipt); err != nil {
		s.logger.Warn("stake notification failed", slog.String("error", err.Error()))
	}

	return receipt, nil
}

// History returns the caller's enriched prediction history.
func (s *PredictionService) History(ctx context.Context) ([]domain.EnrichedPrediction, error) {
	identity, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: resolving identity: %w", err)
	}
	return s.history.History(ctx, identity.Address)
}

// HistoryFor returns another wallet's enriched prediction history.
func (s *PredictionService) HistoryFor(ctx context.Context, user common.Address) ([]domain.EnrichedPrediction, error) {
	return s.history.History(ctx, user)
}

// PayoutPreview computes what a winning stake would pay given the pool's
// current totals and the configured fee.
func (s *PredictionService) PayoutPreview(pool domain.Pool, threshold int64, direction domain.Direction, amount *big.Int) *big.Int {
	return domain.PayoutShare(pool, threshold, direction, amount, s.cfg.FeeBps)
}

func (s *PredictionService) auditLog(ctx context.Context, event string, fields map[string]any) {
	if err := s.audit.Log(ctx, event, fields); err != nil {
		s.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

var _ StakeSubmitter = (*ledger.Submitter)(nil)
var _ HistoryReader = (*ledger.HistoryClient)(nil)
var _ BalanceKeeper = (*ledger.BalanceLedger)(nil)
var _ IdentitySource = (*wallet.Guard)(nil)
