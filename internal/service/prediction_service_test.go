package service

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/wallet"
)

type stubIdentity struct {
	identity wallet.Identity
	err      error
}

func (s *stubIdentity) CurrentIdentity(context.Context) (wallet.Identity, error) {
	return s.identity, s.err
}

func (s *stubIdentity) EnsureTargetChain(context.Context) error { return s.err }

type stubSubmitter struct {
	err   error
	calls int
}

func (s *stubSubmitter) Submit(_ context.Context, in domain.PredictionInput) (*domain.PredictionReceipt, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.PredictionReceipt{
		SubmissionID: uuid.NewString(),
		TxHash:       "0xdeadbeef",
		Input:        in,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

type stubBalances struct {
	insufficient bool
	invalidated  int
}

func (s *stubBalances) Balance(context.Context, common.Address) (domain.UserBalance, error) {
	return domain.UserBalance{USDC: big.NewInt(0), USDT: big.NewInt(0)}, nil
}

func (s *stubBalances) CheckSufficient(context.Context, common.Address, domain.Token, *big.Int) error {
	if s.insufficient {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (s *stubBalances) Invalidate(context.Context, common.Address) { s.invalidated++ }

type stubLimiter struct {
	allowed bool
}

func (s *stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return s.allowed, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

type quietNotifier struct{}

func (quietNotifier) Notify(context.Context, string, string, string) error { return nil }
func (quietNotifier) StakeSubmitted(context.Context, *domain.PredictionReceipt) error {
	return nil
}

func submitInput() domain.PredictionInput {
	return domain.PredictionInput{
		Asset:     domain.AssetETH,
		Threshold: 250_000,
		Direction: domain.DirectionBelow,
		Window:    domain.WindowTwentyFourHour,
		Token:     domain.TokenUSDT,
		Amount:    big.NewInt(5_000_000),
	}
}

func newPredictionService(
	submitter *stubSubmitter,
	balances *stubBalances,
	limiter *stubLimiter,
	settlements *memSettlements,
	audit *memAudit,
) *PredictionService {
	identity := &stubIdentity{identity: wallet.Identity{
		Address: common.HexToAddress(watcherWallet),
		ChainID: 84532,
	}}
	return NewPredictionService(identity, submitter, &stubHistory{}, balances,
		settlements, audit, limiter, quietNotifier{}, PredictionConfig{},
		slog.New(slog.DiscardHandler))
}

func TestSubmitRecordsAndInvalidates(t *testing.T) {
	submitter := &stubSubmitter{}
	balances := &stubBalances{}
	settlements := newMemSettlements()
	audit := &memAudit{}

	svc := newPredictionService(submitter, balances, &stubLimiter{allowed: true}, settlements, audit)

	receipt, err := svc.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	rec := settlements.get(receipt.SubmissionID)
	assert.Equal(t, domain.OutcomePending, rec.Result)
	assert.Equal(t, "5000000", rec.Amount)
	assert.Equal(t, 1, balances.invalidated)
	assert.Contains(t, audit.events, "stake.submitted")
}

func TestSubmitRejectsWhenRateLimited(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newPredictionService(submitter, &stubBalances{}, &stubLimiter{allowed: false},
		newMemSettlements(), &memAudit{})

	_, err := svc.Submit(context.Background(), submitInput())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Zero(t, submitter.calls)
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newPredictionService(submitter, &stubBalances{insufficient: true},
		&stubLimiter{allowed: true}, newMemSettlements(), &memAudit{})

	_, err := svc.Submit(context.Background(), submitInput())
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, submitter.calls)
}

func TestSubmitAuditsFailures(t *testing.T) {
	submitter := &stubSubmitter{err: domain.ErrUserRejected}
	balances := &stubBalances{}
	audit := &memAudit{}

	svc := newPredictionService(submitter, balances, &stubLimiter{allowed: true},
		newMemSettlements(), audit)

	_, err := svc.Submit(context.Background(), submitInput())
	assert.ErrorIs(t, err, domain.ErrUserRejected)
	assert.Contains(t, audit.events, "stake.failed")
	// A failed submit must not drop the cached balance.
	assert.Zero(t, balances.invalidated)
}

func TestSubmitValidatesFirst(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newPredictionService(submitter, &stubBalances{}, &stubLimiter{allowed: true},
		newMemSettlements(), &memAudit{})

	in := submitInput()
	in.Threshold = -5
	_, err := svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidPrediction)
	assert.Zero(t, submitter.calls)
}
