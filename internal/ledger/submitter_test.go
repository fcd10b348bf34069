package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/ledger"
	"github.com/pricepoolhq/poolbot/internal/wallet"
)

type fakeGuard struct {
	identity    wallet.Identity
	ensureErr   error
	identityErr error
	ensureCalls int
}

func (f *fakeGuard) CurrentIdentity(context.Context) (wallet.Identity, error) {
	if f.identityErr != nil {
		return wallet.Identity{}, f.identityErr
	}
	return f.identity, nil
}

func (f *fakeGuard) EnsureTargetChain(context.Context) error {
	f.ensureCalls++
	return f.ensureErr
}

type fakeAllowancer struct {
	current        *big.Int
	currentErr     error
	authorizeErr   error
	authorizeCalls int
	currentCalls   int
}

func (f *fakeAllowancer) CurrentAllowance(context.Context, domain.Token, common.Address) (*big.Int, error) {
	f.currentCalls++
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	return new(big.Int).Set(f.current), nil
}

func (f *fakeAllowancer) Authorize(context.Context, domain.Token, common.Address, *big.Int) error {
	f.authorizeCalls++
	return f.authorizeErr
}

type fakePlacer struct {
	txHash     common.Hash
	placeErr   error
	minedErr   error
	placeCalls int
	waitCalls  int
}

func (f *fakePlacer) PlaceBet(context.Context, common.Address, domain.PredictionInput) (common.Hash, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return common.Hash{}, f.placeErr
	}
	return f.txHash, nil
}

func (f *fakePlacer) WaitMined(context.Context, common.Hash) error {
	f.waitCalls++
	return f.minedErr
}

func validInput() domain.PredictionInput {
	return domain.PredictionInput{
		Asset:     domain.AssetBTC,
		Threshold: 4_500_000,
		Direction: domain.DirectionAbove,
		Window:    domain.WindowOneHour,
		Token:     domain.TokenUSDC,
		Amount:    big.NewInt(25_000_000),
	}
}

func newSubmitter(g *fakeGuard, a *fakeAllowancer, p *fakePlacer) *ledger.Submitter {
	return ledger.NewSubmitter(g, a, p, slog.New(slog.DiscardHandler))
}

func phaseOf(t *testing.T, err error) ledger.Phase {
	t.Helper()
	var perr *ledger.PhaseError
	require.ErrorAs(t, err, &perr)
	return perr.Phase
}

func TestSubmitHappyPathWithApproval(t *testing.T) {
	guard := &fakeGuard{identity: wallet.Identity{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainID: 84532,
	}}
	allow := &fakeAllowancer{current: big.NewInt(0)}
	placer := &fakePlacer{txHash: common.HexToHash("0xabc123")}

	receipt, err := newSubmitter(guard, allow, placer).Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, 1, guard.ensureCalls)
	assert.Equal(t, 1, allow.authorizeCalls)
	assert.Equal(t, 1, placer.placeCalls)
	assert.Equal(t, 1, placer.waitCalls)
	assert.NotEmpty(t, receipt.SubmissionID)
	assert.Equal(t, placer.txHash.Hex(), receipt.TxHash)
}

func TestSubmitSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	guard := &fakeGuard{identity: wallet.Identity{ChainID: 84532}}
	allow := &fakeAllowancer{current: big.NewInt(25_000_000)}
	placer := &fakePlacer{}

	_, err := newSubmitter(guard, allow, placer).Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.Zero(t, allow.authorizeCalls)
	assert.Equal(t, 1, placer.placeCalls)
}

func TestSubmitValidationFailsBeforeAnyCall(t *testing.T) {
	guard := &fakeGuard{}
	allow := &fakeAllowancer{}
	placer := &fakePlacer{}

	in := validInput()
	in.Amount = big.NewInt(0)

	_, err := newSubmitter(guard, allow, placer).Submit(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidPrediction)
	assert.Equal(t, ledger.PhaseValidating, phaseOf(t, err))

	// Fail-fast means zero network traffic.
	assert.Zero(t, guard.ensureCalls)
	assert.Zero(t, allow.currentCalls)
	assert.Zero(t, placer.placeCalls)
}

func TestSubmitGuardFailureAbortsBeforeAllowance(t *testing.T) {
	guard := &fakeGuard{ensureErr: domain.ErrChainUnavailable}
	allow := &fakeAllowancer{}
	placer := &fakePlacer{}

	_, err := newSubmitter(guard, allow, placer).Submit(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrChainUnavailable)
	assert.Equal(t, ledger.PhaseGuardingChain, phaseOf(t, err))
	assert.Zero(t, allow.currentCalls)
	assert.Zero(t, placer.placeCalls)
}

func TestSubmitPhaseTagging(t *testing.T) {
	boom := errors.New("rpc probe failed")

	tests := []struct {
		name      string
		guard     *fakeGuard
		allow     *fakeAllowancer
		placer    *fakePlacer
		wantPhase ledger.Phase
	}{
		{
			name:      "allowance read failure",
			guard:     &fakeGuard{},
			allow:     &fakeAllowancer{currentErr: boom},
			placer:    &fakePlacer{},
			wantPhase: ledger.PhaseCheckingAllowance,
		},
		{
			name:      "authorization failure",
			guard:     &fakeGuard{},
			allow:     &fakeAllowancer{current: big.NewInt(0), authorizeErr: boom},
			placer:    &fakePlacer{},
			wantPhase: ledger.PhaseAuthorizing,
		},
		{
			name:      "submission failure",
			guard:     &fakeGuard{},
			allow:     &fakeAllowancer{current: big.NewInt(100_000_000)},
			placer:    &fakePlacer{placeErr: boom},
			wantPhase: ledger.PhaseSubmitting,
		},
		{
			name:      "confirmation failure",
			guard:     &fakeGuard{},
			allow:     &fakeAllowancer{current: big.NewInt(100_000_000)},
			placer:    &fakePlacer{minedErr: domain.ErrTxReverted},
			wantPhase: ledger.PhaseConfirming,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSubmitter(tt.guard, tt.allow, tt.placer).Submit(context.Background(), validInput())
			require.Error(t, err)
			assert.Equal(t, tt.wantPhase, phaseOf(t, err))
			// The original cause is preserved verbatim.
			assert.True(t, errors.Is(err, boom) || errors.Is(err, domain.ErrTxReverted))
		})
	}
}

func TestSubmitUserRejectionPropagates(t *testing.T) {
	guard := &fakeGuard{}
	allow := &fakeAllowancer{current: big.NewInt(0), authorizeErr: domain.ErrUserRejected}
	placer := &fakePlacer{}

	_, err := newSubmitter(guard, allow, placer).Submit(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrUserRejected)
	assert.Equal(t, ledger.PhaseAuthorizing, phaseOf(t, err))
	assert.Zero(t, placer.placeCalls)
}
