package ledger_test

import (
	"context"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/ledger"
)

// fakeTokenLedger tracks allowances in memory the way the token contract
// would.
type fakeTokenLedger struct {
	allowances   map[string]*big.Int
	approveCalls int
	approveErr   error
}

func newFakeTokenLedger() *fakeTokenLedger {
	return &fakeTokenLedger{allowances: make(map[string]*big.Int)}
}

func (f *fakeTokenLedger) key(token domain.Token, owner common.Address) string {
	return string(token) + "/" + owner.Hex()
}

func (f *fakeTokenLedger) TokenAllowance(_ context.Context, token domain.Token, owner common.Address) (*big.Int, error) {
	if a, ok := f.allowances[f.key(token, owner)]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeTokenLedger) ApproveToken(_ context.Context, token domain.Token, owner common.Address, amount *big.Int) error {
	f.approveCalls++
	if f.approveErr != nil {
		return f.approveErr
	}
	f.allowances[f.key(token, owner)] = new(big.Int).Set(amount)
	return nil
}

func TestEnsureAllowanceApprovesExactAmount(t *testing.T) {
	tokens := newFakeTokenLedger()
	coord := ledger.NewAllowanceCoordinator(tokens, slog.New(slog.DiscardHandler))
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := big.NewInt(25_000_000)

	approved, err := coord.EnsureAllowance(context.Background(), domain.TokenUSDC, owner, amount)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, 1, tokens.approveCalls)

	got, err := tokens.TokenAllowance(context.Background(), domain.TokenUSDC, owner)
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(amount))
}

func TestEnsureAllowanceIsIdempotent(t *testing.T) {
	tokens := newFakeTokenLedger()
	coord := ledger.NewAllowanceCoordinator(tokens, slog.New(slog.DiscardHandler))
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := big.NewInt(25_000_000)

	_, err := coord.EnsureAllowance(context.Background(), domain.TokenUSDC, owner, amount)
	require.NoError(t, err)

	// A dangling approval from an earlier attempt is reused, not stacked.
	approved, err := coord.EnsureAllowance(context.Background(), domain.TokenUSDC, owner, amount)
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t, 1, tokens.approveCalls)
}

func TestEnsureAllowanceTopsUpShortfall(t *testing.T) {
	tokens := newFakeTokenLedger()
	coord := ledger.NewAllowanceCoordinator(tokens, slog.New(slog.DiscardHandler))
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	_, err := coord.EnsureAllowance(context.Background(), domain.TokenUSDT, owner, big.NewInt(10_000_000))
	require.NoError(t, err)

	// A larger stake needs a fresh approval for the new exact amount.
	approved, err := coord.EnsureAllowance(context.Background(), domain.TokenUSDT, owner, big.NewInt(40_000_000))
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, 2, tokens.approveCalls)

	got, err := tokens.TokenAllowance(context.Background(), domain.TokenUSDT, owner)
	require.NoError(t, err)
	assert.Equal(t, "40000000", got.String())
}

func TestEnsureAllowanceApprovalFailure(t *testing.T) {
	tokens := newFakeTokenLedger()
	tokens.approveErr = domain.ErrUserRejected
	coord := ledger.NewAllowanceCoordinator(tokens, slog.New(slog.DiscardHandler))
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	approved, err := coord.EnsureAllowance(context.Background(), domain.TokenUSDC, owner, big.NewInt(5_000_000))
	assert.ErrorIs(t, err, domain.ErrUserRejected)
	assert.False(t, approved)
}
