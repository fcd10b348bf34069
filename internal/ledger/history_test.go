package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/ledger"
)

type fakeLedgerReader struct {
	bets     []domain.Prediction
	betsErr  error
	pools    map[uint64]domain.Pool
	poolErrs map[uint64]error
}

func (f *fakeLedgerReader) UserBets(context.Context, common.Address) ([]domain.Prediction, error) {
	if f.betsErr != nil {
		return nil, f.betsErr
	}
	return f.bets, nil
}

func (f *fakeLedgerReader) PoolDetail(_ context.Context, poolID uint64) (domain.Pool, error) {
	if err := f.poolErrs[poolID]; err != nil {
		return domain.Pool{}, err
	}
	pool, ok := f.pools[poolID]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return pool, nil
}

func bet(poolID uint64, createdAt time.Time) domain.Prediction {
	return domain.Prediction{
		Asset:     domain.AssetBTC,
		Threshold: 4_500_000,
		Direction: domain.DirectionAbove,
		Window:    domain.WindowOneHour,
		Token:     domain.TokenUSDC,
		Amount:    big.NewInt(10_000_000),
		PoolID:    poolID,
		CreatedAt: createdAt,
	}
}

func settledPool(id uint64, finalPrice int64) domain.Pool {
	return domain.Pool{
		ID:         id,
		Asset:      domain.AssetBTC,
		Threshold:  4_500_000,
		Window:     domain.WindowOneHour,
		AbovePool:  big.NewInt(300_000_000),
		BelowPool:  big.NewInt(100_000_000),
		Resolved:   true,
		FinalPrice: finalPrice,
	}
}

func TestHistoryEnrichesAndOrders(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeLedgerReader{
		// Ledger order is oldest first; History must not rely on it.
		bets: []domain.Prediction{
			bet(1, base),
			bet(2, base.Add(time.Hour)),
			bet(3, base.Add(2*time.Hour)),
		},
		pools: map[uint64]domain.Pool{
			1: settledPool(1, 4_600_000),
			2: settledPool(2, 4_400_000),
			3: {ID: 3, Asset: domain.AssetBTC, Threshold: 4_500_000, Window: domain.WindowOneHour,
				AbovePool: big.NewInt(0), BelowPool: big.NewInt(0)},
		},
	}

	h := ledger.NewHistoryClient(reader, slog.New(slog.DiscardHandler))
	got, err := h.History(context.Background(), common.Address{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Most recent first.
	assert.Equal(t, uint64(3), got[0].PoolID)
	assert.Equal(t, uint64(2), got[1].PoolID)
	assert.Equal(t, uint64(1), got[2].PoolID)

	assert.Equal(t, domain.OutcomePending, got[0].Result)
	assert.Equal(t, domain.OutcomeLoss, got[1].Result)
	assert.Equal(t, domain.OutcomeWin, got[2].Result)
	assert.Equal(t, int64(4_600_000), got[2].FinalPrice)
}

func TestHistoryDegradesFailedPoolToUnknown(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeLedgerReader{
		bets: []domain.Prediction{
			bet(1, base),
			bet(2, base.Add(time.Hour)),
			bet(3, base.Add(2*time.Hour)),
		},
		pools: map[uint64]domain.Pool{
			1: settledPool(1, 4_600_000),
			3: settledPool(3, 4_600_000),
		},
		poolErrs: map[uint64]error{
			2: errors.New("rpc probe failed"),
		},
	}

	h := ledger.NewHistoryClient(reader, slog.New(slog.DiscardHandler))
	got, err := h.History(context.Background(), common.Address{})
	require.NoError(t, err)

	// One bad pool never hides the rest of the history.
	require.Len(t, got, 3)
	assert.Equal(t, domain.OutcomeWin, got[0].Result)
	assert.Equal(t, domain.OutcomeUnknown, got[1].Result)
	assert.Equal(t, domain.OutcomeWin, got[2].Result)
}

func TestHistoryEmpty(t *testing.T) {
	h := ledger.NewHistoryClient(&fakeLedgerReader{}, slog.New(slog.DiscardHandler))
	got, err := h.History(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryLedgerFailurePropagates(t *testing.T) {
	reader := &fakeLedgerReader{betsErr: domain.ErrProviderUnavailable}
	h := ledger.NewHistoryClient(reader, slog.New(slog.DiscardHandler))
	_, err := h.History(context.Background(), common.Address{})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
