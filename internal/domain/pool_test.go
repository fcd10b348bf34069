package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resolvedPool(finalPrice int64) Pool {
	return Pool{
		ID:         1,
		Asset:      AssetBTC,
		Threshold:  4_500_000, // $45000.00
		Window:     WindowOneHour,
		AbovePool:  big.NewInt(300_000_000),
		BelowPool:  big.NewInt(100_000_000),
		Resolved:   true,
		FinalPrice: finalPrice,
	}
}

func TestResolveOutcome(t *testing.T) {
	tests := []struct {
		name       string
		pool       Pool
		threshold  int64
		direction  Direction
		want       Outcome
	}{
		{
			name:      "unresolved pool is pending",
			pool:      Pool{Resolved: false},
			threshold: 4_500_000,
			direction: DirectionAbove,
			want:      OutcomePending,
		},
		{
			name:      "above wins when price finishes above",
			pool:      resolvedPool(4_600_000),
			threshold: 4_500_000,
			direction: DirectionAbove,
			want:      OutcomeWin,
		},
		{
			name:      "below loses when price finishes above",
			pool:      resolvedPool(4_600_000),
			threshold: 4_500_000,
			direction: DirectionBelow,
			want:      OutcomeLoss,
		},
		{
			// Exact equality counts as NOT above: above loses, below wins.
			name:      "above loses on exact equality",
			pool:      resolvedPool(4_500_000),
			threshold: 4_500_000,
			direction: DirectionAbove,
			want:      OutcomeLoss,
		},
		{
			name:      "below wins on exact equality",
			pool:      resolvedPool(4_500_000),
			threshold: 4_500_000,
			direction: DirectionBelow,
			want:      OutcomeWin,
		},
		{
			name:      "below wins when price finishes below",
			pool:      resolvedPool(4_400_000),
			threshold: 4_500_000,
			direction: DirectionBelow,
			want:      OutcomeWin,
		},
		{
			// A stake's own threshold governs its outcome even when it
			// differs from the pool's.
			name:      "per-stake threshold wins against pool threshold",
			pool:      resolvedPool(4_550_000),
			threshold: 4_600_000,
			direction: DirectionBelow,
			want:      OutcomeWin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveOutcome(tt.pool, tt.threshold, tt.direction)
			assert.Equal(t, tt.want, got)

			// Pure function: identical inputs, identical output.
			assert.Equal(t, got, ResolveOutcome(tt.pool, tt.threshold, tt.direction))
		})
	}
}

func TestResolveOutcomeIgnoresPoolTotals(t *testing.T) {
	a := resolvedPool(4_600_000)
	b := resolvedPool(4_600_000)
	b.AbovePool = big.NewInt(1)
	b.BelowPool = big.NewInt(999_999_999_999)

	assert.Equal(t,
		ResolveOutcome(a, 4_500_000, DirectionAbove),
		ResolveOutcome(b, 4_500_000, DirectionAbove),
	)
}

func TestPayoutShare(t *testing.T) {
	pool := resolvedPool(4_600_000) // above side wins, 300 USDC above, 100 USDC below
	stake := big.NewInt(150_000_000)

	// 150 + 150 * 100*0.95 / 300 = 150 + 47.5
	got := PayoutShare(pool, pool.Threshold, DirectionAbove, stake, 500)
	assert.Equal(t, big.NewInt(197_500_000), got)

	// Losing side pays out nothing.
	got = PayoutShare(pool, pool.Threshold, DirectionBelow, stake, 500)
	assert.Equal(t, int64(0), got.Int64())

	// Unresolved pool has no payout yet.
	assert.Nil(t, PayoutShare(Pool{}, 4_500_000, DirectionAbove, stake, 500))

	// Empty winning side: the stake is simply returned.
	empty := resolvedPool(4_600_000)
	empty.AbovePool = big.NewInt(0)
	got = PayoutShare(empty, empty.Threshold, DirectionAbove, stake, 500)
	assert.Equal(t, stake.String(), got.String())
}

func TestPredictionInputValidate(t *testing.T) {
	valid := PredictionInput{
		Asset:     AssetETH,
		Threshold: 250_000,
		Direction: DirectionAbove,
		Window:    WindowTwentyFourHour,
		Token:     TokenUSDT,
		Amount:    big.NewInt(25_000_000),
	}
	assert.NoError(t, valid.Validate())

	zeroAmount := valid
	zeroAmount.Amount = big.NewInt(0)
	assert.ErrorIs(t, zeroAmount.Validate(), ErrInvalidPrediction)

	nilAmount := valid
	nilAmount.Amount = nil
	assert.ErrorIs(t, nilAmount.Validate(), ErrInvalidPrediction)

	badThreshold := valid
	badThreshold.Threshold = 0
	assert.ErrorIs(t, badThreshold.Validate(), ErrInvalidPrediction)

	badAsset := valid
	badAsset.Asset = "SHIB"
	assert.ErrorIs(t, badAsset.Validate(), ErrInvalidPrediction)
}

func TestDisplayIdentity(t *testing.T) {
	p := UserProfile{Wallet: "0xAbCdEf0123456789aBcDeF0123456789abcdef01"}
	assert.Equal(t, "0xAbCd…ef01", p.DisplayIdentity())

	p.DisplayName = "satoshi"
	assert.Equal(t, "satoshi", p.DisplayIdentity())
}
