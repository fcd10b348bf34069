package domain

import "math/big"

// Pool is the shared market for one (asset, threshold, window) combination.
// The ledger merges all stakes for the combination into a single pool and
// resolves it exactly once, fixing FinalPrice. AbovePool and BelowPool are
// the running stake totals on each side in the token's smallest unit.
type Pool struct {
	ID         uint64
	Asset      Asset
	Threshold  int64
	Window     Window
	AbovePool  *big.Int
	BelowPool  *big.Int
	Resolved   bool
	FinalPrice int64
}

// ResolveOutcome computes the settlement outcome of a single stake against
// its pool. It is a pure function of (pool.Resolved, pool.FinalPrice,
// threshold, direction): pool totals never influence win/loss.
//
// A final price exactly equal to the threshold counts as NOT above, so an
// ABOVE stake loses and a BELOW stake wins on exact equality.
func ResolveOutcome(pool Pool, threshold int64, direction Direction) Outcome {
	if !pool.Resolved {
		return OutcomePending
	}
	priceAbove := pool.FinalPrice > threshold
	if (direction == DirectionAbove) == priceAbove {
		return OutcomeWin
	}
	return OutcomeLoss
}

// PayoutShare reproduces the ledger's settlement arithmetic for display and
// local bookkeeping: winners get their stake back plus a pro-rata share of
// the losing side's pool after the fee (in basis points) is deducted.
//
// The result is display-only; the ledger's own settlement remains
// authoritative. Returns nil for an unresolved pool. A losing stake pays out
// zero. If the winning side is empty the stake itself is returned (nothing
// to split against).
func PayoutShare(pool Pool, threshold int64, direction Direction, amount *big.Int, feeBps int64) *big.Int {
	if !pool.Resolved || amount == nil {
		return nil
	}
	if ResolveOutcome(pool, threshold, direction) != OutcomeWin {
		return big.NewInt(0)
	}

	winning, losing := pool.AbovePool, pool.BelowPool
	if pool.FinalPrice <= pool.Threshold {
		winning, losing = pool.BelowPool, pool.AbovePool
	}
	if winning == nil || winning.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	if losing == nil {
		losing = big.NewInt(0)
	}

	// amount + amount * losing * (10000 - feeBps) / 10000 / winning
	share := new(big.Int).Mul(amount, losing)
	share.Mul(share, big.NewInt(10_000-feeBps))
	share.Div(share, big.NewInt(10_000))
	share.Div(share, winning)
	return share.Add(share, amount)
}
