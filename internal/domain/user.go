package domain

import "math/big"

// UserBalance is the spendable ledger balance per supported token, in the
// token's smallest unit. It is a read-through copy: the ledger's balance is
// always authoritative.
type UserBalance struct {
	USDC *big.Int
	USDT *big.Int
}

// Of returns the balance for the given token.
func (b UserBalance) Of(t Token) *big.Int {
	if t == TokenUSDT {
		return b.USDT
	}
	return b.USDC
}

// UserProfile is a user's display identity and points total. Points
// accumulate only through resolved winning stakes.
type UserProfile struct {
	Wallet      string
	DisplayName string
	TotalPoints int64
}

// DisplayIdentity returns the chosen display name, falling back to a
// shortened wallet address when none was set.
func (p UserProfile) DisplayIdentity() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return ShortAddress(p.Wallet)
}

// ShortAddress abbreviates a 0x-prefixed address for display, keeping the
// first and last four hex digits.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// LeaderboardEntry is one row of the points leaderboard, best rank first.
type LeaderboardEntry struct {
	Rank     int
	Identity string
	Points   int64
}
