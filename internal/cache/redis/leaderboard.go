package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// leaderboardKey is the sorted set holding points per identity.
const leaderboardKey = "leaderboard:points"

// Leaderboard implements domain.Leaderboard using a Redis sorted set keyed
// by wallet identity with the points total as score.
type Leaderboard struct {
	rdb *redis.Client
}

// NewLeaderboard creates a Leaderboard backed by the given Client.
func NewLeaderboard(c *Client) *Leaderboard {
	return &Leaderboard{rdb: c.Underlying()}
}

// SetScore records the identity's current points total. The watcher calls
// this with the authoritative on-chain value, so a plain ZADD (not ZINCRBY)
// keeps the board convergent.
func (l *Leaderboard) SetScore(ctx context.Context, identity string, points int64) error {
	member := redis.Z{Score: float64(points), Member: identity}
	if err := l.rdb.ZAdd(ctx, leaderboardKey, member).Err(); err != nil {
		return fmt.Errorf("redis: leaderboard set %s: %w", identity, err)
	}
	return nil
}

// Top returns the n highest-scoring identities, best first.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}

	members, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard top %d: %w", n, err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		identity, ok := m.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:     i + 1,
			Identity: identity,
			Points:   int64(m.Score),
		})
	}
	return entries, nil
}
