package redis

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// balanceTTL bounds staleness even if the poller stops invalidating.
const balanceTTL = 5 * time.Minute

// BalanceCache implements domain.BalanceCache using Redis hashes. Each
// wallet's balances are stored at key "balance:{wallet}" with one field per
// token, values as decimal strings in the token's smallest unit.
type BalanceCache struct {
	rdb *redis.Client
}

// NewBalanceCache creates a BalanceCache backed by the given Client.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{rdb: c.Underlying()}
}

func balanceKey(wallet string) string {
	return "balance:" + wallet
}

// Get retrieves the cached balances for a wallet. It returns
// domain.ErrNotFound on a miss.
func (bc *BalanceCache) Get(ctx context.Context, wallet string) (domain.UserBalance, error) {
	vals, err := bc.rdb.HGetAll(ctx, balanceKey(wallet)).Result()
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("redis: get balance %s: %w", wallet, err)
	}
	if len(vals) == 0 {
		return domain.UserBalance{}, domain.ErrNotFound
	}

	usdc, err := parseBalanceField(vals, string(domain.TokenUSDC))
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("redis: balance %s: %w", wallet, err)
	}
	usdt, err := parseBalanceField(vals, string(domain.TokenUSDT))
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("redis: balance %s: %w", wallet, err)
	}

	return domain.UserBalance{USDC: usdc, USDT: usdt}, nil
}

func parseBalanceField(vals map[string]string, field string) (*big.Int, error) {
	raw, ok := vals[field]
	if !ok {
		return nil, domain.ErrNotFound
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed %s amount %q", field, raw)
	}
	return n, nil
}

// Set stores the wallet's balances with a staleness bound.
func (bc *BalanceCache) Set(ctx context.Context, wallet string, bal domain.UserBalance) error {
	key := balanceKey(wallet)
	fields := map[string]any{
		string(domain.TokenUSDC): bal.USDC.String(),
		string(domain.TokenUSDT): bal.USDT.String(),
	}

	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, balanceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", wallet, err)
	}
	return nil
}

// Invalidate drops the wallet's cached balances.
func (bc *BalanceCache) Invalidate(ctx context.Context, wallet string) error {
	if err := bc.rdb.Del(ctx, balanceKey(wallet)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balance %s: %w", wallet, err)
	}
	return nil
}
