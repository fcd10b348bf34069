package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementSelectCols = `id, wallet, tx_hash, asset, threshold, direction,
	time_window, token, amount::text, pool_id, result, final_price,
	created_at, settled_at`

func scanSettlementRows(rows pgx.Rows) ([]domain.StakeRecord, error) {
	var recs []domain.StakeRecord
	for rows.Next() {
		var r domain.StakeRecord
		if err := rows.Scan(
			&r.ID, &r.Wallet, &r.TxHash, &r.Asset, &r.Threshold, &r.Direction,
			&r.Window, &r.Token, &r.Amount, &r.PoolID, &r.Result, &r.FinalPrice,
			&r.CreatedAt, &r.SettledAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// RecordStake inserts one stake row. Re-recording the same submission id is
// a no-op so a retried bookkeeping write never duplicates the row.
func (s *SettlementStore) RecordStake(ctx context.Context, rec domain.StakeRecord) error {
	const query = `
		INSERT INTO settlements (
			id, wallet, tx_hash, asset, threshold, direction,
			time_window, token, amount, pool_id, result, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Wallet, rec.TxHash, rec.Asset, rec.Threshold, rec.Direction,
		rec.Window, rec.Token, rec.Amount, rec.PoolID, rec.Result, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record stake %s: %w", rec.ID, err)
	}
	return nil
}

// MarkSettled sets the final outcome exactly once. Rows already settled are
// left untouched, which keeps the transition idempotent for the watcher.
func (s *SettlementStore) MarkSettled(ctx context.Context, id string, result domain.Outcome, finalPrice int64, settledAt time.Time) error {
	const query = `
		UPDATE settlements
		SET result = $2, final_price = $3, settled_at = $4
		WHERE id = $1 AND settled_at IS NULL`

	_, err := s.pool.Exec(ctx, query, id, result, finalPrice, settledAt)
	if err != nil {
		return fmt.Errorf("postgres: mark settled %s: %w", id, err)
	}
	return nil
}

// ListUnsettled returns the wallet's rows still awaiting resolution.
func (s *SettlementStore) ListUnsettled(ctx context.Context, wallet string) ([]domain.StakeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements
		WHERE wallet = $1 AND result = 'pending'
		ORDER BY created_at ASC`, settlementSelectCols)

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsettled for %s: %w", wallet, err)
	}
	defer rows.Close()

	recs, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unsettled rows: %w", err)
	}
	return recs, nil
}

// ListByWallet returns the wallet's most recent rows, newest first.
func (s *SettlementStore) ListByWallet(ctx context.Context, wallet string, limit int) ([]domain.StakeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM settlements
		WHERE wallet = $1
		ORDER BY created_at DESC
		LIMIT $2`, settlementSelectCols)

	rows, err := s.pool.Query(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for %s: %w", wallet, err)
	}
	defer rows.Close()

	recs, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stake rows: %w", err)
	}
	return recs, nil
}

// ListSettledBefore returns settled rows with settled_at strictly before the
// cutoff, oldest first, for archival.
func (s *SettlementStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.StakeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM settlements
		WHERE settled_at IS NOT NULL AND settled_at < $1
		ORDER BY settled_at ASC`, settlementSelectCols)

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled before %s: %w", before, err)
	}
	defer rows.Close()

	recs, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled rows: %w", err)
	}
	return recs, nil
}

// TrackedWallets returns every wallet with at least one recorded stake. The
// balance poller and the resolution watcher both iterate this set.
func (s *SettlementStore) TrackedWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT wallet FROM settlements`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracked wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
