package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a ProfileStore backed by the given pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Get returns the stored profile for a wallet, or domain.ErrNotFound.
func (s *ProfileStore) Get(ctx context.Context, wallet string) (domain.UserProfile, error) {
	const query = `SELECT wallet, display_name FROM user_profiles WHERE wallet = $1`

	var p domain.UserProfile
	err := s.pool.QueryRow(ctx, query, wallet).Scan(&p.Wallet, &p.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, fmt.Errorf("postgres: profile for %s: %w", wallet, domain.ErrNotFound)
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("postgres: get profile %s: %w", wallet, err)
	}
	return p, nil
}

// Upsert stores or replaces the wallet's chosen display name.
func (s *ProfileStore) Upsert(ctx context.Context, wallet, displayName string) error {
	const query = `
		INSERT INTO user_profiles (wallet, display_name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (wallet) DO UPDATE
		SET display_name = EXCLUDED.display_name, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, wallet, displayName); err != nil {
		return fmt.Errorf("postgres: upsert profile %s: %w", wallet, err)
	}
	return nil
}
