package domain

import (
	"context"
	"io"
	"time"
)

// StakeRecord is the local bookkeeping row for one submitted stake. The
// ledger owns the authoritative copy; these rows exist so the watcher can
// detect pending-to-settled transitions and the archiver can snapshot
// settled history.
type StakeRecord struct {
	ID         string // submission id (uuid)
	Wallet     string
	TxHash     string
	Asset      Asset
	Threshold  int64
	Direction  Direction
	Window     Window
	Token      Token
	Amount     string // smallest unit, decimal string
	PoolID     uint64
	Result     Outcome
	FinalPrice int64
	CreatedAt  time.Time
	SettledAt  *time.Time
}

// SettlementStore persists stake records and their settlement transitions.
type SettlementStore interface {
	RecordStake(ctx context.Context, rec StakeRecord) error
	// MarkSettled sets the final outcome exactly once; calling it again for
	// the same id is a no-op.
	MarkSettled(ctx context.Context, id string, result Outcome, finalPrice int64, settledAt time.Time) error
	ListUnsettled(ctx context.Context, wallet string) ([]StakeRecord, error)
	ListByWallet(ctx context.Context, wallet string, limit int) ([]StakeRecord, error)
	// ListSettledBefore returns settled records with settled_at strictly
	// before the cutoff, for archival.
	ListSettledBefore(ctx context.Context, before time.Time) ([]StakeRecord, error)
}

// ProfileStore persists chosen display names.
type ProfileStore interface {
	// Get returns ErrNotFound when the wallet has no stored profile.
	Get(ctx context.Context, wallet string) (UserProfile, error)
	Upsert(ctx context.Context, wallet, displayName string) error
}

// AuditStore appends structured audit events.
type AuditStore interface {
	Log(ctx context.Context, event string, fields map[string]any) error
}

// BalanceCache caches per-wallet ledger balances between polls.
type BalanceCache interface {
	// Get returns ErrNotFound on a cache miss.
	Get(ctx context.Context, wallet string) (UserBalance, error)
	Set(ctx context.Context, wallet string, bal UserBalance) error
	Invalidate(ctx context.Context, wallet string) error
}

// Leaderboard maintains the points ranking.
type Leaderboard interface {
	SetScore(ctx context.Context, identity string, points int64) error
	Top(ctx context.Context, n int) ([]LeaderboardEntry, error)
}

// RateLimiter bounds the rate of an operation per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ArchiveResult summarizes one archival run.
type ArchiveResult struct {
	Path    string
	Records int
	Bytes   int64
}

// Archiver snapshots settled stake records to blob storage.
type Archiver interface {
	Archive(ctx context.Context, before time.Time) (ArchiveResult, error)
}
