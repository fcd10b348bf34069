package service

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

type memSettlements struct {
	mu   sync.Mutex
	recs map[string]domain.StakeRecord
}

func newMemSettlements() *memSettlements {
	return &memSettlements{recs: make(map[string]domain.StakeRecord)}
}

func (m *memSettlements) RecordStake(_ context.Context, rec domain.StakeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		m.recs[rec.ID] = rec
	}
	return nil
}

func (m *memSettlements) MarkSettled(_ context.Context, id string, result domain.Outcome, finalPrice int64, settledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok || rec.SettledAt != nil {
		return nil
	}
	rec.Result = result
	rec.FinalPrice = finalPrice
	rec.SettledAt = &settledAt
	m.recs[id] = rec
	return nil
}

func (m *memSettlements) ListUnsettled(_ context.Context, wallet string) ([]domain.StakeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StakeRecord
	for _, rec := range m.recs {
		if rec.Wallet == wallet && rec.Result == domain.OutcomePending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memSettlements) ListByWallet(_ context.Context, wallet string, _ int) ([]domain.StakeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StakeRecord
	for _, rec := range m.recs {
		if rec.Wallet == wallet {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memSettlements) ListSettledBefore(_ context.Context, before time.Time) ([]domain.StakeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StakeRecord
	for _, rec := range m.recs {
		if rec.SettledAt != nil && rec.SettledAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memSettlements) TrackedWallets(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, rec := range m.recs {
		if !seen[rec.Wallet] {
			seen[rec.Wallet] = true
			out = append(out, rec.Wallet)
		}
	}
	return out, nil
}

func (m *memSettlements) get(id string) domain.StakeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[id]
}

type stubHistory struct {
	enriched []domain.EnrichedPrediction
}

func (s *stubHistory) History(context.Context, common.Address) ([]domain.EnrichedPrediction, error) {
	return s.enriched, nil
}

type stubPoints struct{ points int64 }

func (s *stubPoints) UserPoints(context.Context, common.Address) (int64, error) {
	return s.points, nil
}

type memLeaderboard struct {
	mu     sync.Mutex
	scores map[string]int64
}

func (m *memLeaderboard) SetScore(_ context.Context, identity string, points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores == nil {
		m.scores = make(map[string]int64)
	}
	m.scores[identity] = points
	return nil
}

func (m *memLeaderboard) Top(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	settled []domain.StakeRecord
}

func (r *recordingNotifier) StakeSettled(_ context.Context, rec domain.StakeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, rec)
	return nil
}

const watcherWallet = "0x1111111111111111111111111111111111111111"

func pendingRecord(id string, created time.Time) domain.StakeRecord {
	return domain.StakeRecord{
		ID:        id,
		Wallet:    watcherWallet,
		TxHash:    "0xabc",
		Asset:     domain.AssetBTC,
		Threshold: 4_500_000,
		Direction: domain.DirectionAbove,
		Window:    domain.WindowOneHour,
		Token:     domain.TokenUSDC,
		Amount:    "10000000",
		Result:    domain.OutcomePending,
		CreatedAt: created,
	}
}

func enrichedFor(rec domain.StakeRecord, result domain.Outcome, finalPrice int64) domain.EnrichedPrediction {
	return domain.EnrichedPrediction{
		Prediction: domain.Prediction{
			Asset:     rec.Asset,
			Threshold: rec.Threshold,
			Direction: rec.Direction,
			Window:    rec.Window,
			Token:     rec.Token,
			Amount:    big.NewInt(10_000_000),
			PoolID:    7,
			CreatedAt: rec.CreatedAt,
		},
		Result:     result,
		FinalPrice: finalPrice,
	}
}

func TestWatcherSettlesPendingStakes(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := pendingRecord("sub-1", created)

	settlements := newMemSettlements()
	require.NoError(t, settlements.RecordStake(context.Background(), rec))

	history := &stubHistory{enriched: []domain.EnrichedPrediction{
		enrichedFor(rec, domain.OutcomeWin, 4_600_000),
	}}
	board := &memLeaderboard{}
	notifier := &recordingNotifier{}

	w := NewWatcher(history, &stubPoints{points: 120}, settlements, settlements, board,
		notifier, nil, WatcherConfig{}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())

	got := settlements.get("sub-1")
	assert.Equal(t, domain.OutcomeWin, got.Result)
	assert.Equal(t, int64(4_600_000), got.FinalPrice)
	require.NotNil(t, got.SettledAt)

	assert.Equal(t, int64(120), board.scores[watcherWallet])
	require.Len(t, notifier.settled, 1)
	assert.Equal(t, "sub-1", notifier.settled[0].ID)
}

func TestWatcherIgnoresPendingAndUnknownResults(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := pendingRecord("sub-1", created)

	settlements := newMemSettlements()
	require.NoError(t, settlements.RecordStake(context.Background(), rec))

	history := &stubHistory{enriched: []domain.EnrichedPrediction{
		enrichedFor(rec, domain.OutcomePending, 0),
		enrichedFor(rec, domain.OutcomeUnknown, 0),
	}}
	notifier := &recordingNotifier{}

	w := NewWatcher(history, &stubPoints{}, settlements, settlements, &memLeaderboard{},
		notifier, nil, WatcherConfig{}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())

	got := settlements.get("sub-1")
	assert.Equal(t, domain.OutcomePending, got.Result)
	assert.Nil(t, got.SettledAt)
	assert.Empty(t, notifier.settled)
}

func TestWatcherSweepIsIdempotent(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := pendingRecord("sub-1", created)

	settlements := newMemSettlements()
	require.NoError(t, settlements.RecordStake(context.Background(), rec))

	history := &stubHistory{enriched: []domain.EnrichedPrediction{
		enrichedFor(rec, domain.OutcomeLoss, 4_400_000),
	}}
	notifier := &recordingNotifier{}

	w := NewWatcher(history, &stubPoints{}, settlements, settlements, &memLeaderboard{},
		notifier, nil, WatcherConfig{}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())
	w.Sweep(context.Background())

	// Settled once, notified once.
	assert.Len(t, notifier.settled, 1)
}

func TestMatchSettledPrefersClosestCreation(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := pendingRecord("sub-1", created)

	far := enrichedFor(rec, domain.OutcomeLoss, 4_400_000)
	far.CreatedAt = created.Add(-48 * time.Hour)
	near := enrichedFor(rec, domain.OutcomeWin, 4_600_000)
	near.CreatedAt = created.Add(2 * time.Minute)

	match, ok := matchSettled(rec, []domain.EnrichedPrediction{far, near})
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeWin, match.Result)
}
