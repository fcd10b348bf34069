package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// PointsReader fetches on-chain points for leaderboard refreshes.
type PointsReader interface {
	UserPoints(ctx context.Context, user common.Address) (int64, error)
}

// WalletSource lists the wallets whose stakes the watcher tracks.
type WalletSource interface {
	TrackedWallets(ctx context.Context) ([]string, error)
}

// SettledNotifier announces settlements.
type SettledNotifier interface {
	StakeSettled(ctx context.Context, rec domain.StakeRecord) error
}

// WatcherConfig tunes the resolution watcher.
type WatcherConfig struct {
	// Interval between settlement sweeps.
	Interval time.Duration

	// ArchiveEvery is how often settled history is snapshotted to blob
	// storage; zero disables archival.
	ArchiveEvery time.Duration

	// ArchiveAge is the minimum age of a settlement before it is archived.
	ArchiveAge time.Duration
}

func (c *WatcherConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.ArchiveAge <= 0 {
		c.ArchiveAge = 30 * 24 * time.Hour
	}
}

// Watcher detects pending stakes whose pools have resolved, records the
// transitions, refreshes the leaderboard, and notifies. It drives the
// archiver on a slower cadence when one is configured.
type Watcher struct {
	history     HistoryReader
	points      PointsReader
	wallets     WalletSource
	settlements domain.SettlementStore
	leaderboard domain.Leaderboard
	notifier    SettledNotifier
	archiver    domain.Archiver
	cfg         WatcherConfig
	logger      *slog.Logger
}

// NewWatcher wires a Watcher. archiver may be nil to disable archival.
func NewWatcher(
	history HistoryReader,
	points PointsReader,
	wallets WalletSource,
	settlements domain.SettlementStore,
	leaderboard domain.Leaderboard,
	notifier SettledNotifier,
	archiver domain.Archiver,
	cfg WatcherConfig,
	logger *slog.Logger,
) *Watcher {
	cfg.applyDefaults()
	return &Watcher{
		history:     history,
		points:      points,
		wallets:     wallets,
		settlements: settlements,
		leaderboard: leaderboard,
		notifier:    notifier,
		archiver:    archiver,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "resolution_watcher")),
	}
}

// Run sweeps until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	var archiveTicker <-chan time.Time
	if w.archiver != nil && w.cfg.ArchiveEvery > 0 {
		t := time.NewTicker(w.cfg.ArchiveEvery)
		defer t.Stop()
		archiveTicker = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		case <-archiveTicker:
			w.archive(ctx)
		}
	}
}

// Sweep runs one settlement pass over every tracked wallet.
func (w *Watcher) Sweep(ctx context.Context) {
	wallets, err := w.wallets.TrackedWallets(ctx)
	if err != nil {
		w.logger.Warn("listing tracked wallets failed", slog.String("error", err.Error()))
		return
	}

	for _, walletHex := range wallets {
		if err := w.sweepWallet(ctx, walletHex); err != nil {
			w.logger.Warn("settlement sweep failed",
				slog.String("wallet", walletHex),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Watcher) sweepWallet(ctx context.Context, walletHex string) error {
	pending, err := w.settlements.ListUnsettled(ctx, walletHex)
	if err != nil {
		return fmt.Errorf("watcher: listing unsettled: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	addr := common.HexToAddress(walletHex)
	enriched, err := w.history.History(ctx, addr)
	if err != nil {
		return fmt.Errorf("watcher: fetching history: %w", err)
	}

	settledAny := false
	for _, rec := range pending {
		match, ok := matchSettled(rec, enriched)
		if !ok {
			continue
		}

		now := time.Now().UTC()
		if err := w.settlements.MarkSettled(ctx, rec.ID, match.Result, match.FinalPrice, now); err != nil {
			w.logger.Warn("marking settled failed",
				slog.String("submission_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		settledAny = true

		rec.Result = match.Result
		rec.FinalPrice = match.FinalPrice
		w.logger.Info("stake settled",
			slog.String("submission_id", rec.ID),
			slog.String("wallet", walletHex),
			slog.String("result", string(match.Result)),
			slog.Int64("final_price", match.FinalPrice),
		)
		if err := w.notifier.StakeSettled(ctx, rec); err != nil {
			w.logger.Warn("settlement notification failed", slog.String("error", err.Error()))
		}
	}

	if settledAny {
		w.refreshLeaderboard(ctx, walletHex, addr)
	}
	return nil
}

// matchSettled finds the settled ledger record corresponding to a local
// pending row. The ledger does not echo submission ids, so matching is by
// the stake's identifying parameters; among equal candidates the closest
// creation time wins.
func matchSettled(rec domain.StakeRecord, enriched []domain.EnrichedPrediction) (domain.EnrichedPrediction, bool) {
	var (
		best  domain.EnrichedPrediction
		found bool
	)
	for _, e := range enriched {
		if !e.Result.Settled() {
			continue
		}
		if e.Asset != rec.Asset || e.Threshold != rec.Threshold ||
			e.Direction != rec.Direction || e.Window != rec.Window ||
			e.Token != rec.Token || e.Amount.String() != rec.Amount {
			continue
		}
		if !found || closerTo(rec.CreatedAt, e.CreatedAt, best.CreatedAt) {
			best = e
			found = true
		}
	}
	return best, found
}

func closerTo(target, a, b time.Time) bool {
	return absDuration(a.Sub(target)) < absDuration(b.Sub(target))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (w *Watcher) refreshLeaderboard(ctx context.Context, walletHex string, addr common.Address) {
	points, err := w.points.UserPoints(ctx, addr)
	if err != nil {
		w.logger.Warn("points refresh failed",
			slog.String("wallet", walletHex),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := w.leaderboard.SetScore(ctx, walletHex, points); err != nil {
		w.logger.Warn("leaderboard update failed",
			slog.String("wallet", walletHex),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Watcher) archive(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.cfg.ArchiveAge)
	result, err := w.archiver.Archive(ctx, cutoff)
	if err != nil {
		w.logger.Error("archival run failed", slog.String("error", err.Error()))
		return
	}
	if result.Records > 0 {
		w.logger.Info("settled history archived",
			slog.String("path", result.Path),
			slog.Int("records", result.Records),
			slog.Int64("bytes", result.Bytes),
		)
	}
}
