package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// defaultPoolFetchLimit bounds how many pool lookups run concurrently.
const defaultPoolFetchLimit = 8

// LedgerReader is the contract-client slice the history path reads from.
type LedgerReader interface {
	UserBets(ctx context.Context, user common.Address) ([]domain.Prediction, error)
	PoolDetail(ctx context.Context, poolID uint64) (domain.Pool, error)
}

// HistoryClient composes a user's stakes with their pools' settlement state.
type HistoryClient struct {
	reader     LedgerReader
	fetchLimit int
	logger     *slog.Logger
}

// NewHistoryClient creates a HistoryClient over a ledger reader.
func NewHistoryClient(reader LedgerReader, logger *slog.Logger) *HistoryClient {
	return &HistoryClient{
		reader:     reader,
		fetchLimit: defaultPoolFetchLimit,
		logger:     logger.With(slog.String("component", "history_client")),
	}
}

// History returns the user's stakes enriched with settlement outcomes, most
// recent first. Pool lookups run concurrently with a bounded fan-out; a
// failed lookup degrades only its own record to an unknown result, so one
// bad pool never hides the rest of the history.
func (h *HistoryClient) History(ctx context.Context, user common.Address) ([]domain.EnrichedPrediction, error) {
	bets, err := h.reader.UserBets(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("history: fetching stakes for %s: %w", user.Hex(), err)
	}

	enriched := make([]domain.EnrichedPrediction, len(bets))

	var g errgroup.Group
	g.SetLimit(h.fetchLimit)
	for i, bet := range bets {
		g.Go(func() error {
			enriched[i] = h.enrich(ctx, bet)
			return nil
		})
	}
	// Workers never return errors; degradation is per record.
	_ = g.Wait()

	// The ledger's ordering is unspecified. Sort most recent first; a stable
	// sort keeps ledger order within equal timestamps.
	sort.SliceStable(enriched, func(i, j int) bool {
		return enriched[i].CreatedAt.After(enriched[j].CreatedAt)
	})
	return enriched, nil
}

func (h *HistoryClient) enrich(ctx context.Context, bet domain.Prediction) domain.EnrichedPrediction {
	out := domain.EnrichedPrediction{Prediction: bet}

	pool, err := h.reader.PoolDetail(ctx, bet.PoolID)
	if err != nil {
		h.logger.Warn("pool lookup failed, marking result unknown",
			slog.Uint64("pool_id", bet.PoolID),
			slog.String("error", err.Error()),
		)
		out.Result = domain.OutcomeUnknown
		return out
	}

	out.Result = domain.ResolveOutcome(pool, bet.Threshold, bet.Direction)
	out.AbovePool = pool.AbovePool
	out.BelowPool = pool.BelowPool
	if pool.Resolved {
		out.FinalPrice = pool.FinalPrice
	}
	return out
}
