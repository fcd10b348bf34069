package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pricepoolhq/poolbot/internal/server"
	"github.com/pricepoolhq/poolbot/internal/server/handler"
	"github.com/pricepoolhq/poolbot/internal/service"
)

// buildServices constructs the stake and account services shared by the
// operating modes.
func (a *App) buildServices(deps *Dependencies) (*service.PredictionService, *service.AccountService) {
	predictions := service.NewPredictionService(
		deps.Guard,
		deps.Submitter,
		deps.History,
		deps.Balances,
		deps.Settlements,
		deps.Audit,
		deps.RateLimiter,
		deps.Notifier,
		service.PredictionConfig{
			SubmitLimit:  a.cfg.Market.SubmitLimit,
			SubmitWindow: a.cfg.Market.SubmitWindow.Duration,
			FeeBps:       a.cfg.Market.FeeBps,
			HistoryLimit: a.cfg.Market.HistoryLimit,
		},
		a.logger,
	)

	accounts := service.NewAccountService(
		deps.Guard,
		deps.Ledger,
		deps.Balances,
		deps.Profiles,
		deps.Leaderboard,
		deps.Audit,
		deps.Notifier,
		a.logger,
	)

	return predictions, accounts
}

// startHTTPServer adds the API server and its shutdown watcher to the group.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	predictions, accounts := a.buildServices(deps)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:      handler.NewHealthHandler(a.logger),
			Predictions: handler.NewPredictionHandler(predictions, deps.Ledger, a.logger),
			Accounts:    handler.NewAccountHandler(accounts, a.logger),
		},
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startWatcher adds the settlement watcher to the group.
func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	watcher := service.NewWatcher(
		deps.History,
		deps.Ledger,
		deps.Settlements,
		deps.Settlements,
		deps.Leaderboard,
		deps.Notifier,
		deps.Archiver,
		service.WatcherConfig{
			Interval:     a.cfg.Watch.Interval.Duration,
			ArchiveEvery: a.cfg.Watch.ArchiveEvery.Duration,
			ArchiveAge:   a.cfg.Watch.ArchiveAge.Duration,
		},
		a.logger,
	)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
}

// startBalancePoller adds the periodic balance refresh to the group. Tracked
// wallets come from the settlement store.
func (a *App) startBalancePoller(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Balances.Run(ctx, deps.Settlements)
	})
}

// ServeMode runs the HTTP API with the balance cache kept warm.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startBalancePoller(ctx, g, deps)
	return g.Wait()
}

// WatchMode runs the settlement watcher and the balance poller (and archival
// when enabled) without the HTTP API.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWatcher(ctx, g, deps)
	a.startBalancePoller(ctx, g, deps)
	return g.Wait()
}

// FullMode runs every subsystem: the HTTP API, the settlement watcher, and
// the balance poller.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startWatcher(ctx, g, deps)
	a.startBalancePoller(ctx, g, deps)
	return g.Wait()
}
