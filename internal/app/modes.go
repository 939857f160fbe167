package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wavemint/wavemint/internal/pipeline"
	"github.com/wavemint/wavemint/internal/server"
	"github.com/wavemint/wavemint/internal/server/handler"
	"github.com/wavemint/wavemint/internal/server/ws"
	"github.com/wavemint/wavemint/internal/service"
	"github.com/wavemint/wavemint/internal/settlement"
)

// ServerMode runs the HTTP + WebSocket API: quotes, trade settlement,
// vesting claims, and realtime fan-out. No snapshot exports.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// ExportMode writes one ledger snapshot for the previous UTC day and exits.
// Meant for external schedulers; the in-process cron loop lives in full mode.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting export mode")

	exporter := pipeline.NewExporter(
		deps.TradeStore,
		deps.BlobWriter,
		deps.BlobReader,
		a.cfg.Export.Prefix,
		a.logger,
	)
	return exporter.Run(ctx)
}

// FullMode runs the API server and the snapshot exporter in one process. The
// export trigger endpoint feeds the exporter through a shared channel.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	var triggerCh chan struct{}
	if a.cfg.Export.Enabled && deps.BlobWriter != nil {
		triggerCh = make(chan struct{}, 1)
		exporter := pipeline.NewExporter(
			deps.TradeStore,
			deps.BlobWriter,
			deps.BlobReader,
			a.cfg.Export.Prefix,
			a.logger,
		)
		g.Go(func() error {
			return exporter.RunLoop(ctx, a.cfg.Export.Cron, triggerCh)
		})
	}

	a.startHTTPServer(ctx, g, deps, triggerCh)
	return g.Wait()
}

// startHTTPServer assembles the services, handlers, and WebSocket hub, then
// starts the server and its shutdown watcher on the group.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	exportTriggerCh chan<- struct{},
) {
	settler := settlement.New(
		deps.CurveStore,
		deps.TradeStore,
		deps.Verifier,
		settlement.Config{
			FeeBps:        a.cfg.Curve.FeeBps,
			VerifyTimeout: a.cfg.Verifier.Timeout.Duration,
			TraderLimit:   a.cfg.Settlement.TraderRateLimit,
			TraderWindow:  a.cfg.Settlement.TraderRateWindow.Duration,
		},
		a.logger,
	).
		WithPriceCache(deps.PriceCache).
		WithSignalBus(deps.SignalBus).
		WithRateLimiter(deps.RateLimiter)

	curveSvc := service.NewCurveService(
		deps.CurveStore, deps.TradeStore, deps.EarningsStore,
		deps.PriceCache, deps.SignalBus, a.logger,
	)
	quoteSvc := service.NewQuoteService(deps.CurveStore, deps.PriceCache, a.cfg.Curve.FeeBps, a.logger)
	vestingSvc := service.NewVestingService(
		deps.VestingStore, deps.LockManager, deps.Disburser, deps.SignalBus, a.logger,
	)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, a.cfg.Curve.FeeBps, a.logger),
		Curves:  handler.NewCurveHandler(curveSvc, a.logger),
		Quotes:  handler.NewQuoteHandler(quoteSvc, a.logger),
		Trades:  handler.NewTradeHandler(settler, curveSvc, a.logger),
		Vesting: handler.NewVestingHandler(vestingSvc, a.logger),
	}
	if exportTriggerCh != nil {
		handlers.Export = handler.NewExportHandler(a.logger).WithTriggerChannel(exportTriggerCh)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
