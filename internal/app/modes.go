package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/alloc"
	"github.com/alanyoungcy/polyarb/internal/detect"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/engine"
	"github.com/alanyoungcy/polyarb/internal/exec"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/observe"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/score"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
)

const (
	// archiveInterval is how often old records are swept to object storage.
	archiveInterval = 24 * time.Hour
	// archiveRetention is how long records stay in the primary store.
	archiveRetention = 90 * 24 * time.Hour
)

// pipeline bundles the per-mode stage objects built on top of Dependencies.
type pipeline struct {
	catalog  *feed.Catalog
	feed     *feed.SnapshotFeed
	ledger   *risk.Ledger
	engine   *engine.Engine
	observer domain.Observer
}

// buildPipeline constructs the pipeline stages. When execute is false the
// engine stops after allocation and no order gateway is created.
func (a *App) buildPipeline(deps *Dependencies, execute bool) (*pipeline, error) {
	cfg := a.cfg
	logger := a.logger

	recorder := observe.NewRecorder(deps.SignalBus, deps.Audit, logger)
	observer := observe.Multi{recorder, deps.Alerts}

	catalog := feed.NewCatalog()
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, logger)
	snapshotFeed := feed.New(
		feed.Config{
			CatalogRefresh: cfg.Feed.CatalogRefresh.Duration,
			MaxMarkets:     cfg.Feed.MaxMarkets,
		},
		gamma,
		cfg.Polymarket.WsHost,
		catalog,
		deps.Snapshots,
		deps.SignalBus,
		logger,
	)

	var detectors []detect.Detector
	if cfg.Detect.Imbalance.Enabled {
		detectors = append(detectors, detect.NewImbalance(detect.ImbalanceConfig{
			MinProfitPct:      cfg.Detect.Imbalance.Threshold(cfg.Detect.MinProfitPct),
			SlippageAllowance: cfg.Detect.SlippageAllowance,
		}))
	}
	if cfg.Detect.CrossMarket.Enabled {
		detectors = append(detectors, detect.NewCrossMarket(detect.CrossMarketConfig{
			MinProfitPct:      cfg.Detect.CrossMarket.Threshold(cfg.Detect.MinProfitPct),
			SlippageAllowance: cfg.Detect.SlippageAllowance,
		}))
	}
	if cfg.Detect.MultiLeg.Enabled {
		detectors = append(detectors, detect.NewMultiLeg(detect.MultiLegConfig{
			MinProfitPct:      cfg.Detect.MultiLeg.Threshold(cfg.Detect.MinProfitPct),
			SlippageAllowance: cfg.Detect.SlippageAllowance,
			MaxLegs:           cfg.Detect.MaxLegs,
		}))
	}
	if cfg.Detect.Correlated.Enabled {
		detectors = append(detectors, detect.NewCorrelated(detect.CorrelatedConfig{
			MinProfitPct:      cfg.Detect.Correlated.Threshold(cfg.Detect.MinProfitPct),
			SlippageAllowance: cfg.Detect.SlippageAllowance,
			MinMispricing:     cfg.Detect.MinMispricing,
		}))
	}
	runner := detect.NewRunner(detectors, observer, logger)

	scorer, err := score.New(score.Config{
		Weights: score.Weights{
			Profit:              cfg.Score.WeightProfit,
			CapitalEfficiency:   cfg.Score.WeightCapitalEfficiency,
			Confidence:          cfg.Score.WeightConfidence,
			Risk:                cfg.Score.WeightRisk,
			ExecutionDifficulty: cfg.Score.WeightExecutionDifficulty,
		},
		MaxStale: cfg.Score.MaxStale.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("app: scorer: %w", err)
	}

	ledger, err := risk.New(risk.Config{
		CapitalBaseUSD: cfg.Risk.CapitalBaseUSD,
		MaxExposurePct: cfg.Risk.MaxExposurePct,
		StopLossPct:    cfg.Risk.StopLossPct,
		TakeProfitPct:  cfg.Risk.TakeProfitPct,
		MaxPositionAge: cfg.Risk.MaxPositionAge.Duration,
	}, deps.Positions, observer, logger)
	if err != nil {
		return nil, fmt.Errorf("app: ledger: %w", err)
	}

	allocator, err := alloc.New(alloc.Config{
		KellyFraction:   cfg.Alloc.KellyFraction,
		MaxPerTradeUSD:  cfg.Alloc.MaxPerTradeUSD,
		MinSizeUSD:      cfg.Alloc.MinSizeUSD,
		GasPerLegUSD:    cfg.Alloc.GasPerLegUSD,
		FeeSafetyBuffer: cfg.Alloc.FeeSafetyBuffer,
	}, ledger, observer)
	if err != nil {
		return nil, fmt.Errorf("app: allocator: %w", err)
	}

	var coordinator *exec.Coordinator
	if execute {
		gateway := polymarket.NewOrderClient(
			cfg.Polymarket.ClobHost,
			cfg.Polymarket.ApiKey,
			catalog,
			deps.RateLimiter,
			logger,
		)
		coordinator, err = exec.New(exec.Config{
			MaxAttempts:       cfg.Exec.MaxAttempts,
			RetryBase:         cfg.Exec.RetryBase.Duration,
			RetryFactor:       cfg.Exec.RetryFactor,
			SubmitTimeout:     cfg.Exec.SubmitTimeout.Duration,
			SlippageTolerance: cfg.Exec.SlippageTolerance,
			LockTTL:           cfg.Exec.LockTTL.Duration,
		}, gateway, ledger, deps.Snapshots, deps.LockManager, observer, logger)
		if err != nil {
			return nil, fmt.Errorf("app: coordinator: %w", err)
		}
	}

	eng, err := engine.New(engine.Config{
		CycleInterval:   cfg.Engine.CycleInterval.Duration,
		MonitorInterval: cfg.Engine.MonitorInterval.Duration,
		SnapshotMaxAge:  cfg.Engine.SnapshotMaxAge.Duration,
		Execute:         execute,
	}, catalog, deps.Snapshots, deps.Groups, runner, scorer, allocator,
		ledger, coordinator, deps.Opportunities, deps.LockManager, observer, logger)
	if err != nil {
		return nil, fmt.Errorf("app: engine: %w", err)
	}

	return &pipeline{
		catalog:  catalog,
		feed:     snapshotFeed,
		ledger:   ledger,
		engine:   eng,
		observer: observer,
	}, nil
}

// AlertMode detects, scores, and notifies without placing orders.
func (a *App) AlertMode(ctx context.Context, deps *Dependencies) error {
	p, err := a.buildPipeline(deps, false)
	if err != nil {
		return err
	}
	if err := p.ledger.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore ledger: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.feed.Run(ctx) })
	g.Go(func() error { return p.engine.Run(ctx) })
	a.startServer(ctx, g, deps, p, p.engine)
	return g.Wait()
}

// AutoMode runs the full pipeline including execution and archival.
func (a *App) AutoMode(ctx context.Context, deps *Dependencies) error {
	p, err := a.buildPipeline(deps, true)
	if err != nil {
		return err
	}
	if err := p.ledger.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore ledger: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.feed.Run(ctx) })
	g.Go(func() error { return p.engine.Run(ctx) })
	g.Go(func() error { return a.archiveLoop(ctx, deps) })
	a.startServer(ctx, g, deps, p, p.engine)
	return g.Wait()
}

// MonitorMode manages existing positions only: no detection, no new orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	p, err := a.buildPipeline(deps, false)
	if err != nil {
		return err
	}
	if err := p.ledger.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore ledger: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.feed.Run(ctx) })
	g.Go(func() error { return p.engine.RunMonitorOnly(ctx) })
	g.Go(func() error { return a.archiveLoop(ctx, deps) })
	a.startServer(ctx, g, deps, p, nil)
	return g.Wait()
}

// ServerMode serves the HTTP API over the shared stores and caches; the feed
// keeps market data current but no pipeline runs in this replica.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	p, err := a.buildPipeline(deps, false)
	if err != nil {
		return err
	}
	if err := p.ledger.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore ledger: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.feed.Run(ctx) })
	g.Go(func() error { return a.archiveLoop(ctx, deps) })
	a.startServer(ctx, g, deps, p, nil)
	return g.Wait()
}

// startServer registers the HTTP server and WebSocket hub on the errgroup
// when the server is enabled. trigger may be nil to disable the manual
// pipeline endpoint.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, p *pipeline, trigger handler.CycleRunner) {
	if !a.cfg.Server.Enabled {
		return
	}
	logger := a.logger

	hub := ws.NewHub(deps.SignalBus, feed.QuoteChannel, observe.EventStream, logger)

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Polymarket.ApiKey,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(deps.HealthChecks, logger),
		Markets:       handler.NewMarketHandler(p.catalog, deps.Snapshots, logger),
		Opportunities: handler.NewOpportunityHandler(deps.Opportunities, logger),
		Positions:     handler.NewPositionHandler(p.ledger, deps.Positions, logger),
		Risk:          handler.NewRiskHandler(p.ledger),
		Audit:         handler.NewAuditHandler(deps.Audit, logger),
		Pipeline:      handler.NewPipelineHandler(trigger, logger),
	}, hub, deps.RateLimiter, logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// archiveLoop sweeps old closed positions and detection history to object
// storage once per interval. Records younger than the retention window stay
// in the primary store.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return nil
	}
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-archiveRetention)
			if n, err := deps.Archiver.ArchivePositions(ctx, cutoff); err != nil {
				a.logger.Warn("archive positions failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("archived positions", slog.Int64("count", n))
			}
			if n, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff); err != nil {
				a.logger.Warn("archive opportunities failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("archived opportunities", slog.Int64("count", n))
			}
		}
	}
}
