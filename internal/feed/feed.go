package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// QuoteChannel is the pub/sub channel quote events are published on.
const QuoteChannel = "feed.quotes"

// Config holds feed timing parameters.
type Config struct {
	CatalogRefresh time.Duration
	MaxMarkets     int
}

// quoteEvent is the JSON shape published on QuoteChannel.
type quoteEvent struct {
	MarketID  string    `json:"market_id"`
	Outcome   string    `json:"outcome"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotFeed keeps the snapshot cache current. It refreshes the market
// catalog periodically from the Gamma API and applies top-of-book quote
// updates from the CLOB WebSocket, publishing each applied quote on the
// signal bus for external consumers.
type SnapshotFeed struct {
	cfg     Config
	gamma   *polymarket.GammaClient
	ws      *polymarket.WSClient
	catalog *Catalog
	cache   domain.SnapshotCache
	bus     domain.SignalBus
	logger  *slog.Logger

	runCtx context.Context
}

// New creates a SnapshotFeed and its underlying WebSocket client. wsHost may
// be empty to use the public endpoint.
func New(
	cfg Config,
	gamma *polymarket.GammaClient,
	wsHost string,
	catalog *Catalog,
	cache domain.SnapshotCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *SnapshotFeed {
	f := &SnapshotFeed{
		cfg:     cfg,
		gamma:   gamma,
		catalog: catalog,
		cache:   cache,
		bus:     bus,
		logger:  logger.With(slog.String("component", "feed")),
	}
	f.ws = polymarket.NewWSClient(wsHost, f.handleQuote, logger)
	return f
}

// Run refreshes the catalog and consumes the quote stream until the context
// is cancelled. The first catalog refresh happens before the stream connects
// so the initial subscription is non-empty.
func (f *SnapshotFeed) Run(ctx context.Context) error {
	f.runCtx = ctx

	if err := f.refreshCatalog(ctx); err != nil {
		f.logger.Warn("initial catalog refresh failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.ws.Run(ctx) })
	g.Go(func() error { return f.refreshLoop(ctx) })
	return g.Wait()
}

func (f *SnapshotFeed) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.CatalogRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.refreshCatalog(ctx); err != nil {
				f.logger.Warn("catalog refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// refreshCatalog reloads the tracked market set, reseeds snapshot metadata,
// and re-subscribes the quote stream to the current asset set.
func (f *SnapshotFeed) refreshCatalog(ctx context.Context) error {
	markets, err := f.gamma.ListActiveMarkets(ctx, f.cfg.MaxMarkets)
	if err != nil {
		return fmt.Errorf("feed: refresh catalog: %w", err)
	}
	f.catalog.Replace(markets)

	for _, m := range markets {
		if err := f.seedSnapshot(ctx, m); err != nil {
			f.logger.Debug("seed snapshot failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()))
		}
	}

	if err := f.ws.Subscribe(f.catalog.AssetIDs()); err != nil {
		f.logger.Warn("resubscribe failed", slog.String("error", err.Error()))
	}

	f.logger.Info("catalog refreshed", slog.Int("markets", len(markets)))
	return nil
}

// seedSnapshot writes catalog metadata into the cached snapshot, preserving
// any quotes the stream has already delivered.
func (f *SnapshotFeed) seedSnapshot(ctx context.Context, m polymarket.Market) error {
	snap, err := f.cache.Get(ctx, m.ID)
	if err != nil {
		snap = domain.MarketSnapshot{
			MarketID: m.ID,
			Outcomes: make(map[string]domain.Quote),
		}
	}
	snap.Question = m.Question
	snap.Volume24h = m.Volume24h
	snap.Liquidity = m.Liquidity
	snap.EndDate = m.EndDate
	snap.Status = marketStatus(m)
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	return f.cache.Set(ctx, snap)
}

// handleQuote applies one top-of-book update to the cached snapshot and
// publishes it on the signal bus.
func (f *SnapshotFeed) handleQuote(q polymarket.QuoteUpdate) {
	ctx := f.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	marketID, outcome, ok := f.catalog.Resolve(q.AssetID)
	if !ok {
		return
	}

	snap, err := f.cache.Get(ctx, marketID)
	if err != nil {
		m, found := f.catalog.Market(marketID)
		if !found {
			return
		}
		snap = domain.MarketSnapshot{
			MarketID:  marketID,
			Question:  m.Question,
			Outcomes:  make(map[string]domain.Quote),
			Volume24h: m.Volume24h,
			Liquidity: m.Liquidity,
			EndDate:   m.EndDate,
			Status:    marketStatus(m),
		}
	}
	if snap.Outcomes == nil {
		snap.Outcomes = make(map[string]domain.Quote)
	}
	snap.Outcomes[outcome] = domain.Quote{Bid: q.BestBid, Ask: q.BestAsk}
	snap.Timestamp = q.Timestamp

	if err := f.cache.Set(ctx, snap); err != nil {
		f.logger.Warn("snapshot write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()))
		return
	}

	payload, err := json.Marshal(quoteEvent{
		MarketID:  marketID,
		Outcome:   outcome,
		Bid:       q.BestBid,
		Ask:       q.BestAsk,
		Timestamp: q.Timestamp,
	})
	if err != nil {
		return
	}
	if err := f.bus.Publish(ctx, QuoteChannel, payload); err != nil {
		f.logger.Debug("quote publish failed", slog.String("error", err.Error()))
	}
}

func marketStatus(m polymarket.Market) domain.MarketStatus {
	if m.Closed {
		return domain.MarketStatusClosed
	}
	if m.Active {
		return domain.MarketStatusActive
	}
	return domain.MarketStatusClosed
}
