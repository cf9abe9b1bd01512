// Package feed ingests Polymarket market data and maintains the snapshot
// cache the detection pipeline reads from.
package feed

import (
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// assetRef locates the (market, outcome) pair behind one CLOB asset ID.
type assetRef struct {
	MarketID string
	Outcome  string
}

// Catalog is the in-memory index of tracked markets. It maps CLOB asset IDs
// back to (market, outcome) pairs for the quote stream and forward again for
// order placement. It implements polymarket.TokenResolver.
type Catalog struct {
	mu      sync.RWMutex
	markets map[string]polymarket.Market
	byAsset map[string]assetRef
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		markets: make(map[string]polymarket.Market),
		byAsset: make(map[string]assetRef),
	}
}

// Replace swaps the tracked market set for the given one.
func (c *Catalog) Replace(markets []polymarket.Market) {
	byID := make(map[string]polymarket.Market, len(markets))
	byAsset := make(map[string]assetRef, 2*len(markets))
	for _, m := range markets {
		byID[m.ID] = m
		if m.YesTokenID != "" {
			byAsset[m.YesTokenID] = assetRef{MarketID: m.ID, Outcome: domain.OutcomeYes}
		}
		if m.NoTokenID != "" {
			byAsset[m.NoTokenID] = assetRef{MarketID: m.ID, Outcome: domain.OutcomeNo}
		}
	}

	c.mu.Lock()
	c.markets = byID
	c.byAsset = byAsset
	c.mu.Unlock()
}

// Market returns the tracked market with the given ID.
func (c *Catalog) Market(id string) (polymarket.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[id]
	return m, ok
}

// MarketIDs returns the IDs of all tracked markets.
func (c *Catalog) MarketIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.markets))
	for id := range c.markets {
		ids = append(ids, id)
	}
	return ids
}

// AssetIDs returns all CLOB asset IDs in the tracked set, for subscription.
func (c *Catalog) AssetIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.byAsset))
	for id := range c.byAsset {
		ids = append(ids, id)
	}
	return ids
}

// Resolve maps an asset ID to its (market, outcome) pair.
func (c *Catalog) Resolve(assetID string) (marketID, outcome string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.byAsset[assetID]
	return ref.MarketID, ref.Outcome, ok
}

// TokenID maps a (market, outcome) pair to its CLOB asset ID. It implements
// polymarket.TokenResolver for the order gateway.
func (c *Catalog) TokenID(marketID, outcome string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[marketID]
	if !ok {
		return "", false
	}
	switch outcome {
	case domain.OutcomeYes:
		return m.YesTokenID, m.YesTokenID != ""
	case domain.OutcomeNo:
		return m.NoTokenID, m.NoTokenID != ""
	}
	return "", false
}

// Compile-time interface check.
var _ polymarket.TokenResolver = (*Catalog)(nil)
