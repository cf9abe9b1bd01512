package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// snapshotTTL bounds how long a stale snapshot can serve reads. Detection
// re-validates age anyway; the TTL just keeps dead markets from lingering.
const snapshotTTL = 2 * time.Minute

// SnapshotCache implements domain.SnapshotCache using Redis hashes with
// JSON-serialized snapshot data.
//
// Key schema:
//
//	snapshot:{marketID} - hash with field "data" containing JSON
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.rdb}
}

func snapshotKey(id string) string { return "snapshot:" + id }

// Set stores a market snapshot with the standard TTL.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.MarketID, err)
	}

	key := snapshotKey(snap.MarketID)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, snapshotTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.MarketID, err)
	}
	return nil
}

// Get retrieves the latest snapshot for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SnapshotCache) Get(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	data, err := sc.rdb.HGet(ctx, snapshotKey(marketID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", marketID, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", marketID, err)
	}
	return snap, nil
}

// GetAll fetches snapshots for the given market IDs in one round trip.
// Missing markets are simply absent from the result map.
func (sc *SnapshotCache) GetAll(ctx context.Context, marketIDs []string) (map[string]domain.MarketSnapshot, error) {
	if len(marketIDs) == 0 {
		return map[string]domain.MarketSnapshot{}, nil
	}

	pipe := sc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(marketIDs))
	for i, id := range marketIDs {
		cmds[i] = pipe.HGet(ctx, snapshotKey(id), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get snapshots: %w", err)
	}

	out := make(map[string]domain.MarketSnapshot, len(marketIDs))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis: get snapshot %s: %w", marketIDs[i], err)
		}
		var snap domain.MarketSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("redis: unmarshal snapshot %s: %w", marketIDs[i], err)
		}
		out[snap.MarketID] = snap
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
