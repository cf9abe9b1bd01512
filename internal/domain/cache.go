package domain

import (
	"context"
	"time"
)

// SnapshotCache provides fast access to the latest market snapshots.
type SnapshotCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	Get(ctx context.Context, marketID string) (MarketSnapshot, error)
	GetAll(ctx context.Context, marketIDs []string) (map[string]MarketSnapshot, error)
}

// GroupCache provides fast lookups of externally supplied market groups and
// correlation rules.
type GroupCache interface {
	SetGroup(ctx context.Context, group MarketGroup) error
	ListGroups(ctx context.Context) ([]MarketGroup, error)
	SetRule(ctx context.Context, rule CorrelationRule) error
	ListRules(ctx context.Context) ([]CorrelationRule, error)
}

// PipelineEvent is one structured record on the durable pipeline stream:
// a detection, a scoring or allocation decision, a leg result, or a position
// transition.
type PipelineEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// StreamMessage is one entry read back from a durable stream. Payload holds
// the JSON-encoded PipelineEvent.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live quote fan-out and durable streams for
// pipeline records. The observer appends one PipelineEvent per decision;
// external collaborators tail the stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	AppendEvent(ctx context.Context, stream string, event PipelineEvent) error
	TailEvents(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed locking, used to keep the monitoring loop
// single-writer across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter bounds outbound request rates to external APIs.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
