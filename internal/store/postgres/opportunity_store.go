package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// The strategy payload is serialized as one JSONB document keyed by kind, so
// the closed variant survives the round trip without per-kind columns.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// payloadDoc is the JSONB envelope for the kind-specific payload.
type payloadDoc struct {
	Imbalance   *domain.ImbalancePayload   `json:"imbalance,omitempty"`
	CrossMarket *domain.CrossMarketPayload `json:"cross_market,omitempty"`
	MultiLeg    *domain.MultiLegPayload    `json:"multi_leg,omitempty"`
	Correlated  *domain.CorrelatedPayload  `json:"correlated,omitempty"`
}

// Insert persists one scored opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, so domain.ScoredOpportunity) error {
	marketIDs, err := json.Marshal(so.MarketIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal market ids for %s: %w", so.ID, err)
	}
	legs, err := json.Marshal(so.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs for %s: %w", so.ID, err)
	}
	payload, err := json.Marshal(payloadDoc{
		Imbalance:   so.Imbalance,
		CrossMarket: so.CrossMarket,
		MultiLeg:    so.MultiLeg,
		Correlated:  so.Correlated,
	})
	if err != nil {
		return fmt.Errorf("postgres: marshal payload for %s: %w", so.ID, err)
	}
	scores, err := json.Marshal(so.Scores)
	if err != nil {
		return fmt.Errorf("postgres: marshal scores for %s: %w", so.ID, err)
	}

	const query = `
		INSERT INTO opportunities (
			id, kind, market_ids, legs, payload,
			gross_profit_usd, profit_pct, scores, total_score,
			required_cap_usd, snapshot_at, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12
		)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		so.ID, string(so.Kind), marketIDs, legs, payload,
		so.GrossProfitUSD, so.ProfitPct, scores, so.Total,
		so.RequiredCapUSD, so.SnapshotAt, so.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", so.ID, err)
	}
	return nil
}

// ListRecent returns the most recently detected opportunities.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ScoredOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, kind, market_ids, legs, payload,
		       gross_profit_usd, profit_pct, scores, total_score,
		       required_cap_usd, snapshot_at, detected_at
		FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredOpportunity
	for rows.Next() {
		var so domain.ScoredOpportunity
		var kind string
		var marketIDs, legs, payload, scores []byte

		if err := rows.Scan(
			&so.ID, &kind, &marketIDs, &legs, &payload,
			&so.GrossProfitUSD, &so.ProfitPct, &scores, &so.Total,
			&so.RequiredCapUSD, &so.SnapshotAt, &so.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		so.Kind = domain.StrategyKind(kind)
		if err := json.Unmarshal(marketIDs, &so.MarketIDs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal market ids for %s: %w", so.ID, err)
		}
		if err := json.Unmarshal(legs, &so.Legs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal legs for %s: %w", so.ID, err)
		}
		var doc payloadDoc
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal payload for %s: %w", so.ID, err)
		}
		so.Imbalance = doc.Imbalance
		so.CrossMarket = doc.CrossMarket
		so.MultiLeg = doc.MultiLeg
		so.Correlated = doc.Correlated
		if err := json.Unmarshal(scores, &so.Scores); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal scores for %s: %w", so.ID, err)
		}
		out = append(out, so)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities rows: %w", err)
	}
	return out, nil
}

// CountByKind returns per-strategy detection counts since the given time.
func (s *OpportunityStore) CountByKind(ctx context.Context, since time.Time) (map[domain.StrategyKind]int64, error) {
	const query = `
		SELECT kind, COUNT(*)
		FROM opportunities
		WHERE detected_at >= $1
		GROUP BY kind`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: count opportunities by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.StrategyKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity count: %w", err)
		}
		counts[domain.StrategyKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: count opportunities rows: %w", err)
	}
	return counts, nil
}

// ListBefore returns all opportunities detected strictly before the cutoff,
// used by the archiver.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ScoredOpportunity, error) {
	const query = `
		SELECT id, kind, gross_profit_usd, profit_pct, total_score,
		       required_cap_usd, snapshot_at, detected_at
		FROM opportunities
		WHERE detected_at < $1
		ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before, err)
	}
	defer rows.Close()

	var out []domain.ScoredOpportunity
	for rows.Next() {
		var so domain.ScoredOpportunity
		var kind string
		if err := rows.Scan(
			&so.ID, &kind, &so.GrossProfitUSD, &so.ProfitPct, &so.Total,
			&so.RequiredCapUSD, &so.SnapshotAt, &so.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan archived opportunity: %w", err)
		}
		so.Kind = domain.StrategyKind(kind)
		out = append(out, so)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
