package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// GroupCache implements domain.GroupCache using Redis hashes with JSON-
// serialized group and rule data plus set-based indexes for listing.
//
// Key schema:
//
//	group:{id}   - hash with field "data" containing JSON
//	groups:index - set of all group IDs
//	rule:{id}    - hash with field "data" containing JSON
//	rules:index  - set of all rule IDs
//
// Groups and rules are supplied by an external curation process and have no
// TTL; they persist until overwritten.
type GroupCache struct {
	rdb *redis.Client
}

// NewGroupCache creates a GroupCache backed by the given Client.
func NewGroupCache(c *Client) *GroupCache {
	return &GroupCache{rdb: c.rdb}
}

const (
	groupsIndexKey = "groups:index"
	rulesIndexKey  = "rules:index"
)

func groupKey(id string) string { return "group:" + id }
func ruleKey(id string) string  { return "rule:" + id }

// SetGroup stores a market group and registers it in the listing index.
func (gc *GroupCache) SetGroup(ctx context.Context, group domain.MarketGroup) error {
	data, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("redis: marshal group %s: %w", group.ID, err)
	}

	pipe := gc.rdb.TxPipeline()
	pipe.HSet(ctx, groupKey(group.ID), "data", data)
	pipe.SAdd(ctx, groupsIndexKey, group.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set group %s: %w", group.ID, err)
	}
	return nil
}

// ListGroups returns every stored market group.
func (gc *GroupCache) ListGroups(ctx context.Context) ([]domain.MarketGroup, error) {
	ids, err := gc.rdb.SMembers(ctx, groupsIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list groups: %w", err)
	}

	groups := make([]domain.MarketGroup, 0, len(ids))
	for _, id := range ids {
		data, err := gc.rdb.HGet(ctx, groupKey(id), "data").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Index entry outlived its group; skip it.
				continue
			}
			return nil, fmt.Errorf("redis: get group %s: %w", id, err)
		}
		var g domain.MarketGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("redis: unmarshal group %s: %w", id, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// SetRule stores a correlation rule and registers it in the listing index.
func (gc *GroupCache) SetRule(ctx context.Context, rule domain.CorrelationRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("redis: marshal rule %s: %w", rule.ID, err)
	}

	pipe := gc.rdb.TxPipeline()
	pipe.HSet(ctx, ruleKey(rule.ID), "data", data)
	pipe.SAdd(ctx, rulesIndexKey, rule.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set rule %s: %w", rule.ID, err)
	}
	return nil
}

// ListRules returns every stored correlation rule.
func (gc *GroupCache) ListRules(ctx context.Context) ([]domain.CorrelationRule, error) {
	ids, err := gc.rdb.SMembers(ctx, rulesIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list rules: %w", err)
	}

	rules := make([]domain.CorrelationRule, 0, len(ids))
	for _, id := range ids {
		data, err := gc.rdb.HGet(ctx, ruleKey(id), "data").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis: get rule %s: %w", id, err)
		}
		var r domain.CorrelationRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("redis: unmarshal rule %s: %w", id, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Compile-time interface check.
var _ domain.GroupCache = (*GroupCache)(nil)
