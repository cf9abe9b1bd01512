package domain

import "time"

// GroupKind describes how the member markets of a group relate.
type GroupKind string

const (
	// GroupComplementary: the YES outcomes of any two members are mutually
	// exclusive and complementary (exactly one of the pair resolves YES).
	GroupComplementary GroupKind = "complementary"
	// GroupExhaustive: the YES outcomes of all members partition the event
	// space (exactly one member resolves YES).
	GroupExhaustive GroupKind = "exhaustive"
)

// MarketGroup links markets believed to reference the same real-world event.
// How markets are matched into groups is an external concern; the core only
// consumes the result.
type MarketGroup struct {
	ID        string
	Title     string
	Kind      GroupKind
	MarketIDs []string
	UpdatedAt time.Time
}

// RelationKind describes a declared conditional relation between markets.
type RelationKind string

const (
	// RelationImplies: the dependent market resolving YES implies every
	// parent resolves YES, so P(dependent) <= min over parents.
	RelationImplies RelationKind = "implies"
	// RelationRequiresAll: the dependent event is the conjunction of its
	// parents; same probability bound, declared for 2-3 parents.
	RelationRequiresAll RelationKind = "requires_all"
)

// CorrelationRule declares a conditional relation between a dependent market
// and its parent markets, supplied externally alongside market groups.
type CorrelationRule struct {
	ID          string
	Relation    RelationKind
	DependentID string
	ParentIDs   []string
	Confidence  float64 // 0.0-1.0, how firmly the relation is believed
	CreatedAt   time.Time
}
