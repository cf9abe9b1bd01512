package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

func TestCatalog_ResolvesBothDirections(t *testing.T) {
	c := NewCatalog()
	c.Replace([]polymarket.Market{
		{ID: "m1", YesTokenID: "yes-1", NoTokenID: "no-1"},
		{ID: "m2", YesTokenID: "yes-2"}, // no NO token listed yet
	})

	marketID, outcome, ok := c.Resolve("no-1")
	require.True(t, ok)
	assert.Equal(t, "m1", marketID)
	assert.Equal(t, domain.OutcomeNo, outcome)

	token, ok := c.TokenID("m1", domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, "yes-1", token)

	_, _, ok = c.Resolve("unknown")
	assert.False(t, ok)

	_, ok = c.TokenID("m2", domain.OutcomeNo)
	assert.False(t, ok)
	_, ok = c.TokenID("gone", domain.OutcomeYes)
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"m1", "m2"}, c.MarketIDs())
	assert.ElementsMatch(t, []string{"yes-1", "no-1", "yes-2"}, c.AssetIDs())
}

func TestCatalog_ReplaceDropsStaleEntries(t *testing.T) {
	c := NewCatalog()
	c.Replace([]polymarket.Market{{ID: "m1", YesTokenID: "yes-1"}})
	c.Replace([]polymarket.Market{{ID: "m2", YesTokenID: "yes-2"}})

	_, ok := c.Market("m1")
	assert.False(t, ok)
	_, _, ok = c.Resolve("yes-1")
	assert.False(t, ok)

	m, ok := c.Market("m2")
	require.True(t, ok)
	assert.Equal(t, "m2", m.ID)
}
