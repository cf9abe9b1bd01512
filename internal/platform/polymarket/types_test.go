package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIMarket_ToMarket(t *testing.T) {
	raw := `{
		"id": "m1",
		"question": "Will it happen?",
		"active": true,
		"closed": false,
		"endDate": "2026-12-31T00:00:00Z",
		"volume24hr": "12345.5",
		"liquidity": 67890,
		"tokens": [
			{"token_id": "tok-yes", "outcome": "Yes"},
			{"token_id": "tok-no", "outcome": "No"}
		]
	}`

	var api APIMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &api))

	m := api.ToMarket()
	assert.Equal(t, "m1", m.ID)
	assert.True(t, m.Active)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), m.EndDate)
	// quoted and bare numerics both parse
	assert.Equal(t, 12345.5, m.Volume24h)
	assert.Equal(t, 67890.0, m.Liquidity)
	assert.Equal(t, "tok-yes", m.YesTokenID)
	assert.Equal(t, "tok-no", m.NoTokenID)
}

func TestJSONNumber_ToleratesNullAndEmpty(t *testing.T) {
	var n jsonNumber
	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	assert.Zero(t, float64(n))

	require.NoError(t, json.Unmarshal([]byte(`""`), &n))
	assert.Zero(t, float64(n))

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &n))
}

func TestBookMessage_ToQuoteUpdate(t *testing.T) {
	msg := BookMessage{
		EventType: "book",
		AssetID:   "tok-yes",
		Timestamp: "1754049600000",
		// bids ascend, asks descend: best levels at the tail
		Bids: []BookLevel{{Price: "0.40"}, {Price: "0.44"}, {Price: "0.45"}},
		Asks: []BookLevel{{Price: "0.55"}, {Price: "0.48"}, {Price: "0.46"}},
	}

	q := msg.ToQuoteUpdate()
	assert.Equal(t, "tok-yes", q.AssetID)
	assert.Equal(t, 0.45, q.BestBid)
	assert.Equal(t, 0.46, q.BestAsk)
	assert.Equal(t, time.UnixMilli(1754049600000).UTC(), q.Timestamp)
}

func TestBookMessage_EmptySidesLeaveZeroQuotes(t *testing.T) {
	q := (&BookMessage{AssetID: "tok-yes"}).ToQuoteUpdate()
	assert.Zero(t, q.BestBid)
	assert.Zero(t, q.BestAsk)
	assert.False(t, q.Timestamp.IsZero())
}
