// Package polymarket contains the REST and WebSocket clients for the
// Polymarket venue: market discovery via the Gamma API, real-time quotes via
// the CLOB WebSocket, and order placement via the CLOB REST API.
package polymarket

import (
	"strconv"
	"time"
)

// Market is the venue-level view of one binary market, as returned by the
// Gamma API. Token IDs identify the outcome legs on the CLOB.
type Market struct {
	ID         string
	Question   string
	Active     bool
	Closed     bool
	EndDate    time.Time
	Volume24h  float64
	Liquidity  float64
	YesTokenID string
	NoTokenID  string
}

// APIMarket is the Gamma API wire representation of a market.
type APIMarket struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Active    bool       `json:"active"`
	Closed    bool       `json:"closed"`
	EndDate   string     `json:"endDate"`
	Volume24h jsonNumber `json:"volume24hr"`
	Liquidity jsonNumber `json:"liquidity"`
	Tokens    []APIToken `json:"tokens"`
}

// APIToken is one outcome token within a market.
type APIToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// jsonNumber tolerates the Gamma API returning numerics as either JSON
// numbers or quoted strings.
type jsonNumber float64

func (n *jsonNumber) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = jsonNumber(f)
	return nil
}

// ToMarket converts the wire representation to the venue-level Market.
func (m *APIMarket) ToMarket() Market {
	out := Market{
		ID:        m.ID,
		Question:  m.Question,
		Active:    m.Active,
		Closed:    m.Closed,
		Volume24h: float64(m.Volume24h),
		Liquidity: float64(m.Liquidity),
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		out.EndDate = t
	}
	for _, tok := range m.Tokens {
		switch tok.Outcome {
		case "Yes":
			out.YesTokenID = tok.TokenID
		case "No":
			out.NoTokenID = tok.TokenID
		}
	}
	return out
}

// WSCommand is a subscribe/unsubscribe command sent over the CLOB WebSocket.
type WSCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Assets  []string `json:"assets_ids"`
}

// BookMessage is the full orderbook snapshot pushed on the "book" channel.
// Only the top of book is consumed.
type BookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

// BookLevel is one price level in a book message.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// QuoteUpdate is the distilled top-of-book update handed to feed handlers.
type QuoteUpdate struct {
	AssetID   string
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// ToQuoteUpdate extracts the top of book. Polymarket orders bids ascending
// and asks descending, so the best levels sit at the end of each slice.
func (b *BookMessage) ToQuoteUpdate() QuoteUpdate {
	q := QuoteUpdate{AssetID: b.AssetID, Timestamp: time.Now().UTC()}
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		q.Timestamp = time.UnixMilli(ms).UTC()
	}
	if n := len(b.Bids); n > 0 {
		if p, err := strconv.ParseFloat(b.Bids[n-1].Price, 64); err == nil {
			q.BestBid = p
		}
	}
	if n := len(b.Asks); n > 0 {
		if p, err := strconv.ParseFloat(b.Asks[n-1].Price, 64); err == nil {
			q.BestAsk = p
		}
	}
	return q
}
