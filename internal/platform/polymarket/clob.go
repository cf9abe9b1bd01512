package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	defaultClobHost = "https://clob.polymarket.com"

	// Key used against the venue rate limiter shared by all order traffic.
	orderRateKey   = "clob:orders"
	orderRateLimit = 10
)

// TokenResolver maps a (market, outcome) pair to the CLOB asset/token ID the
// order API expects. The market catalog implements this.
type TokenResolver interface {
	TokenID(marketID, outcome string) (string, bool)
}

// orderRequest is the CLOB order wire format. Orders are fill-or-kill at the
// given limit price; amount is the USD notional for buys and the share count
// for sells.
type orderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Amount  float64 `json:"amount"`
	Type    string  `json:"type"`
}

type orderResponse struct {
	Success      bool    `json:"success"`
	OrderID      string  `json:"orderID"`
	Status       string  `json:"status"`
	ErrorMsg     string  `json:"errorMsg"`
	AvgPrice     float64 `json:"avgPrice"`
	MatchedValue float64 `json:"matchedValue"`
	FeeUSD       float64 `json:"fee"`
}

// OrderClient submits orders to the CLOB REST API. It implements
// domain.ExecutionGateway; transport and venue failures are classified into
// the domain error taxonomy so the coordinator can decide what to retry.
type OrderClient struct {
	host    string
	apiKey  string
	http    *http.Client
	tokens  TokenResolver
	limiter domain.RateLimiter // optional
	logger  *slog.Logger
}

// NewOrderClient creates an order gateway. An empty host selects the public
// CLOB endpoint. limiter may be nil to disable client-side rate limiting.
func NewOrderClient(host, apiKey string, tokens TokenResolver, limiter domain.RateLimiter, logger *slog.Logger) *OrderClient {
	if host == "" {
		host = defaultClobHost
	}
	return &OrderClient{
		host:    host,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "clob")),
	}
}

// Submit places one leg as a fill-or-kill limit order and reports the fill.
func (c *OrderClient) Submit(ctx context.Context, leg domain.Leg, sizeUSD float64) (domain.Fill, error) {
	tokenID, ok := c.tokens.TokenID(leg.MarketID, leg.Outcome)
	if !ok {
		return domain.Fill{}, fmt.Errorf("polymarket: no token for %s/%s: %w",
			leg.MarketID, leg.Outcome, domain.ErrMarketInactive)
	}

	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx, orderRateKey, orderRateLimit, time.Second)
		if err != nil {
			c.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !ok {
			return domain.Fill{}, domain.ErrRateLimited
		}
	}

	amount := sizeUSD
	if leg.Side == domain.OrderSideSell {
		// Sells are denominated in shares.
		amount = sizeUSD / (1 - leg.Price)
	}

	reqBody := orderRequest{
		TokenID: tokenID,
		Side:    string(leg.Side),
		Price:   leg.Price,
		Amount:  amount,
		Type:    "FOK",
	}

	resp, err := c.postOrder(ctx, reqBody)
	if err != nil {
		return domain.Fill{}, err
	}

	if !resp.Success || resp.Status == "rejected" {
		return domain.Fill{}, fmt.Errorf("polymarket: order for %s: %s: %w",
			tokenID, resp.ErrorMsg, domain.ErrOrderRejected)
	}

	fill := domain.Fill{
		OrderID: resp.OrderID,
		Price:   resp.AvgPrice,
		SizeUSD: resp.MatchedValue,
		FeeUSD:  resp.FeeUSD,
	}
	if fill.Price == 0 {
		fill.Price = leg.Price
	}
	if fill.SizeUSD == 0 {
		fill.SizeUSD = sizeUSD
	}

	c.logger.Info("order filled",
		slog.String("order_id", fill.OrderID),
		slog.String("market_id", leg.MarketID),
		slog.String("outcome", leg.Outcome),
		slog.String("side", string(leg.Side)),
		slog.Float64("price", fill.Price),
		slog.Float64("size_usd", fill.SizeUSD))

	return fill, nil
}

func (c *OrderClient) postOrder(ctx context.Context, order orderRequest) (orderResponse, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return orderResponse{}, fmt.Errorf("polymarket: marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/order", bytes.NewReader(body))
	if err != nil {
		return orderResponse{}, fmt.Errorf("polymarket: build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return orderResponse{}, fmt.Errorf("polymarket: submit order: %v: %w", err, domain.ErrGatewayTimeout)
		}
		return orderResponse{}, fmt.Errorf("polymarket: submit order: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return orderResponse{}, domain.ErrRateLimited
	case resp.StatusCode >= 500:
		return orderResponse{}, fmt.Errorf("polymarket: order status %d: %w",
			resp.StatusCode, domain.ErrGatewayTimeout)
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return orderResponse{}, fmt.Errorf("polymarket: order status %d: %s: %w",
			resp.StatusCode, raw, domain.ErrOrderRejected)
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return orderResponse{}, fmt.Errorf("polymarket: decode order response: %w", err)
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Compile-time interface check.
var _ domain.ExecutionGateway = (*OrderClient)(nil)
