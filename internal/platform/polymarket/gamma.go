package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultGammaHost = "https://gamma-api.polymarket.com"

// GammaClient fetches the market catalog from the Polymarket Gamma API.
type GammaClient struct {
	host   string
	http   *http.Client
	logger *slog.Logger
}

// NewGammaClient creates a catalog client. An empty host selects the public
// Gamma endpoint.
func NewGammaClient(host string, logger *slog.Logger) *GammaClient {
	if host == "" {
		host = defaultGammaHost
	}
	return &GammaClient{
		host:   host,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With(slog.String("component", "gamma")),
	}
}

// ListActiveMarkets pages through the catalog and returns all markets that
// are active and not closed, up to max entries. max <= 0 means no cap.
func (c *GammaClient) ListActiveMarkets(ctx context.Context, max int) ([]Market, error) {
	const pageSize = 100

	var out []Market
	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Set("active", "true")
		params.Set("closed", "false")
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page []APIMarket
		if err := c.doGet(ctx, "/markets", params, &page); err != nil {
			return nil, err
		}
		for _, m := range page {
			mk := m.ToMarket()
			if !mk.Active || mk.Closed {
				continue
			}
			out = append(out, mk)
			if max > 0 && len(out) >= max {
				return out, nil
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	c.logger.Debug("catalog fetched", slog.Int("markets", len(out)))
	return out, nil
}

// GetMarket fetches a single market by its ID.
func (c *GammaClient) GetMarket(ctx context.Context, id string) (Market, error) {
	var m APIMarket
	if err := c.doGet(ctx, "/markets/"+url.PathEscape(id), nil, &m); err != nil {
		return Market{}, err
	}
	return m.ToMarket(), nil
}

func (c *GammaClient) doGet(ctx context.Context, path string, params url.Values, out any) error {
	u := c.host + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("polymarket: build gamma request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket: gamma %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("polymarket: gamma %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("polymarket: decode gamma %s: %w", path, err)
	}
	return nil
}
