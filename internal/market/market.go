// Package market fetches and decodes Polymarket Gamma market data.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	apiTimeout = 15 * time.Second // Timeout for API requests
	fetchLimit = 200              // Markets per request, highest volume first
)

// ErrRateLimited is returned on HTTP 429 so callers can skip the cycle.
var ErrRateLimited = fmt.Errorf("rate limited (429)")

// Market is one active prediction market with its current order book stats.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	YesPrice    decimal.Decimal // price of the YES outcome token
	NoPrice     decimal.Decimal
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	Spread      decimal.Decimal
	Volume24h   decimal.Decimal // USDC
	Liquidity   decimal.Decimal // USDC
	EndDate     time.Time
}

// gammaMarket mirrors the Gamma /markets response. Numeric outcome prices
// arrive as a JSON-encoded string array, so a second decode pass is needed.
type gammaMarket struct {
	ConditionID   string  `json:"conditionId"`
	Question      string  `json:"question"`
	Slug          string  `json:"slug"`
	OutcomePrices string  `json:"outcomePrices"`
	ClobTokenIDs  string  `json:"clobTokenIds"`
	BestBid       float64 `json:"bestBid"`
	BestAsk       float64 `json:"bestAsk"`
	Spread        float64 `json:"spread"`
	Volume24h     float64 `json:"volume24hr"`
	Liquidity     float64 `json:"liquidityNum"`
	EndDate       string  `json:"endDate"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
}

// Client talks to the Gamma API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given Gamma base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: apiTimeout},
	}
}

// FetchActive returns the currently active markets ordered by 24h volume.
// Markets with missing identifiers or unparsable prices are dropped.
func (c *Client) FetchActive(ctx context.Context) ([]Market, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("limit", fmt.Sprintf("%d", fetchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building markets request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("non-OK HTTP status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if len(bodyBytes) == 0 {
		return []Market{}, nil
	}

	var raw []gammaMarket
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, fmt.Errorf("error decoding Gamma JSON: %w. Body segment: %s", err, string(bodyBytes[:min(len(bodyBytes), 200)]))
	}

	markets := make([]Market, 0, len(raw))
	for _, g := range raw {
		m, ok := parseMarket(g)
		if !ok {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func parseMarket(g gammaMarket) (Market, bool) {
	if g.ConditionID == "" || g.ClobTokenIDs == "" {
		return Market{}, false
	}
	if !g.Active || g.Closed {
		return Market{}, false
	}
	yes, no, ok := parseOutcomePrices(g.OutcomePrices)
	if !ok {
		return Market{}, false
	}

	m := Market{
		ConditionID: g.ConditionID,
		Question:    g.Question,
		Slug:        g.Slug,
		YesPrice:    yes,
		NoPrice:     no,
		BestBid:     decimal.NewFromFloat(g.BestBid),
		BestAsk:     decimal.NewFromFloat(g.BestAsk),
		Spread:      decimal.NewFromFloat(g.Spread),
		Volume24h:   decimal.NewFromFloat(g.Volume24h),
		Liquidity:   decimal.NewFromFloat(g.Liquidity),
	}
	if g.EndDate != "" {
		if end, err := time.Parse(time.RFC3339, g.EndDate); err == nil {
			m.EndDate = end
		}
	}
	return m, true
}

// parseOutcomePrices decodes Gamma's double-encoded price array, e.g.
// "[\"0.42\", \"0.58\"]".
func parseOutcomePrices(raw string) (yes, no decimal.Decimal, ok bool) {
	var prices []string
	if err := json.Unmarshal([]byte(raw), &prices); err != nil || len(prices) < 2 {
		return decimal.Zero, decimal.Zero, false
	}
	yes, err := decimal.NewFromString(prices[0])
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	no, err = decimal.NewFromString(prices[1])
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	return yes, no, true
}
