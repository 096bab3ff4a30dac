// Package verify cross-checks logged trades against Polygonscan receipts.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"polyops/internal/tradelog"
)

// EnvAPIKey must be set for the Polygonscan API.
const EnvAPIKey = "POLYGONSCAN_API_KEY"

const apiTimeout = 15 * time.Second

// TxStatus is the on-chain outcome of one transaction hash.
type TxStatus int

const (
	TxUnknown TxStatus = iota
	TxConfirmed
	TxFailed
)

// Client talks to the Polygonscan API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a Polygonscan client. apiKey must not be empty.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", EnvAPIKey)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: apiTimeout},
	}, nil
}

// receiptStatusResponse mirrors module=transaction&action=gettxreceiptstatus.
type receiptStatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  struct {
		Status string `json:"status"` // "1" success, "0" failure
	} `json:"result"`
}

// ReceiptStatus fetches the receipt status for one transaction hash.
func (c *Client) ReceiptStatus(ctx context.Context, txHash string) (TxStatus, error) {
	q := url.Values{}
	q.Set("module", "transaction")
	q.Set("action", "gettxreceiptstatus")
	q.Set("txhash", txHash)
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return TxUnknown, fmt.Errorf("building receipt request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return TxUnknown, fmt.Errorf("HTTP GET error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return TxUnknown, fmt.Errorf("non-OK HTTP status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed receiptStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return TxUnknown, fmt.Errorf("error decoding Polygonscan JSON: %w", err)
	}
	// Polygonscan signals bad requests (unknown hash, bad key) with a
	// zero outer status.
	if parsed.Status != "1" {
		return TxUnknown, fmt.Errorf("polygonscan error: %s", parsed.Message)
	}
	if parsed.Result.Status == "1" {
		return TxConfirmed, nil
	}
	return TxFailed, nil
}

// Summary aggregates one verification pass over the trade log.
type Summary struct {
	TotalTrades  int
	Confirmed    int
	Failed       int
	Unverifiable int // paper fills without a tx hash
	Errors       int // lookups that could not complete
}

// Clean reports whether every on-chain trade confirmed.
func (s Summary) Clean() bool {
	return s.Failed == 0 && s.Errors == 0
}

// Run checks every logged trade that carries a tx hash.
func Run(ctx context.Context, log *zap.SugaredLogger, client *Client, trades []tradelog.TradeEntry) Summary {
	summary := Summary{TotalTrades: len(trades)}
	for _, trade := range trades {
		if trade.TxHash == "" {
			summary.Unverifiable++
			continue
		}
		status, err := client.ReceiptStatus(ctx, trade.TxHash)
		if err != nil {
			summary.Errors++
			log.Warnf("⚠️ Could not verify %s %s (%s): %v", trade.Action, trade.Question, trade.TxHash, err)
			continue
		}
		switch status {
		case TxConfirmed:
			summary.Confirmed++
			log.Debugf("✅ %s %s confirmed on-chain (%s)", trade.Action, trade.Question, trade.TxHash)
		case TxFailed:
			summary.Failed++
			log.Warnf("❌ %s %s REVERTED on-chain (%s)", trade.Action, trade.Question, trade.TxHash)
		}
	}
	return summary
}
