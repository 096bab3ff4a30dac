// Package tradelog reads and appends the bot's JSON-lines trade and wallet
// logs (trades.json, wallet_log.json). One JSON object per line; the files
// are append-only and shared by the loop, verify and report subcommands.
package tradelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trade actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// TradeEntry is one fill appended to trades.json.
type TradeEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Action      string          `json:"action"` // "BUY" or "SELL"
	ConditionID string          `json:"conditionId"`
	Question    string          `json:"question"`
	Outcome     string          `json:"outcome"` // "YES" or "NO"
	Shares      decimal.Decimal `json:"shares"`
	Price       decimal.Decimal `json:"price"`      // USDC per share
	AmountUSDC  decimal.Decimal `json:"amountUsdc"` // USDC spent (BUY) or received gross (SELL)
	FeeUSDC     decimal.Decimal `json:"feeUsdc"`
	PnLUSDC     decimal.Decimal `json:"pnlUsdc"`          // SELL only, net for the round trip
	Reason      string          `json:"reason,omitempty"` // SELL only
	TxHash      string          `json:"txHash,omitempty"` // set for on-chain fills
}

// Position is the holding snapshot embedded in wallet log entries. It
// carries the full exit-rule state so a restarted loop can pick the
// position back up.
type Position struct {
	Active         bool            `json:"active"`
	ConditionID    string          `json:"conditionId,omitempty"`
	Question       string          `json:"question,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
	Shares         decimal.Decimal `json:"shares"`
	EntryPrice     decimal.Decimal `json:"entryPrice"`
	EntryTime      time.Time       `json:"entryTime,omitzero"`
	EntryLiquidity decimal.Decimal `json:"entryLiquidity"`
	PeakPrice      decimal.Decimal `json:"peakPrice"`
}

// WalletEntry is one balance snapshot appended to wallet_log.json.
type WalletEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	USDCBalance decimal.Decimal `json:"usdcBalance"`
	Holding     Position        `json:"holding"`
	TradesMade  int             `json:"tradesMade"`
	FeesPaid    decimal.Decimal `json:"feesPaid"`
}

// Append writes v as one JSON line at the end of filename.
func Append(filename string, v any) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON to %s: %w", filename, err)
	}
	return nil
}

// ReadTrades loads every trade entry from filename. A missing file yields an
// empty slice, matching a bot that has not traded yet.
func ReadTrades(filename string) ([]TradeEntry, error) {
	var trades []TradeEntry
	err := readLines(filename, func(line []byte, n int) error {
		var e TradeEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("%s line %d: %w", filename, n, err)
		}
		trades = append(trades, e)
		return nil
	})
	return trades, err
}

// ReadWallet loads every wallet snapshot from filename.
func ReadWallet(filename string) ([]WalletEntry, error) {
	var entries []WalletEntry
	err := readLines(filename, func(line []byte, n int) error {
		var e WalletEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("%s line %d: %w", filename, n, err)
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func readLines(filename string, fn func(line []byte, n int) error) error {
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line), n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return nil
}
