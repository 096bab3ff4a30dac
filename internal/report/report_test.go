package report

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyops/internal/tradelog"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func buy(ts time.Time, id string) tradelog.TradeEntry {
	return tradelog.TradeEntry{
		Timestamp: ts, Action: tradelog.ActionBuy,
		ConditionID: id, Question: "market " + id, Outcome: "YES",
		Shares: dec("200"), Price: dec("0.5"),
		AmountUSDC: dec("100"), FeeUSDC: dec("2"),
	}
}

func sell(ts time.Time, id, pnl, reason string) tradelog.TradeEntry {
	return tradelog.TradeEntry{
		Timestamp: ts, Action: tradelog.ActionSell,
		ConditionID: id, Question: "market " + id, Outcome: "YES",
		Shares: dec("200"), Price: dec("0.55"),
		AmountUSDC: dec("110"), FeeUSDC: dec("2.2"),
		PnLUSDC: dec(pnl), Reason: reason,
	}
}

func TestComputeRoundTrips(t *testing.T) {
	trades := []tradelog.TradeEntry{
		buy(t0, "a"),
		sell(t0.Add(30*time.Minute), "a", "7.8", "Take Profit"),
		buy(t0.Add(time.Hour), "b"),
		sell(t0.Add(90*time.Minute), "b", "-4.5", "Trailing Stop Loss (< 0.4850)"),
		buy(t0.Add(2*time.Hour), "c"), // still open
	}

	s := Compute(t0.Add(3*time.Hour), trades, nil)

	assert.Equal(t, 5, s.TradeCount)
	assert.Equal(t, 2, s.ClosedTrades)
	assert.Equal(t, 1, s.OpenPositions)
	assert.Equal(t, 1, s.WinningTrades)
	assert.True(t, s.NetPnLUSDC.Equal(dec("3.3")), "net %s", s.NetPnLUSDC)
	assert.True(t, s.GrossProfitUSDC.Equal(dec("7.8")))
	assert.True(t, s.GrossLossUSDC.Equal(dec("-4.5")))
	assert.True(t, s.LargestWinUSDC.Equal(dec("7.8")))
	assert.True(t, s.LargestLossUSDC.Equal(dec("-4.5")))
	// Fees: 3 buys at 2 + 2 sells at 2.2.
	assert.True(t, s.TotalFeesUSDC.Equal(dec("10.4")), "fees %s", s.TotalFeesUSDC)
	assert.Equal(t, 30*time.Minute, s.AvgHold)
	assert.Equal(t, 30*time.Minute, s.MaxHold)
	assert.Empty(t, s.Anomalies)
}

func TestHoldTimeDistribution(t *testing.T) {
	trades := []tradelog.TradeEntry{
		buy(t0, "a"), sell(t0.Add(10*time.Minute), "a", "1", "Take Profit"),
		buy(t0.Add(time.Hour), "b"), sell(t0.Add(time.Hour+30*time.Minute), "b", "2", "Take Profit"),
		buy(t0.Add(2*time.Hour), "c"), sell(t0.Add(2*time.Hour+80*time.Minute), "c", "3", "Take Profit"),
	}
	s := Compute(t0.Add(4*time.Hour), trades, nil)

	assert.Equal(t, 10*time.Minute, s.MinHold)
	assert.Equal(t, 40*time.Minute, s.AvgHold)
	assert.Equal(t, 30*time.Minute, s.MedianHold)
	assert.Equal(t, 80*time.Minute, s.MaxHold)

	// Even trip count: median is the midpoint of the two middle holds.
	trades = append(trades,
		buy(t0.Add(5*time.Hour), "d"), sell(t0.Add(5*time.Hour+50*time.Minute), "d", "4", "Take Profit"))
	s = Compute(t0.Add(7*time.Hour), trades, nil)
	assert.Equal(t, 40*time.Minute, s.MedianHold)
}

func TestSurvivorshipAdjustedWinRate(t *testing.T) {
	trades := []tradelog.TradeEntry{
		buy(t0, "a"),
		sell(t0.Add(time.Minute), "a", "5", "Take Profit"),
		buy(t0.Add(2*time.Minute), "b"), // open, counted as a loss when adjusted
	}
	s := Compute(t0.Add(time.Hour), trades, nil)

	assert.Equal(t, 100.0, s.WinRateClosedPct)
	assert.Equal(t, 50.0, s.WinRateAdjustedPct)
}

func TestComputeFlagsAnomalies(t *testing.T) {
	trades := []tradelog.TradeEntry{
		buy(t0, "a"),
		buy(t0.Add(time.Minute), "a"),                          // double BUY
		sell(t0.Add(2*time.Minute), "x", "1", "Take Profit"),   // orphan SELL
		sell(t0.Add(time.Minute), "a", "2", "Momentum Fade"),   // out of order
	}
	s := Compute(t0.Add(time.Hour), trades, nil)

	kinds := make(map[string]int)
	for _, a := range s.Anomalies {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds["double BUY"])
	assert.Equal(t, 1, kinds["orphan SELL"])
	assert.Equal(t, 1, kinds["out-of-order timestamp"])
}

func TestWalletStats(t *testing.T) {
	wallet := []tradelog.WalletEntry{
		{Timestamp: t0, USDCBalance: dec("1000"), TradesMade: 0},
		{Timestamp: t0.Add(time.Minute), USDCBalance: dec("1100"), TradesMade: 1},
		{Timestamp: t0.Add(2 * time.Minute), USDCBalance: dec("950"), TradesMade: 2},
		// Balance moves with no trade and no holding change: anomaly.
		{Timestamp: t0.Add(3 * time.Minute), USDCBalance: dec("900"), TradesMade: 2},
	}
	s := Compute(t0.Add(time.Hour), nil, wallet)

	assert.True(t, s.StartBalanceUSDC.Equal(dec("1000")))
	assert.True(t, s.EndBalanceUSDC.Equal(dec("900")))
	assert.True(t, s.MaxDrawdownUSDC.Equal(dec("200")), "drawdown %s", s.MaxDrawdownUSDC)
	require.Len(t, s.Anomalies, 1)
	assert.Equal(t, "unexplained balance change", s.Anomalies[0].Kind)
}

func TestRenderAndWrite(t *testing.T) {
	trades := []tradelog.TradeEntry{
		buy(t0, "a"),
		sell(t0.Add(30*time.Minute), "a", "7.8", "Take Profit"),
		buy(t0.Add(time.Hour), "b"),
	}
	s := Compute(t0.Add(2*time.Hour), trades, nil)

	body, err := Render(s)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "# Trade Log Forensic Report")
	assert.Contains(t, text, "| Closed round trips | 1 |")
	assert.Contains(t, text, "survivorship bias")
	assert.Contains(t, text, "Take Profit")

	dir := t.TempDir()
	path, err := Write(dir, s)
	require.NoError(t, err)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, written)
	assert.Contains(t, path, "forensic_")
}

func TestRenderEmptyLog(t *testing.T) {
	s := Compute(t0, nil, nil)
	body, err := Render(s)
	require.NoError(t, err)
	assert.Contains(t, string(body), "No closed trades in the log.")
	assert.Contains(t, string(body), "None detected.")
}
