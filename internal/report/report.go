// Package report computes forensic statistics over the trade and wallet logs
// and renders them as markdown.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"polyops/internal/tradelog"
)

// Anomaly is one suspicious finding in the logs.
type Anomaly struct {
	Line   int // 1-based entry index in the source log
	Kind   string
	Detail string
}

// RoundTrip is one matched BUY/SELL pair.
type RoundTrip struct {
	ConditionID string
	Question    string
	PnLUSDC     decimal.Decimal
	Hold        time.Duration
	ExitReason  string
}

// Stats is everything the forensic report prints.
type Stats struct {
	GeneratedAt time.Time
	From, To    time.Time

	TradeCount    int // raw log entries
	ClosedTrades  int // matched round trips
	OpenPositions int // BUY legs with no SELL by end of log
	WinningTrades int

	NetPnLUSDC      decimal.Decimal
	GrossProfitUSDC decimal.Decimal
	GrossLossUSDC   decimal.Decimal
	TotalFeesUSDC   decimal.Decimal
	LargestWinUSDC  decimal.Decimal
	LargestLossUSDC decimal.Decimal

	// Hold-time distribution over closed round trips.
	MinHold    time.Duration
	AvgHold    time.Duration
	MedianHold time.Duration
	MaxHold    time.Duration

	// WinRateClosedPct counts only closed round trips. WinRateAdjustedPct
	// additionally counts every still-open position as a loss; the gap
	// between the two is the survivorship-bias exposure of the log.
	WinRateClosedPct   float64
	WinRateAdjustedPct float64

	StartBalanceUSDC decimal.Decimal
	EndBalanceUSDC   decimal.Decimal
	MaxDrawdownUSDC  decimal.Decimal

	Trips     []RoundTrip
	Anomalies []Anomaly
}

// Compute derives forensic stats from the raw logs.
func Compute(now time.Time, trades []tradelog.TradeEntry, wallet []tradelog.WalletEntry) *Stats {
	s := &Stats{
		GeneratedAt: now,
		TradeCount:  len(trades),
	}

	open := make(map[string]tradelog.TradeEntry)
	var prevTS time.Time
	for i, trade := range trades {
		if i == 0 {
			s.From = trade.Timestamp
		}
		s.To = trade.Timestamp

		if !prevTS.IsZero() && trade.Timestamp.Before(prevTS) {
			s.Anomalies = append(s.Anomalies, Anomaly{
				Line: i + 1, Kind: "out-of-order timestamp",
				Detail: fmt.Sprintf("%s precedes previous entry %s", trade.Timestamp.Format(time.RFC3339), prevTS.Format(time.RFC3339)),
			})
		}
		prevTS = trade.Timestamp

		s.TotalFeesUSDC = s.TotalFeesUSDC.Add(trade.FeeUSDC)

		switch trade.Action {
		case tradelog.ActionBuy:
			if _, dup := open[trade.ConditionID]; dup {
				s.Anomalies = append(s.Anomalies, Anomaly{
					Line: i + 1, Kind: "double BUY",
					Detail: fmt.Sprintf("BUY for %s while a position is already open", trade.ConditionID),
				})
			}
			open[trade.ConditionID] = trade
		case tradelog.ActionSell:
			entry, ok := open[trade.ConditionID]
			if !ok {
				s.Anomalies = append(s.Anomalies, Anomaly{
					Line: i + 1, Kind: "orphan SELL",
					Detail: fmt.Sprintf("SELL for %s with no matching BUY", trade.ConditionID),
				})
				continue
			}
			delete(open, trade.ConditionID)
			s.recordTrip(entry, trade)
		default:
			s.Anomalies = append(s.Anomalies, Anomaly{
				Line: i + 1, Kind: "unknown action", Detail: trade.Action,
			})
		}
	}
	s.OpenPositions = len(open)

	if s.ClosedTrades > 0 {
		s.WinRateClosedPct = float64(s.WinningTrades) / float64(s.ClosedTrades) * 100
		s.AvgHold /= time.Duration(s.ClosedTrades)

		holds := make([]time.Duration, len(s.Trips))
		for i, trip := range s.Trips {
			holds[i] = trip.Hold
		}
		sort.Slice(holds, func(i, j int) bool { return holds[i] < holds[j] })
		s.MinHold = holds[0]
		s.MedianHold = holds[len(holds)/2]
		if len(holds)%2 == 0 {
			s.MedianHold = (holds[len(holds)/2-1] + holds[len(holds)/2]) / 2
		}
	}
	if total := s.ClosedTrades + s.OpenPositions; total > 0 {
		s.WinRateAdjustedPct = float64(s.WinningTrades) / float64(total) * 100
	}

	s.computeWalletStats(wallet)
	return s
}

func (s *Stats) recordTrip(entry, exit tradelog.TradeEntry) {
	hold := exit.Timestamp.Sub(entry.Timestamp)
	s.Trips = append(s.Trips, RoundTrip{
		ConditionID: entry.ConditionID,
		Question:    entry.Question,
		PnLUSDC:     exit.PnLUSDC,
		Hold:        hold,
		ExitReason:  exit.Reason,
	})

	s.ClosedTrades++
	s.NetPnLUSDC = s.NetPnLUSDC.Add(exit.PnLUSDC)
	s.AvgHold += hold // divided by ClosedTrades at the end
	if hold > s.MaxHold {
		s.MaxHold = hold
	}

	if exit.PnLUSDC.IsPositive() {
		s.WinningTrades++
		s.GrossProfitUSDC = s.GrossProfitUSDC.Add(exit.PnLUSDC)
		if exit.PnLUSDC.GreaterThan(s.LargestWinUSDC) {
			s.LargestWinUSDC = exit.PnLUSDC
		}
	} else {
		s.GrossLossUSDC = s.GrossLossUSDC.Add(exit.PnLUSDC)
		if exit.PnLUSDC.LessThan(s.LargestLossUSDC) {
			s.LargestLossUSDC = exit.PnLUSDC
		}
	}
}

// computeWalletStats walks the wallet log for balance history, drawdown and
// unexplained balance jumps.
func (s *Stats) computeWalletStats(wallet []tradelog.WalletEntry) {
	if len(wallet) == 0 {
		return
	}
	s.StartBalanceUSDC = wallet[0].USDCBalance
	s.EndBalanceUSDC = wallet[len(wallet)-1].USDCBalance

	peak := wallet[0].USDCBalance
	for i, entry := range wallet {
		if entry.USDCBalance.GreaterThan(peak) {
			peak = entry.USDCBalance
		}
		if dd := peak.Sub(entry.USDCBalance); dd.GreaterThan(s.MaxDrawdownUSDC) {
			s.MaxDrawdownUSDC = dd
		}

		if i == 0 {
			continue
		}
		prev := wallet[i-1]
		// A balance change with no trade and no holding change has no
		// explanation in the logs.
		if !entry.USDCBalance.Equal(prev.USDCBalance) &&
			entry.TradesMade == prev.TradesMade &&
			entry.Holding.Active == prev.Holding.Active {
			s.Anomalies = append(s.Anomalies, Anomaly{
				Line: i + 1, Kind: "unexplained balance change",
				Detail: fmt.Sprintf("balance moved %s -> %s with no recorded trade",
					prev.USDCBalance.StringFixed(2), entry.USDCBalance.StringFixed(2)),
			})
		}
	}
}
