// Package optimizer replays recorded market snapshots through the paper
// engine over a parameter grid and persists the best-performing set.
package optimizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polyops/internal/logging"
	"polyops/internal/market"
	"polyops/internal/paper"
	"polyops/internal/store"
)

// Result is the outcome of one optimizer run, written to params.json.
type Result struct {
	RunID           string       `json:"runId"`
	GeneratedAt     time.Time    `json:"generatedAt"`
	SnapshotRows    int          `json:"snapshotRows"`
	CyclesReplayed  int          `json:"cyclesReplayed"`
	Params          paper.Params `json:"params"`
	NetPnLUSDC      float64      `json:"netPnlUsdc"`
	WinRatePct      float64      `json:"winRatePct"`
	TradesSimulated int          `json:"tradesSimulated"`
}

// Summary renders the one-line run record cron captures in cron.log.
func (r *Result) Summary() string {
	return fmt.Sprintf("run %s: replayed %d cycles (%d rows), best params score>=%.2f tp=%.2f tsl=%.2f -> net %.2f USDC over %d trades (%.1f%% win)",
		r.RunID, r.CyclesReplayed, r.SnapshotRows,
		r.Params.MinScoreToEnter, r.Params.TakeProfitPct, r.Params.TrailingStopPct,
		r.NetPnLUSDC, r.TradesSimulated, r.WinRatePct)
}

// Grid enumerates the parameter sets evaluated per run. Fade and liquidity
// exits stay at their defaults; the gridded knobs are the ones the trade
// history is actually sensitive to.
func Grid() []paper.Params {
	scores := []float64{0.55, 0.65, 0.75}
	takeProfits := []float64{0.03, 0.05, 0.08}
	trailingStops := []float64{0.02, 0.03, 0.05}

	base := paper.DefaultParams()
	var grid []paper.Params
	for _, s := range scores {
		for _, tp := range takeProfits {
			for _, ts := range trailingStops {
				p := base
				p.MinScoreToEnter = s
				p.TakeProfitPct = tp
				p.TrailingStopPct = ts
				grid = append(grid, p)
			}
		}
	}
	return grid
}

// Run replays snaps (ordered by timestamp) through every grid point and
// returns the best result by net PnL, tie-broken by win rate.
func Run(log *zap.SugaredLogger, snaps []store.MarketSnapshot, initialUSDC, stakeUSDC decimal.Decimal, feePct float64) (*Result, error) {
	cycles := groupCycles(snaps)
	if len(cycles) < 2 {
		return nil, fmt.Errorf("need at least 2 snapshot cycles to replay, have %d", len(cycles))
	}

	var best *Result
	for _, params := range Grid() {
		engine := paper.New(logging.Nop(), initialUSDC, stakeUSDC, feePct, params)
		net := decimal.Zero
		for _, c := range cycles {
			for _, fill := range engine.Cycle(c.ts, c.markets) {
				net = net.Add(fill.PnLUSDC)
			}
		}
		wallet := engine.Wallet()
		res := &Result{
			SnapshotRows:    len(snaps),
			CyclesReplayed:  len(cycles),
			Params:          params,
			NetPnLUSDC:      net.InexactFloat64(),
			WinRatePct:      wallet.ProfitabilityPct(),
			TradesSimulated: wallet.TradesMade,
		}
		log.Debugf("grid score>=%.2f tp=%.2f tsl=%.2f -> net %.2f USDC, %d trades, %.1f%% win",
			params.MinScoreToEnter, params.TakeProfitPct, params.TrailingStopPct,
			res.NetPnLUSDC, res.TradesSimulated, res.WinRatePct)

		if best == nil || res.NetPnLUSDC > best.NetPnLUSDC ||
			(res.NetPnLUSDC == best.NetPnLUSDC && res.WinRatePct > best.WinRatePct) {
			best = res
		}
	}

	best.RunID = uuid.NewString()
	best.GeneratedAt = time.Now().UTC()
	return best, nil
}

type cycle struct {
	ts      time.Time
	markets []market.Market
}

// groupCycles splits timestamp-ordered rows into per-poll market slices.
func groupCycles(snaps []store.MarketSnapshot) []cycle {
	var cycles []cycle
	for _, snap := range snaps {
		if len(cycles) == 0 || !cycles[len(cycles)-1].ts.Equal(snap.Timestamp) {
			cycles = append(cycles, cycle{ts: snap.Timestamp})
		}
		last := &cycles[len(cycles)-1]
		last.markets = append(last.markets, toMarket(snap))
	}
	return cycles
}

func toMarket(snap store.MarketSnapshot) market.Market {
	m := market.Market{
		ConditionID: snap.ConditionID,
		Question:    snap.Question,
		YesPrice:    decimal.NewFromFloat(snap.YesPrice),
		NoPrice:     decimal.NewFromFloat(snap.NoPrice),
		BestBid:     decimal.NewFromFloat(snap.BestBid),
		BestAsk:     decimal.NewFromFloat(snap.BestAsk),
		Spread:      decimal.NewFromFloat(snap.Spread),
		Volume24h:   decimal.NewFromFloat(snap.Volume24h),
		Liquidity:   decimal.NewFromFloat(snap.Liquidity),
	}
	// The store encodes "no end date" as the Unix epoch.
	if snap.EndDate.Unix() > 0 {
		m.EndDate = snap.EndDate
	}
	return m
}

// WriteParams persists the result for the loop to pick up.
func WriteParams(path string, res *Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create params dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write params file: %w", err)
	}
	return nil
}

// LoadParams reads a previously written params file. A missing file returns
// the defaults and found=false.
func LoadParams(path string) (params paper.Params, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return paper.DefaultParams(), false, nil
		}
		return paper.DefaultParams(), false, fmt.Errorf("failed to read params file %s: %w", path, err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return paper.DefaultParams(), false, fmt.Errorf("failed to decode params file %s: %w", path, err)
	}
	return res.Params, true, nil
}
