package optimizer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyops/internal/logging"
	"polyops/internal/paper"
	"polyops/internal/store"
)

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func snap(ts time.Time, id string, yes float64) store.MarketSnapshot {
	return store.MarketSnapshot{
		Timestamp:   ts,
		ConditionID: id,
		Question:    "market " + id,
		YesPrice:    yes,
		NoPrice:     1 - yes,
		BestBid:     yes - 0.01,
		BestAsk:     yes + 0.01,
		Spread:      0.02,
		Volume24h:   50000,
		Liquidity:   20000,
		EndDate:     t0.Add(30 * 24 * time.Hour),
	}
}

// history returns three cycles in which market "a" trends up hard enough to
// trigger a buy in cycle 2 and a take-profit sell in cycle 3.
func history() []store.MarketSnapshot {
	t1, t2 := t0.Add(time.Minute), t0.Add(2*time.Minute)

	weakB := snap(t1, "b", 0.39)
	weakB.Volume24h = 2000
	weakB.Liquidity = 6000
	weakB.Spread = 0.06

	return []store.MarketSnapshot{
		snap(t0, "a", 0.50), snap(t0, "b", 0.40),
		snap(t1, "a", 0.52), weakB,
		snap(t2, "a", 0.60), snap(t2, "b", 0.39),
	}
}

func TestGridCoversAllCombinations(t *testing.T) {
	grid := Grid()
	assert.Len(t, grid, 27)
	base := paper.DefaultParams()
	for _, p := range grid {
		// Non-gridded knobs stay at their defaults.
		assert.Equal(t, base.MomentumFadeExit, p.MomentumFadeExit)
		assert.Equal(t, base.LiquidityDropPct, p.LiquidityDropPct)
	}
}

func TestRunPicksProfitableParams(t *testing.T) {
	res, err := Run(logging.Nop(), history(), decimal.NewFromInt(1000), decimal.NewFromInt(100), 0.02)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.GeneratedAt.IsZero())
	assert.Equal(t, 6, res.SnapshotRows)
	assert.Equal(t, 3, res.CyclesReplayed)
	assert.GreaterOrEqual(t, res.TradesSimulated, 1)
	assert.Greater(t, res.NetPnLUSDC, 0.0)
	assert.NotEmpty(t, res.Summary())
}

func TestRunNeedsTwoCycles(t *testing.T) {
	_, err := Run(logging.Nop(), []store.MarketSnapshot{snap(t0, "a", 0.5)},
		decimal.NewFromInt(1000), decimal.NewFromInt(100), 0.02)
	require.Error(t, err)
}

func TestGroupCycles(t *testing.T) {
	cycles := groupCycles(history())
	require.Len(t, cycles, 3)
	assert.Len(t, cycles[0].markets, 2)
	assert.Equal(t, t0, cycles[0].ts)
	assert.Equal(t, "a", cycles[1].markets[0].ConditionID)
}

func TestParamsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opt", "params.json")

	// Missing file: defaults, not found.
	params, found, err := LoadParams(path)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, paper.DefaultParams(), params)

	want := paper.DefaultParams()
	want.MinScoreToEnter = 0.75
	want.TakeProfitPct = 0.08
	res := &Result{RunID: "r1", GeneratedAt: t0, Params: want}
	require.NoError(t, WriteParams(path, res))

	params, found, err = LoadParams(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, params)
}
