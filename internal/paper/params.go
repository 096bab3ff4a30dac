package paper

// Params are the strategy tunables the optimizer grids over. Everything else
// (filters, weights) is fixed in the engine.
type Params struct {
	// MinScoreToEnter is the minimum normalized score (0-1) required to
	// open a position.
	MinScoreToEnter float64 `json:"minScoreToEnter"`
	// TakeProfitPct closes the position once price gains this fraction
	// over entry (0.05 = +5%).
	TakeProfitPct float64 `json:"takeProfitPct"`
	// TrailingStopPct closes the position once price falls this fraction
	// below its peak since entry.
	TrailingStopPct float64 `json:"trailingStopPct"`
	// MomentumFadeExit closes the position once per-cycle momentum drops
	// below this fraction (0.001 = 0.1%), after a minimum hold.
	MomentumFadeExit float64 `json:"momentumFadeExit"`
	// LiquidityDropPct closes the position once market liquidity falls
	// this fraction below its level at entry.
	LiquidityDropPct float64 `json:"liquidityDropPct"`
}

// DefaultParams returns the hand-tuned baseline the optimizer starts from.
func DefaultParams() Params {
	return Params{
		MinScoreToEnter:  0.65,
		TakeProfitPct:    0.05,
		TrailingStopPct:  0.03,
		MomentumFadeExit: 0.001,
		LiquidityDropPct: 0.30,
	}
}
