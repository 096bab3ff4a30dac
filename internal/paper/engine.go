// Package paper simulates the trading strategy against live market data and
// records fills in the shared trade log format.
package paper

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polyops/internal/market"
	"polyops/internal/tradelog"
)

const (
	// Entry filters.
	minLiquidityUSD      = 5000.0  // Skip thin books
	minVolume24hUSD      = 1000.0  // Skip dead markets
	minHoursToResolution = 24.0    // Market must have at least a day left
	minEntryPrice        = 0.05    // Avoid longshot tails
	maxEntryPrice        = 0.95    // Avoid near-resolved favorites

	// Scoring weights. The optimizer grids exits and the entry threshold;
	// weights stay fixed.
	wMomentum  = 0.40 // per-cycle YES price change
	wVolume    = 0.25 // 24h volume in USD
	wSpread    = 0.20 // spread tightness (tighter is better)
	wLiquidity = 0.15 // current liquidity in USD

	// Exit behavior.
	minHoldBeforeFade    = 5 * time.Minute // momentum fade needs a settle-in period
	resolutionExitWindow = 12 * time.Hour  // force-exit this close to the end date

	// Display.
	topScorersCount = 10
)

// Wallet is the simulated USDC balance and lifetime counters.
type Wallet struct {
	USDCBalance      decimal.Decimal
	InitialUSDC      decimal.Decimal
	TradesMade       int
	ProfitableTrades int
	TotalFeesPaid    decimal.Decimal
}

// ProfitabilityPct is the share of closed trades with positive net PnL.
func (w Wallet) ProfitabilityPct() float64 {
	if w.TradesMade == 0 {
		return 0
	}
	return float64(w.ProfitableTrades) / float64(w.TradesMade) * 100
}

// Holding is the single open position. The engine holds at most one.
type Holding struct {
	Active         bool
	ConditionID    string
	Question       string
	Outcome        string
	Shares         decimal.Decimal
	EntryPrice     decimal.Decimal
	EntryTime      time.Time
	EntryLiquidity decimal.Decimal
	PeakPrice      decimal.Decimal // for the trailing stop
}

// candidate is a filtered market with its score components.
type candidate struct {
	market.Market
	Momentum float64 // (yes - prevYes) / prevYes over one cycle

	NormMomentum  float64
	NormVolume    float64
	NormSpread    float64
	NormLiquidity float64
	Score         float64
}

// Engine runs one strategy over successive market scans.
type Engine struct {
	log    *zap.SugaredLogger
	params Params
	stake  decimal.Decimal
	feePct decimal.Decimal

	wallet     Wallet
	holding    Holding
	prevPrices map[string]decimal.Decimal
}

// New builds an engine with a fresh wallet.
func New(log *zap.SugaredLogger, initialUSDC, stakeUSDC decimal.Decimal, feePct float64, params Params) *Engine {
	return &Engine{
		log:    log,
		params: params,
		stake:  stakeUSDC,
		feePct: decimal.NewFromFloat(feePct),
		wallet: Wallet{
			USDCBalance: initialUSDC,
			InitialUSDC: initialUSDC,
		},
		prevPrices: make(map[string]decimal.Decimal),
	}
}

// Wallet returns the current wallet state.
func (e *Engine) Wallet() Wallet { return e.wallet }

// Holding returns the current position.
func (e *Engine) Holding() Holding { return e.holding }

// WalletSnapshot renders the current state as a wallet log entry.
func (e *Engine) WalletSnapshot(now time.Time) tradelog.WalletEntry {
	return tradelog.WalletEntry{
		Timestamp:   now,
		USDCBalance: e.wallet.USDCBalance,
		Holding: tradelog.Position{
			Active:         e.holding.Active,
			ConditionID:    e.holding.ConditionID,
			Question:       e.holding.Question,
			Outcome:        e.holding.Outcome,
			Shares:         e.holding.Shares,
			EntryPrice:     e.holding.EntryPrice,
			EntryTime:      e.holding.EntryTime,
			EntryLiquidity: e.holding.EntryLiquidity,
			PeakPrice:      e.holding.PeakPrice,
		},
		TradesMade: e.wallet.TradesMade,
		FeesPaid:   e.wallet.TotalFeesPaid,
	}
}

// Resume restores an open position recorded in a wallet snapshot, so a
// restarted loop keeps the books consistent with the trade log instead of
// orphaning the BUY. Snapshots written before the exit-rule state was
// logged fall back to the entry price as the peak.
func (e *Engine) Resume(pos tradelog.Position) {
	if !pos.Active {
		return
	}
	e.holding = Holding{
		Active:         true,
		ConditionID:    pos.ConditionID,
		Question:       pos.Question,
		Outcome:        pos.Outcome,
		Shares:         pos.Shares,
		EntryPrice:     pos.EntryPrice,
		EntryTime:      pos.EntryTime,
		EntryLiquidity: pos.EntryLiquidity,
		PeakPrice:      pos.PeakPrice,
	}
	if e.holding.PeakPrice.IsZero() {
		e.holding.PeakPrice = pos.EntryPrice
	}
}

// Cycle processes one market scan: evaluates the open position for exits,
// then evaluates entries if flat. Returns the fills executed this cycle.
func (e *Engine) Cycle(now time.Time, markets []market.Market) []tradelog.TradeEntry {
	candidates, byID := e.selectCandidates(now, markets)
	scored := calculateScores(candidates)

	var fills []tradelog.TradeEntry

	if e.holding.Active {
		if fill, ok := e.evaluateExit(now, byID); ok {
			fills = append(fills, fill)
		}
	}

	if !e.holding.Active && len(scored) > 0 {
		sort.Slice(scored, func(i, j int) bool {
			return scored[i].Score > scored[j].Score
		})
		e.logTopScorers(scored)
		if fill, ok := e.evaluateEntry(now, scored[0]); ok {
			fills = append(fills, fill)
		}
	} else if len(scored) == 0 && !e.holding.Active {
		e.log.Debug("🤷 No suitable candidates found after filtering and scoring.")
	}

	return fills
}

// selectCandidates applies the entry filters, computes per-cycle momentum,
// and refreshes the previous-price cache. The byID map keeps every fetched
// market (unfiltered) so exit evaluation can see the held market even when
// it no longer passes entry filters.
func (e *Engine) selectCandidates(now time.Time, markets []market.Market) ([]candidate, map[string]candidate) {
	var candidates []candidate
	byID := make(map[string]candidate, len(markets))

	// Rebuild the price cache from this scan so markets that leave the
	// feed do not accumulate forever.
	prevPrices := e.prevPrices
	e.prevPrices = make(map[string]decimal.Decimal, len(markets))

	for _, m := range markets {
		prev, hadPrev := prevPrices[m.ConditionID]
		e.prevPrices[m.ConditionID] = m.YesPrice

		momentum := 0.0
		if hadPrev && prev.IsPositive() {
			momentum = m.YesPrice.Sub(prev).Div(prev).InexactFloat64()
		}
		c := candidate{Market: m, Momentum: momentum}
		byID[m.ConditionID] = c

		// Entry filters.
		if m.Liquidity.InexactFloat64() < minLiquidityUSD {
			continue
		}
		if m.Volume24h.InexactFloat64() < minVolume24hUSD {
			continue
		}
		if !m.EndDate.IsZero() && m.EndDate.Sub(now).Hours() < minHoursToResolution {
			continue
		}
		yes := m.YesPrice.InexactFloat64()
		if yes < minEntryPrice || yes > maxEntryPrice {
			continue
		}
		if !hadPrev {
			continue // need one prior cycle for momentum
		}
		candidates = append(candidates, c)
	}

	// The held market keeps its last price while it is missing from the
	// scan, so momentum does not reset when it comes back.
	if e.holding.Active {
		if _, seen := e.prevPrices[e.holding.ConditionID]; !seen {
			if p, ok := prevPrices[e.holding.ConditionID]; ok {
				e.prevPrices[e.holding.ConditionID] = p
			}
		}
	}
	return candidates, byID
}

// calculateScores min/max-normalizes each component across the candidate set
// and combines them with the fixed weights.
func calculateScores(candidates []candidate) []candidate {
	if len(candidates) < 2 {
		for i := range candidates {
			candidates[i].Score = 0
		}
		return candidates
	}

	minMom, maxMom := candidates[0].Momentum, candidates[0].Momentum
	minVol, maxVol := candidates[0].Volume24h.InexactFloat64(), candidates[0].Volume24h.InexactFloat64()
	minSpr, maxSpr := candidates[0].Spread.InexactFloat64(), candidates[0].Spread.InexactFloat64()
	minLiq, maxLiq := candidates[0].Liquidity.InexactFloat64(), candidates[0].Liquidity.InexactFloat64()

	for _, c := range candidates[1:] {
		minMom = math.Min(minMom, c.Momentum)
		maxMom = math.Max(maxMom, c.Momentum)
		minVol = math.Min(minVol, c.Volume24h.InexactFloat64())
		maxVol = math.Max(maxVol, c.Volume24h.InexactFloat64())
		minSpr = math.Min(minSpr, c.Spread.InexactFloat64())
		maxSpr = math.Max(maxSpr, c.Spread.InexactFloat64())
		minLiq = math.Min(minLiq, c.Liquidity.InexactFloat64())
		maxLiq = math.Max(maxLiq, c.Liquidity.InexactFloat64())
	}

	scored := make([]candidate, len(candidates))
	for i, c := range candidates {
		c.NormMomentum = normalize(c.Momentum, minMom, maxMom)
		c.NormVolume = normalize(c.Volume24h.InexactFloat64(), minVol, maxVol)
		// Tight spread scores high, so invert.
		c.NormSpread = 1 - normalize(c.Spread.InexactFloat64(), minSpr, maxSpr)
		c.NormLiquidity = normalize(c.Liquidity.InexactFloat64(), minLiq, maxLiq)

		c.Score = c.NormMomentum*wMomentum +
			c.NormVolume*wVolume +
			c.NormSpread*wSpread +
			c.NormLiquidity*wLiquidity
		scored[i] = c
	}
	return scored
}

func normalize(value, min, max float64) float64 {
	if max-min == 0 {
		return 0
	}
	return (value - min) / (max - min)
}

// evaluateExit checks the open position against the exit rules, in priority
// order, selling at the current best bid.
func (e *Engine) evaluateExit(now time.Time, byID map[string]candidate) (tradelog.TradeEntry, bool) {
	current, found := byID[e.holding.ConditionID]
	if !found {
		e.log.Warnf("⚠️ Held market %s (%s) not in current scan. Holding position.",
			e.holding.Question, e.holding.ConditionID)
		return tradelog.TradeEntry{}, false
	}

	price := current.YesPrice
	if current.BestBid.IsPositive() {
		price = current.BestBid
	}
	if price.GreaterThan(e.holding.PeakPrice) {
		e.holding.PeakPrice = price
	}

	one := decimal.NewFromInt(1)
	liquidityFloor := e.holding.EntryLiquidity.Mul(one.Sub(decimal.NewFromFloat(e.params.LiquidityDropPct)))
	trailingStop := e.holding.PeakPrice.Mul(one.Sub(decimal.NewFromFloat(e.params.TrailingStopPct)))
	takeProfit := e.holding.EntryPrice.Mul(one.Add(decimal.NewFromFloat(e.params.TakeProfitPct)))

	var reason string
	switch {
	case current.Liquidity.LessThan(liquidityFloor):
		reason = fmt.Sprintf("Liquidity Drop (< %s USDC)", liquidityFloor.StringFixed(0))
	case price.LessThanOrEqual(trailingStop):
		reason = fmt.Sprintf("Trailing Stop Loss (< %s)", trailingStop.StringFixed(4))
	case price.GreaterThanOrEqual(takeProfit):
		reason = "Take Profit"
	case current.Momentum < e.params.MomentumFadeExit && now.Sub(e.holding.EntryTime) > minHoldBeforeFade:
		reason = fmt.Sprintf("Momentum Fade (< %.3f%%)", e.params.MomentumFadeExit*100)
	case !current.EndDate.IsZero() && current.EndDate.Sub(now) < resolutionExitWindow:
		reason = "Resolution Approaching"
	}

	if reason == "" {
		e.log.Debugf("HOLDING: %s (%s shares) @ entry %s | cur %s | peak %s | liq %s",
			e.holding.Question, e.holding.Shares.StringFixed(2), e.holding.EntryPrice.StringFixed(4),
			price.StringFixed(4), e.holding.PeakPrice.StringFixed(4), current.Liquidity.StringFixed(0))
		return tradelog.TradeEntry{}, false
	}

	return e.sell(now, price, reason), true
}

func (e *Engine) sell(now time.Time, price decimal.Decimal, reason string) tradelog.TradeEntry {
	gross := e.holding.Shares.Mul(price)
	fee := gross.Mul(e.feePct)
	net := gross.Sub(fee)
	pnl := net.Sub(e.stake)

	e.wallet.USDCBalance = e.wallet.USDCBalance.Add(net)
	e.wallet.TotalFeesPaid = e.wallet.TotalFeesPaid.Add(fee)
	e.wallet.TradesMade++
	if pnl.IsPositive() {
		e.wallet.ProfitableTrades++
	}

	e.log.Infof("📈 SELL %s [%s shares @ %s] net %s USDC | P/L: %s (%s)",
		e.holding.Question, e.holding.Shares.StringFixed(2), price.StringFixed(4),
		net.StringFixed(2), pnl.StringFixed(2), reason)

	fill := tradelog.TradeEntry{
		Timestamp:   now,
		Action:      tradelog.ActionSell,
		ConditionID: e.holding.ConditionID,
		Question:    e.holding.Question,
		Outcome:     e.holding.Outcome,
		Shares:      e.holding.Shares,
		Price:       price,
		AmountUSDC:  gross,
		FeeUSDC:     fee,
		PnLUSDC:     pnl,
		Reason:      reason,
	}
	e.holding = Holding{}
	return fill
}

// evaluateEntry buys the top-scoring candidate at best ask when the score
// clears the threshold and the wallet covers stake plus fee.
func (e *Engine) evaluateEntry(now time.Time, top candidate) (tradelog.TradeEntry, bool) {
	if top.Score < e.params.MinScoreToEnter {
		e.log.Debugf("ℹ️ Top candidate %q score %.4f < %.4f. No BUY.",
			top.Question, top.Score, e.params.MinScoreToEnter)
		return tradelog.TradeEntry{}, false
	}

	price := top.YesPrice
	if top.BestAsk.IsPositive() {
		price = top.BestAsk
	}
	fee := e.stake.Mul(e.feePct)
	totalCost := e.stake.Add(fee)
	if e.wallet.USDCBalance.LessThan(totalCost) {
		e.log.Infof("ℹ️ Insufficient USDC (%s) for stake + fee (%s). Skipping BUY.",
			e.wallet.USDCBalance.StringFixed(2), totalCost.StringFixed(2))
		return tradelog.TradeEntry{}, false
	}
	shares := e.stake.Div(price)

	e.wallet.USDCBalance = e.wallet.USDCBalance.Sub(totalCost)
	e.wallet.TotalFeesPaid = e.wallet.TotalFeesPaid.Add(fee)

	e.holding = Holding{
		Active:         true,
		ConditionID:    top.ConditionID,
		Question:       top.Question,
		Outcome:        "YES",
		Shares:         shares,
		EntryPrice:     price,
		EntryTime:      now,
		EntryLiquidity: top.Liquidity,
		PeakPrice:      price,
	}

	e.log.Infof("📉 BUY %q (score %.4f) [%s shares @ %s] stake %s USDC (fee %s)",
		top.Question, top.Score, shares.StringFixed(2), price.StringFixed(4),
		e.stake.StringFixed(2), fee.StringFixed(4))

	return tradelog.TradeEntry{
		Timestamp:   now,
		Action:      tradelog.ActionBuy,
		ConditionID: top.ConditionID,
		Question:    top.Question,
		Outcome:     "YES",
		Shares:      shares,
		Price:       price,
		AmountUSDC:  e.stake,
		FeeUSDC:     fee,
	}, true
}

func (e *Engine) logTopScorers(scored []candidate) {
	count := min(len(scored), topScorersCount)
	for i := 0; i < count; i++ {
		c := scored[i]
		e.log.Debugf("%2d. %-40.40s | Score: %.4f [mom:%.4f(%.2f) vol:%.0f(%.2f) spr:%.3f(%.2f) liq:%.0f(%.2f)]",
			i+1, c.Question, c.Score,
			c.Momentum, c.NormMomentum,
			c.Volume24h.InexactFloat64(), c.NormVolume,
			c.Spread.InexactFloat64(), c.NormSpread,
			c.Liquidity.InexactFloat64(), c.NormLiquidity)
	}
}
