package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"polyops/internal/market"
	"polyops/internal/optimizer"
	"polyops/internal/paper"
	"polyops/internal/tradelog"
)

// defaultInitialUSDC seeds a fresh paper wallet when no wallet log exists.
const defaultInitialUSDC = 1000.0

var (
	loopInterval time.Duration
	loopStake    float64
)

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Run the paper-trading profitability loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		params, found, err := optimizer.LoadParams(cfg.Paths.ParamsFile)
		if err != nil {
			return err
		}
		if found {
			log.Infof("ℹ️ Loaded optimizer params from %s (score>=%.2f tp=%.2f tsl=%.2f)",
				cfg.Paths.ParamsFile, params.MinScoreToEnter, params.TakeProfitPct, params.TrailingStopPct)
		} else {
			log.Info("ℹ️ No optimizer params file. Using defaults.")
		}

		stake := cfg.Loop.StakeUSDC
		if loopStake > 0 {
			stake = loopStake
		}
		initial, holding, err := resumeState(cfg.Paths.WalletLog)
		if err != nil {
			return err
		}

		engine := paper.New(log, initial, decimal.NewFromFloat(stake), cfg.Loop.FeePct, params)
		if holding.Active {
			engine.Resume(holding)
			log.Infof("ℹ️ Resuming open position: %s (%s shares @ %s).",
				holding.Question, holding.Shares.StringFixed(2), holding.EntryPrice.StringFixed(4))
		}
		client := market.NewClient(cfg.GammaAPIURL)

		interval := loopInterval
		if interval == 0 {
			interval = cfg.PollInterval.Std()
		}
		log.Infof("🚀 Profitability loop started. Balance: %s USDC, stake %s USDC, every %v.",
			initial.StringFixed(2), decimal.NewFromFloat(stake).StringFixed(2), interval)

		// Record the starting wallet state, like the bot does on init.
		if err := tradelog.Append(cfg.Paths.WalletLog, engine.WalletSnapshot(time.Now().UTC())); err != nil {
			return err
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		loopCycle(ctx, client, engine)
		for {
			select {
			case <-ctx.Done():
				w := engine.Wallet()
				log.Infof("🏦 Loop stopped. Balance: %s USDC | Trades: %d (%.1f%% profitable) | Fees: %s USDC",
					w.USDCBalance.StringFixed(2), w.TradesMade, w.ProfitabilityPct(), w.TotalFeesPaid.StringFixed(2))
				return nil
			case <-ticker.C:
				loopCycle(ctx, client, engine)
			}
		}
	},
}

func init() {
	loopCmd.Flags().DurationVar(&loopInterval, "interval", 0, "scan interval (default from config)")
	loopCmd.Flags().Float64Var(&loopStake, "stake", 0, "USDC stake per trade (default from config)")
}

// resumeState continues from the last recorded wallet snapshot, balance and
// open position both, so restarts neither reset the paper wallet nor orphan
// a logged BUY.
func resumeState(walletLog string) (decimal.Decimal, tradelog.Position, error) {
	entries, err := tradelog.ReadWallet(walletLog)
	if err != nil {
		return decimal.Zero, tradelog.Position{}, err
	}
	if len(entries) == 0 {
		return decimal.NewFromFloat(defaultInitialUSDC), tradelog.Position{}, nil
	}
	last := entries[len(entries)-1]
	return last.USDCBalance, last.Holding, nil
}

func loopCycle(ctx context.Context, client *market.Client, engine *paper.Engine) {
	markets, err := client.FetchActive(ctx)
	if err != nil {
		if errors.Is(err, market.ErrRateLimited) {
			log.Warn("⚠️ Hit rate limit (HTTP 429). Skipping this cycle.")
			return
		}
		log.Warnf("⚠️ Error fetching markets: %v. Skipping this cycle.", err)
		return
	}
	if len(markets) == 0 {
		log.Info("ℹ️ No markets returned from API this cycle.")
		return
	}

	now := time.Now().UTC()
	fills := engine.Cycle(now, markets)
	for _, fill := range fills {
		if err := tradelog.Append(cfg.Paths.TradesLog, fill); err != nil {
			log.Warnf("⚠️ Error logging trade: %v", err)
		}
	}
	if len(fills) > 0 {
		w := engine.Wallet()
		log.Infof("🏦 Wallet: %s USDC | Trades: %d (%.1f%% profitable) | Fees: %s USDC | Holding: %t",
			w.USDCBalance.StringFixed(2), w.TradesMade, w.ProfitabilityPct(),
			w.TotalFeesPaid.StringFixed(2), engine.Holding().Active)
		if err := tradelog.Append(cfg.Paths.WalletLog, engine.WalletSnapshot(now)); err != nil {
			log.Warnf("⚠️ Error logging wallet state: %v", err)
		}
	}
}
