package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"polyops/internal/market"
	"polyops/internal/store"
)

var (
	collectOnce     bool
	collectInterval time.Duration
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Poll Polymarket and store market snapshots in Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		log.Info("✅ Database connection established.")

		client := market.NewClient(cfg.GammaAPIURL)
		interval := collectInterval
		if interval == 0 {
			interval = cfg.PollInterval.Std()
		}

		if collectOnce {
			return collectCycle(ctx, client, st)
		}

		log.Infof("🚀 Collector started. Polling every %v.", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := collectCycle(ctx, client, st); err != nil {
			log.Warnf("⚠️ %v. Skipping this cycle.", err)
		}
		for {
			select {
			case <-ctx.Done():
				log.Info("Collector stopped.")
				return nil
			case <-ticker.C:
				if err := collectCycle(ctx, client, st); err != nil {
					log.Warnf("⚠️ %v. Skipping this cycle.", err)
				}
			}
		}
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectOnce, "once", false, "run a single collection cycle and exit")
	collectCmd.Flags().DurationVar(&collectInterval, "interval", 0, "poll interval (default from config)")
}

func collectCycle(ctx context.Context, client *market.Client, st *store.Store) error {
	start := time.Now()
	markets, err := client.FetchActive(ctx)
	if err != nil {
		if errors.Is(err, market.ErrRateLimited) {
			log.Warn("⚠️ Hit rate limit (HTTP 429). Consider increasing the poll interval.")
		}
		return err
	}
	if len(markets) == 0 {
		log.Info("ℹ️ No markets returned from API this cycle.")
		return nil
	}

	now := time.Now().UTC()
	snapshots := make([]store.MarketSnapshot, 0, len(markets))
	for _, m := range markets {
		snapshots = append(snapshots, store.FromMarket(now, m))
	}

	dbCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := st.InsertSnapshots(dbCtx, snapshots); err != nil {
		return err
	}
	log.Infof("✅ Inserted %d snapshots. Cycle duration: %v", len(snapshots), time.Since(start).Round(time.Millisecond))
	return nil
}
