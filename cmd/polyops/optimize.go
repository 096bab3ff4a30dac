package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"polyops/internal/optimizer"
	"polyops/internal/store"
)

var optimizeSince time.Duration

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Replay recorded snapshots over the parameter grid and save the best set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		since := time.Now().UTC().Add(-optimizeSince)
		snaps, err := st.SnapshotsSince(ctx, since)
		if err != nil {
			return err
		}
		log.Infof("ℹ️ Loaded %d snapshot rows since %s.", len(snaps), since.Format(time.RFC3339))

		res, err := optimizer.Run(log, snaps,
			decimal.NewFromFloat(defaultInitialUSDC),
			decimal.NewFromFloat(cfg.Loop.StakeUSDC),
			cfg.Loop.FeePct)
		if err != nil {
			return err
		}
		if err := optimizer.WriteParams(cfg.Paths.ParamsFile, res); err != nil {
			return err
		}
		log.Infof("✅ Wrote best params to %s.", cfg.Paths.ParamsFile)

		// One-line run record on stdout; under cron this lands in cron.log.
		fmt.Println(res.Summary())
		return nil
	},
}

func init() {
	optimizeCmd.Flags().DurationVar(&optimizeSince, "since", 24*time.Hour, "replay window of snapshot history")
}
