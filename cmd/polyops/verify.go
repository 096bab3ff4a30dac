package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"polyops/internal/tradelog"
	"polyops/internal/verify"
)

var verifyStrict bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check logged trades against Polygonscan receipts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := verify.NewClient(cfg.PolygonscanAPIURL, os.Getenv(verify.EnvAPIKey))
		if err != nil {
			return err
		}

		trades, err := tradelog.ReadTrades(cfg.Paths.TradesLog)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			log.Infof("ℹ️ Trade log %s is empty. Nothing to verify.", cfg.Paths.TradesLog)
			return nil
		}

		summary := verify.Run(cmd.Context(), log, client, trades)
		fmt.Printf("verified %d trades: %d confirmed, %d failed, %d unverifiable (paper), %d lookup errors\n",
			summary.TotalTrades, summary.Confirmed, summary.Failed, summary.Unverifiable, summary.Errors)

		if verifyStrict && !summary.Clean() {
			return fmt.Errorf("strict verification failed: %d failed, %d lookup errors", summary.Failed, summary.Errors)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyStrict, "strict", false, "exit non-zero unless every on-chain trade confirms")
}
