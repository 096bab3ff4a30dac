package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"polyops/internal/report"
	"polyops/internal/tradelog"
)

var reportStdout bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a forensic markdown report from the trade logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		trades, err := tradelog.ReadTrades(cfg.Paths.TradesLog)
		if err != nil {
			return err
		}
		wallet, err := tradelog.ReadWallet(cfg.Paths.WalletLog)
		if err != nil {
			return err
		}

		stats := report.Compute(time.Now().UTC(), trades, wallet)
		if len(stats.Anomalies) > 0 {
			log.Warnf("⚠️ Found %d log anomalies.", len(stats.Anomalies))
		}

		if reportStdout {
			body, err := report.Render(stats)
			if err != nil {
				return err
			}
			fmt.Print(string(body))
			return nil
		}

		path, err := report.Write(cfg.Paths.ReportsDir, stats)
		if err != nil {
			return err
		}
		log.Infof("✅ Report written to %s (%d trades, %d round trips, net %s USDC).",
			path, stats.TradeCount, stats.ClosedTrades, stats.NetPnLUSDC.StringFixed(2))
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportStdout, "stdout", false, "print the report instead of writing a file")
}
