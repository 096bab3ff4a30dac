// Command polyops is the operations toolkit around the paper-trading bot:
// cron management for the optimizer, the market snapshot collector, the
// profitability loop, on-chain verification and forensic reporting.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polyops/internal/config"
	"polyops/internal/logging"
)

var (
	// Global flags.
	cfgPath string
	verbose bool

	log *zap.SugaredLogger
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "polyops",
	Short: "Operations toolkit for the prediction-market trading bot",
	Long: `polyops wraps the operational side of the trading bot:

  cron      install/uninstall the optimizer crontab entry
  collect   poll Polymarket and store market snapshots in Postgres
  loop      run the paper-trading profitability loop
  optimize  replay snapshots over a parameter grid (the cron target)
  verify    check logged trades against Polygonscan receipts
  report    generate a forensic markdown report from the trade logs`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if log, err = logging.New(verbose); err != nil {
			return err
		}
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the YAML config file (default $POLYOPS_CONFIG, else built-ins)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(cronCmd, collectCmd, loopCmd, optimizeCmd, verifyCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if log != nil {
			log.Errorf("❌ %v", err)
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}
