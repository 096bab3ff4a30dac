package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"polyops/internal/config"
	"polyops/internal/cronjob"
)

var cronAssumeYes bool

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage the optimizer crontab entry",
}

var cronInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the optimizer cron entry (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newCronManager()
		if err != nil {
			return err
		}
		return m.Install(cmd.Context())
	},
}

var cronUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove every optimizer cron entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newCronManager()
		if err != nil {
			return err
		}
		return m.Uninstall(cmd.Context())
	},
}

var cronStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed optimizer cron entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newCronManager()
		if err != nil {
			return err
		}
		lines, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Println("no optimizer cron entry installed")
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	cronInstallCmd.Flags().BoolVarP(&cronAssumeYes, "yes", "y", false, "replace a conflicting entry without asking")
	cronCmd.AddCommand(cronInstallCmd, cronUninstallCmd, cronStatusCmd)
}

// newCronManager wires the real crontab and the desired entry for this
// binary and config. Cron runs jobs from $HOME, so every path baked into
// the entry is resolved to an absolute one at install time.
func newCronManager() (*cronjob.Manager, error) {
	tab, err := cronjob.NewSystemCrontab()
	if err != nil {
		return nil, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve working directory: %w", err)
	}
	logDir, err := filepath.Abs(cfg.Cron.LogDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve cron log dir %s: %w", cfg.Cron.LogDir, err)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create cron log dir %s: %w", logDir, err)
	}
	binPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve own binary path: %w", err)
	}

	// Forward the effective config file so the cron run sees the same
	// settings as the installing shell, which will not export POLYOPS_CONFIG.
	command := binPath + " optimize"
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = os.Getenv(config.EnvConfigPath)
	}
	if cfgFile != "" {
		absCfg, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve config path %s: %w", cfgFile, err)
		}
		command += " --config " + absCfg
	}
	entry := cronjob.Entry(cfg.Cron.Schedule, workDir, command, filepath.Join(logDir, "cron.log"))

	confirm := cronjob.StdinConfirm(os.Stdin, os.Stdout)
	if cronAssumeYes {
		confirm = func(string) bool { return true }
	}
	return cronjob.NewManager(log, tab, cronjob.MarkerFor(binPath), entry, confirm)
}
