// Command panos-upgrade is both the daemon and the CLI client for the
// file-system control plane it drives: `panos-upgrade daemon start`
// launches the long-running orchestrator; every other subcommand reads
// or writes the same work_dir tree a running daemon watches.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/pkg/log"
)

var (
	cfgFile string
	cfg     = config.Default()
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "panos-upgrade",
		Short:        "Orchestrates PAN-OS firmware upgrades across an appliance fleet.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cmd.Flags(), cfgFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			cfg = loaded
			log.Init(&cfg.Log)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a config file (default: ~/.config/panos-upgrade/config.yaml).")
	cfg.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newDaemonCommand(),
		newJobCommand(),
		newDeviceCommand(),
		newUpgradeCommand(),
		newUpgradeHAPairsCommand(),
		newDownloadCommand(),
		newDownloadHAPairsCommand(),
		newConfigCommand(),
		newPathCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
