package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natej/panos-upgrade/internal/cli/render"
	"github.com/natej/panos-upgrade/internal/layout"
	"github.com/natej/panos-upgrade/internal/store/upgradepath"
)

func newPathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Inspect the upgrade path table (config/upgrade_paths.json).",
	}
	cmd.AddCommand(newPathShowCommand(), newPathValidateCommand())
	return cmd
}

func newPathShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show FROM_VERSION",
		Short: "Print the planned upgrade sequence starting from a version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			paths := upgradepath.New(l.UpgradePathsFile())
			if err := paths.Reload(); err != nil {
				return err
			}
			seq, ok := paths.Plan(args[0])
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "no upgrade path defined for %s (device would be skipped)\n", args[0])
				return nil
			}
			t := render.Table()
			t.AddRow("FROM", "SEQUENCE", "TARGET")
			t.AddRow(args[0], seq, seq[len(seq)-1])
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newPathValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load config/upgrade_paths.json and report whether it parses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			paths := upgradepath.New(l.UpgradePathsFile())
			if err := paths.Reload(); err != nil {
				return fmt.Errorf("upgrade path table is invalid: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "upgrade path table loaded successfully")
			return nil
		},
	}
}
