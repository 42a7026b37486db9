package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/natej/panos-upgrade/internal/cli/render"
	"github.com/natej/panos-upgrade/internal/layout"
	"github.com/natej/panos-upgrade/internal/store/atomic"
)

// config/config.json holds operator-set overrides (SPEC_FULL.md §7,
// "File-system layout"); `config set` is the only writer. The daemon does
// not read this file: its settings resolve through internal/config's
// flag, environment and user-config-file chain. Unknown keys round-trip untouched so this stays forward
// compatible with fields this CLI build doesn't know about yet.

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or change operator-set overrides in config/config.json.",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigSetCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the contents of config/config.json.",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfigDocument()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(doc))
			for k := range doc {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			t := render.Table()
			t.AddRow("KEY", "VALUE")
			for _, k := range keys {
				t.AddRow(k, doc[k])
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set one override in config/config.json (bool/int/float values are parsed, otherwise stored as a string).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfigDocument()
			if err != nil {
				return err
			}
			doc[args[0]] = parseConfigValue(args[1])

			l := layout.New(cfg.WorkDir)
			if err := atomic.WriteJSON(l.ConfigFile(), doc); err != nil {
				return fmt.Errorf("writing config/config.json: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s = %v\n", args[0], doc[args[0]])
			return nil
		},
	}
}

func loadConfigDocument() (map[string]any, error) {
	l := layout.New(cfg.WorkDir)
	var doc map[string]any
	if err := atomic.ReadJSON(l.ConfigFile(), &doc); err != nil {
		return map[string]any{}, nil
	}
	return doc, nil
}

func parseConfigValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
