package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natej/panos-upgrade/internal/cli/render"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/deviceapi/httpclient"
	"github.com/natej/panos-upgrade/internal/layout"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/ratelimit"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/store/inventory"
	"github.com/natej/panos-upgrade/internal/validator"
)

func newDeviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Inspect and manage the device inventory.",
	}
	cmd.AddCommand(
		newDeviceListCommand(),
		newDeviceStatusCommand(),
		newDeviceValidateCommand(),
		newDeviceMetricsCommand(),
		newDeviceDiscoverCommand(),
		newDeviceExportCommand(),
	)
	return cmd
}

func loadInventory() (*inventory.Store, error) {
	l := layout.New(cfg.WorkDir)
	inv := inventory.New(l.InventoryFile())
	if err := inv.Reload(); err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	return inv, nil
}

func dialDevice() deviceapi.Dialer {
	opts := []httpclient.Option{}
	if cfg.DeviceAPIInsecureSkipVerify {
		opts = append(opts, httpclient.WithInsecureSkipVerify())
	}
	return httpclient.NewDialer(cfg.DeviceAPIKey, opts...)
}

func newDeviceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every device in the inventory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			render.Devices(cmd.OutOrStdout(), inv.All())
			return nil
		},
	}
}

func newDeviceStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status SERIAL",
		Short: "Show a device's current upgrade status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			var ds model.DeviceStatus
			if err := atomic.ReadJSON(l.DeviceStatusFile(args[0]), &ds); err != nil {
				return fmt.Errorf("no status recorded for device %s: %w", args[0], err)
			}
			render.DeviceStatuses(cmd.OutOrStdout(), []model.DeviceStatus{ds})
			return nil
		},
	}
}

func newDeviceMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics SERIAL",
		Short: "Collect a device's current raw metrics snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			d, ok := inv.Lookup(args[0])
			if !ok {
				return fmt.Errorf("device %s not found in inventory", args[0])
			}
			dial := dialDevice()
			client := dial.Dial(d)
			m, err := client.Metrics(cmd.Context())
			if err != nil {
				return fmt.Errorf("collecting metrics: %w", err)
			}
			render.Metrics(cmd.OutOrStdout(), d.Serial, m)
			return nil
		},
	}
}

func newDeviceValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate SERIAL",
		Short: "Run an ad-hoc pre/post comparison against a device's current metrics (useful between upgrade steps).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			d, ok := inv.Lookup(args[0])
			if !ok {
				return fmt.Errorf("device %s not found in inventory", args[0])
			}
			l := layout.New(cfg.WorkDir)
			v := validator.New(l.ValidationDir(), validator.Margins{
				TCPSessionPercent: cfg.TCPSessionMarginPercent,
				RouteCount:        cfg.RouteMargin,
				ARPCount:          cfg.ARPMargin,
			})
			client := dialDevice().Dial(d)
			pre, err := v.Collect(cmd.Context(), client, d.Serial)
			if err != nil {
				return fmt.Errorf("collecting metrics: %w", err)
			}
			post, err := v.CollectPostFlight(cmd.Context(), client, pre)
			if err != nil {
				return fmt.Errorf("collecting comparison metrics: %w", err)
			}
			render.Comparison(cmd.OutOrStdout(), d.Serial, post.Comparison)
			return nil
		},
	}
}

func newDeviceDiscoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Query every inventory device's system_info(), rate-limited.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			limiter := ratelimit.New(cfg.DiscoveryRateLimitRPM)
			dial := dialDevice()

			var statuses []model.DeviceStatus
			for _, d := range inv.All() {
				if err := limiter.Wait(cmd.Context()); err != nil {
					return err
				}
				client := dial.Dial(d)
				info, err := client.SystemInfo(cmd.Context())
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "discover %s: %v\n", d.Serial, err)
					continue
				}
				statuses = append(statuses, model.DeviceStatus{
					Serial:         d.Serial,
					Hostname:       d.Hostname,
					CurrentVersion: info.Version,
				})
			}
			render.DeviceStatuses(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
}

func newDeviceExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the inventory as CSV to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			return render.ExportCSV(cmd.OutOrStdout(), inv.All())
		},
	}
}

