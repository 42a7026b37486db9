package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/natej/panos-upgrade/internal/cli/render"
	"github.com/natej/panos-upgrade/internal/daemon/cmdintake"
	"github.com/natej/panos-upgrade/internal/daemon/executor"
	"github.com/natej/panos-upgrade/internal/daemon/jobintake"
	"github.com/natej/panos-upgrade/internal/daemon/statuswriter"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/deviceapi/httpclient"
	"github.com/natej/panos-upgrade/internal/deviceapi/mock"
	"github.com/natej/panos-upgrade/internal/engine"
	"github.com/natej/panos-upgrade/internal/engine/registry"
	"github.com/natej/panos-upgrade/internal/layout"
	notifymqtt "github.com/natej/panos-upgrade/internal/notify/mqtt"
	"github.com/natej/panos-upgrade/internal/pkg/metrics"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/store/inventory"
	"github.com/natej/panos-upgrade/internal/store/upgradepath"
	"github.com/natej/panos-upgrade/internal/validation/archive"
	"github.com/natej/panos-upgrade/internal/validator"
	"github.com/natej/panos-upgrade/internal/workerpool"
	"github.com/natej/panos-upgrade/pkg/log"
)

func newDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the panos-upgrade orchestrator daemon.",
	}
	cmd.AddCommand(newDaemonStartCommand(), newDaemonStopCommand(), newDaemonStatusCommand())
	return cmd
}

func newDaemonStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the orchestrator daemon in the foreground.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func newDaemonStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running daemon to shut down.",
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			pid, err := readPID(l.PIDFile())
			if err != nil {
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("finding daemon process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signalling daemon process %d: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to daemon pid %d\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the daemon's last published status/daemon.json.",
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			var status map[string]any
			if err := atomic.ReadJSON(l.DaemonStatusFile(), &status); err != nil {
				return fmt.Errorf("reading daemon status (is the daemon running?): %w", err)
			}
			t := render.Table()
			for k, v := range status {
				t.AddRow(k, v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func runDaemon(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := layout.New(cfg.WorkDir)
	for _, dir := range l.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("preparing work_dir layout: %w", err)
		}
	}
	if err := writePID(l.PIDFile()); err != nil {
		log.Warn("daemon: failed to write pid file", "error", err.Error())
	}
	defer os.Remove(l.PIDFile())

	inv := inventory.New(l.InventoryFile())
	if err := inv.Reload(); err != nil {
		log.Warn("daemon: initial inventory load failed, starting with an empty inventory", "error", err.Error())
	}

	paths := upgradepath.New(l.UpgradePathsFile())
	if err := paths.Reload(); err != nil {
		log.Warn("daemon: initial upgrade-path load failed, starting with an empty table", "error", err.Error())
	}
	go reloadLoop(ctx, cfg.ScanInterval*10, inv.Reload, paths.Reload)

	v := validator.New(l.ValidationDir(), validator.Margins{
		TCPSessionPercent: cfg.TCPSessionMarginPercent,
		RouteCount:        cfg.RouteMargin,
		ARPCount:          cfg.ARPMargin,
	})

	eng := engine.New(engine.Config{
		MinDiskGB:             cfg.MinDiskGB,
		DownloadRetryAttempts: cfg.DownloadRetryAttempts,
		JobStallTimeout:       cfg.JobStallTimeout,
		MaxRebootWait:         cfg.MaxRebootWait,
		MaxRebootPollInterval: cfg.MaxRebootPollInterval,
		DryRun:                cfg.DryRun,
	}, paths, v, l.DeviceStatusDir())

	var dial deviceapi.Dialer
	if cfg.DryRun {
		dial = mock.NewDialer()
	} else {
		opts := []httpclient.Option{}
		if cfg.DeviceAPIInsecureSkipVerify {
			opts = append(opts, httpclient.WithInsecureSkipVerify())
		}
		dial = httpclient.NewDialer(cfg.DeviceAPIKey, opts...)
	}

	pool := workerpool.New(ctx, cfg.Workers, cfg.WorkerQueueSize)
	reg := registry.New()

	var notifier executor.Notifier
	if cfg.Notify.Enabled {
		n, err := notifymqtt.New(ctx, notifymqtt.Options{
			BrokerURL:   cfg.Notify.BrokerURL,
			ClientID:    cfg.Notify.ClientID,
			TopicPrefix: cfg.Notify.TopicPrefix,
		})
		if err != nil {
			log.Error(err, "daemon: mqtt notifier disabled: connection failed")
		} else {
			notifier = n
			defer n.Disconnect(context.Background())
		}
	}

	exec := executor.New(pool, inv, reg, eng, dial, notifier, executor.Dirs{
		Active: l.Active(), Completed: l.Completed(), Failed: l.Failed(), Cancelled: l.Cancelled(),
	})

	intake := jobintake.New(jobintake.Dirs{
		Pending: l.Pending(), Active: l.Active(), Completed: l.Completed(), Failed: l.Failed(), Cancelled: l.Cancelled(),
	}, inv, exec, cfg.ScanInterval)
	go intake.Run(ctx)

	cmdIntake := cmdintake.New(cmdintake.Dirs{
		Incoming: l.CommandsIncoming(), Processed: l.CommandsProcessed(),
	}, reg, cfg.ScanInterval)
	go cmdIntake.Run(ctx)

	writer := statuswriter.New(l.StatusDir(), statuswriter.Dirs{
		Pending: l.Pending(), Active: l.Active(), Completed: l.Completed(), Failed: l.Failed(), Cancelled: l.Cancelled(),
	}, pool, cfg.Workers, cfg.StatusInterval)
	go writer.Run(ctx)

	if cfg.Archive.Enabled {
		arc, err := archive.New(ctx, archive.Options{
			Endpoint: cfg.Archive.Endpoint, AccessKeyID: cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey, UseSSL: cfg.Archive.UseSSL,
			Bucket: cfg.Archive.Bucket, RetentionAge: cfg.Archive.RetentionAge,
		})
		if err != nil {
			log.Error(err, "daemon: archiver disabled: setup failed")
		} else {
			interval := cfg.Archive.SweepInterval
			if interval <= 0 {
				interval = time.Hour
			}
			go arc.Run(ctx, interval)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "daemon: metrics server stopped unexpectedly")
		}
	}()

	log.Info("daemon started", "work_dir", cfg.WorkDir, "workers", cfg.Workers, "metrics_addr", cfg.MetricsAddr)
	<-ctx.Done()
	log.Info("daemon shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	pool.Shutdown(30 * time.Second)
	return nil
}

func reloadLoop(ctx context.Context, interval time.Duration, reloaders ...func() error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, reload := range reloaders {
				if err := reload(); err != nil {
					log.Warn("daemon: periodic reload failed", "error", err.Error())
				}
			}
		}
	}
}

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	return pid, nil
}
