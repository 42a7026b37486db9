// Package config resolves the daemon/CLI's configuration singleton
// through the chain documented in SPEC_FULL.md §2: CLI flag > environment
// variable > user config file > built-in default, implemented with
// spf13/viper bound against spf13/pflag flags (mirroring the teacher's
// pkg/log.Options / AddFlags pattern, generalized beyond logging).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/natej/panos-upgrade/pkg/log"
)

// Config is the process-level configuration singleton. It is read-only
// after Load returns (SPEC_FULL.md §10, "Global state").
type Config struct {
	// WorkDir is the root of the file-system control plane.
	WorkDir string `mapstructure:"work-dir"`

	// Workers is the worker pool size, 1..50.
	Workers int `mapstructure:"workers"`
	// WorkerQueueSize bounds how many items the pool will buffer before
	// Job Intake's submit starts failing back to pending/.
	WorkerQueueSize int `mapstructure:"worker-queue-size"`

	// MinDiskGB is the minimum free space required before each download.
	MinDiskGB float64 `mapstructure:"min-disk-gb"`

	// Validation margins.
	TCPSessionMarginPercent float64 `mapstructure:"tcp-session-margin-percent"`
	RouteMargin             int     `mapstructure:"route-margin"`
	ARPMargin               int     `mapstructure:"arp-margin"`

	// Device-API timeouts and retry budgets. The engine applies
	// MaxRebootWait and DownloadRetryAttempts. SoftwareCheckTimeout and
	// SoftwareInfoTimeout are read by no component; the engine receives
	// JobStallTimeout and MaxRebootPollInterval but does not apply them.
	SoftwareCheckTimeout    time.Duration `mapstructure:"software-check-timeout"`
	SoftwareInfoTimeout     time.Duration `mapstructure:"software-info-timeout"`
	JobStallTimeout         time.Duration `mapstructure:"job-stall-timeout"`
	MaxRebootPollInterval   time.Duration `mapstructure:"max-reboot-poll-interval"`
	MaxRebootWait           time.Duration `mapstructure:"max-reboot-wait"`
	DownloadRetryAttempts   int           `mapstructure:"download-retry-attempts"`

	// Discovery. DiscoveryRateLimitRPM gates `device discover`;
	// DiscoveryRetryAttempts is read by no component.
	DiscoveryRetryAttempts  int     `mapstructure:"discovery-retry-attempts"`
	DiscoveryRateLimitRPM   float64 `mapstructure:"discovery-rate-limit-rpm"`

	// StatusInterval is how often the Status Writer snapshots daemon/worker state.
	StatusInterval time.Duration `mapstructure:"status-interval"`
	// ScanInterval is the Job/Command Intake poll period.
	ScanInterval time.Duration `mapstructure:"scan-interval"`
	// StaleWorkflowGrace is resolved like every other option but read by no
	// component: the engine does not check whether another daemon instance
	// is driving a device.
	StaleWorkflowGrace time.Duration `mapstructure:"stale-workflow-grace"`

	// MetricsAddr serves /metrics and /healthz (ambient, ungated by any Non-goal).
	MetricsAddr string `mapstructure:"metrics-addr"`

	// DeviceAPIKey authenticates every httpclient.Dialer request (X-PAN-KEY).
	DeviceAPIKey string `mapstructure:"device-api-key"`
	// DeviceAPIInsecureSkipVerify disables TLS verification against device
	// management interfaces presenting self-signed certificates.
	DeviceAPIInsecureSkipVerify bool `mapstructure:"device-api-insecure-skip-verify"`
	// DryRun drives every device workflow through the engine's simulated
	// timings instead of calling a real Device-API, for rehearsing a job
	// plan without touching hardware.
	DryRun bool `mapstructure:"dry-run"`

	Log     log.Options   `mapstructure:"log"`
	Archive ArchiveOptions `mapstructure:"archive"`
	Notify  NotifyOptions  `mapstructure:"notify"`
}

// ArchiveOptions configures the optional validation-artifact archiver
// (SPEC_FULL.md §5.15). Disabled unless Enabled is set.
type ArchiveOptions struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access-key-id"`
	SecretAccessKey string        `mapstructure:"secret-access-key"`
	UseSSL          bool          `mapstructure:"use-ssl"`
	Bucket          string        `mapstructure:"bucket"`
	RetentionAge    time.Duration `mapstructure:"retention-age"`
	SweepInterval   time.Duration `mapstructure:"sweep-interval"`
}

// NotifyOptions configures the optional MQTT status-change notifier
// (SPEC_FULL.md §5.16). Disabled unless Enabled is set.
type NotifyOptions struct {
	Enabled     bool   `mapstructure:"enabled"`
	BrokerURL   string `mapstructure:"broker-url"`
	ClientID    string `mapstructure:"client-id"`
	TopicPrefix string `mapstructure:"topic-prefix"`
}

// Default returns the built-in defaults, the bottom of the resolution chain.
func Default() *Config {
	workDir := "/var/lib/panos-upgrade"
	if home, err := os.UserHomeDir(); err == nil {
		workDir = filepath.Join(home, ".panos-upgrade")
	}

	return &Config{
		WorkDir:                 workDir,
		Workers:                 5,
		WorkerQueueSize:         100,
		MinDiskGB:               5.0,
		TCPSessionMarginPercent: 10.0,
		RouteMargin:             5,
		ARPMargin:               5,
		SoftwareCheckTimeout:    2 * time.Minute,
		SoftwareInfoTimeout:     30 * time.Second,
		JobStallTimeout:         10 * time.Minute,
		MaxRebootPollInterval:   30 * time.Second,
		MaxRebootWait:           20 * time.Minute,
		DownloadRetryAttempts:   3,
		DiscoveryRetryAttempts:  3,
		DiscoveryRateLimitRPM:   60,
		StatusInterval:          5 * time.Second,
		ScanInterval:            300 * time.Millisecond,
		StaleWorkflowGrace:      2 * time.Minute,
		MetricsAddr:             "127.0.0.1:9090",
		Log:                     *log.NewOptions(),
	}
}

// AddFlags binds command-line flags for every option, following the
// teacher's NamedFlagSets idiom (see cmd/cpeer-edge-agent/app/options in
// the teacher repo) but against a flat pflag.FlagSet since this CLI has
// no controller-manager-style feature-gate surface.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.WorkDir, "work-dir", c.WorkDir, "Root of the file-system control plane.")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Worker pool size (1-50).")
	fs.IntVar(&c.WorkerQueueSize, "worker-queue-size", c.WorkerQueueSize, "Worker pool submit queue size.")
	fs.Float64Var(&c.MinDiskGB, "min-disk-gb", c.MinDiskGB, "Minimum free disk space (GB) required before each download.")
	fs.Float64Var(&c.TCPSessionMarginPercent, "tcp-session-margin-percent", c.TCPSessionMarginPercent, "Allowed TCP session percentage drift during validation.")
	fs.IntVar(&c.RouteMargin, "route-margin", c.RouteMargin, "Allowed route count drift during validation.")
	fs.IntVar(&c.ARPMargin, "arp-margin", c.ARPMargin, "Allowed ARP entry count drift during validation.")
	fs.DurationVar(&c.SoftwareCheckTimeout, "software-check-timeout", c.SoftwareCheckTimeout, "Timeout for software_check() calls (not applied by any component).")
	fs.DurationVar(&c.SoftwareInfoTimeout, "software-info-timeout", c.SoftwareInfoTimeout, "Timeout for software_info() calls (not applied by any component).")
	fs.DurationVar(&c.JobStallTimeout, "job-stall-timeout", c.JobStallTimeout, "Window of no progress before a download/install is considered stalled (not applied; the device client uses a fixed window).")
	fs.DurationVar(&c.MaxRebootPollInterval, "max-reboot-poll-interval", c.MaxRebootPollInterval, "Cap on exponential backoff while polling for a device back online (not applied by the engine).")
	fs.DurationVar(&c.MaxRebootWait, "max-reboot-wait", c.MaxRebootWait, "Deadline for wait_online after a reboot.")
	fs.IntVar(&c.DownloadRetryAttempts, "download-retry-attempts", c.DownloadRetryAttempts, "Retry attempts per image download.")
	fs.IntVar(&c.DiscoveryRetryAttempts, "discovery-retry-attempts", c.DiscoveryRetryAttempts, "Retry attempts for discovery collaborator calls (not applied by any component).")
	fs.Float64Var(&c.DiscoveryRateLimitRPM, "discovery-rate-limit-rpm", c.DiscoveryRateLimitRPM, "Token-bucket rate limit (requests/minute) applied to discovery calls.")
	fs.DurationVar(&c.StatusInterval, "status-interval", c.StatusInterval, "Status Writer snapshot interval.")
	fs.DurationVar(&c.ScanInterval, "scan-interval", c.ScanInterval, "Job/Command Intake poll interval.")
	fs.DurationVar(&c.StaleWorkflowGrace, "stale-workflow-grace", c.StaleWorkflowGrace, "Grace window against a second daemon instance double-driving a device (not applied by any component).")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Bind address for the /metrics and /healthz endpoints.")
	fs.StringVar(&c.DeviceAPIKey, "device-api-key", c.DeviceAPIKey, "API key sent as X-PAN-KEY to every device.")
	fs.BoolVar(&c.DeviceAPIInsecureSkipVerify, "device-api-insecure-skip-verify", c.DeviceAPIInsecureSkipVerify, "Skip TLS certificate verification against device management interfaces.")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "Simulate every device workflow instead of calling a real Device-API.")

	c.Log.AddFlags(fs)
}

// Validate checks invariants the flags/file/env values must satisfy.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir must not be empty")
	}
	if c.Workers < 1 || c.Workers > 50 {
		return fmt.Errorf("workers must be between 1 and 50, got %d", c.Workers)
	}
	if c.WorkerQueueSize < 1 {
		return fmt.Errorf("worker-queue-size must be positive")
	}
	if c.MinDiskGB < 0 {
		return fmt.Errorf("min-disk-gb must not be negative")
	}
	return nil
}

// Load resolves configuration through CLI flag > env var > config file >
// default. fs should already have had AddFlags called and command-line
// args parsed; configFile may be empty to use the default search path.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("PANOS_UPGRADE")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "panos-upgrade"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
