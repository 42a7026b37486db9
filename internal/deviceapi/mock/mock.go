// Package mock implements an in-memory deviceapi.Client used by tests and
// by dry-run mode (SPEC_FULL.md §5.6, "Dry-run mode" in the engine).
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/model"
)

// Client is a fully in-memory, goroutine-safe deviceapi.Client. Tests
// configure its behavior directly through the exported fields/methods
// before handing it to the engine.
type Client struct {
	mu sync.Mutex

	Serial  string
	Model   string
	Version string
	HA      model.HAState

	Available  []string
	Downloaded []string

	DiskGB float64

	// DownloadDuration/InstallDuration/RebootDuration simulate nominal
	// device-side work; dry-run and tests keep these short.
	DownloadDuration time.Duration
	InstallDuration  time.Duration
	RebootDuration   time.Duration

	// FailDownload/FailInstall force the named version's job to fail,
	// for exercising the engine's error handling paths.
	FailDownload map[string]bool
	FailInstall  map[string]bool

	jobs      map[deviceapi.JobHandle]*job
	rebooting bool
}

type job struct {
	kind    string // "download" or "install"
	version string
	done    bool
	failed  bool
	startAt time.Time
	dur     time.Duration
}

// New constructs a mock Client seeded with the given starting version.
func New(serial, modelName, version string) *Client {
	return &Client{
		Serial:           serial,
		Model:            modelName,
		Version:          version,
		HA:               model.HAStateStandalone,
		DiskGB:           100,
		DownloadDuration: 10 * time.Millisecond,
		InstallDuration:  10 * time.Millisecond,
		RebootDuration:   10 * time.Millisecond,
		jobs:             map[deviceapi.JobHandle]*job{},
	}
}

func (c *Client) SystemInfo(ctx context.Context) (deviceapi.SystemInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return deviceapi.SystemInfo{Version: c.Version, Model: c.Model, Serial: c.Serial}, nil
}

func (c *Client) HAState(ctx context.Context) (model.HAState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.HA, nil
}

func (c *Client) Metrics(ctx context.Context) (model.Metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.Metrics{
		TCPSessions:     100,
		RouteCount:      10,
		ARPCount:        10,
		DiskAvailableGB: c.DiskGB,
	}, nil
}

func (c *Client) SoftwareCheck(ctx context.Context) error { return nil }

func (c *Client) SoftwareInfo(ctx context.Context) (deviceapi.SoftwareInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	downloaded := make([]string, len(c.Downloaded))
	copy(downloaded, c.Downloaded)
	available := make([]string, len(c.Available))
	copy(available, c.Available)
	return deviceapi.SoftwareInfo{Downloaded: downloaded, Available: available}, nil
}

func (c *Client) DiskAvailable(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DiskGB, nil
}

func (c *Client) Download(ctx context.Context, version string) (deviceapi.JobHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := deviceapi.JobHandle(fmt.Sprintf("dl-%s-%d", version, len(c.jobs)))
	c.jobs[h] = &job{kind: "download", version: version, startAt: time.Now(), dur: c.DownloadDuration, failed: c.FailDownload[version]}
	return h, nil
}

func (c *Client) WaitDownload(ctx context.Context, h deviceapi.JobHandle) error {
	return c.waitJob(ctx, h, func(version string) {
		c.mu.Lock()
		c.Downloaded = append(c.Downloaded, version)
		c.mu.Unlock()
	})
}

func (c *Client) Install(ctx context.Context, version string) (deviceapi.JobHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := deviceapi.JobHandle(fmt.Sprintf("in-%s-%d", version, len(c.jobs)))
	c.jobs[h] = &job{kind: "install", version: version, startAt: time.Now(), dur: c.InstallDuration, failed: c.FailInstall[version]}
	return h, nil
}

func (c *Client) WaitInstall(ctx context.Context, h deviceapi.JobHandle) error {
	return c.waitJob(ctx, h, func(version string) {
		c.mu.Lock()
		c.Version = version
		c.mu.Unlock()
	})
}

func (c *Client) waitJob(ctx context.Context, h deviceapi.JobHandle, onSuccess func(version string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.mu.Lock()
		j, ok := c.jobs[h]
		c.mu.Unlock()
		if !ok {
			return fmt.Errorf("unknown job %s", h)
		}

		if time.Since(j.startAt) >= j.dur {
			if j.failed {
				return fmt.Errorf("%s of %s failed", j.kind, j.version)
			}
			onSuccess(j.version)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (c *Client) Reboot(ctx context.Context) error {
	c.mu.Lock()
	c.rebooting = true
	c.mu.Unlock()
	return nil
}

func (c *Client) WaitOnline(ctx context.Context, maxWait time.Duration) error {
	deadline := time.Now().Add(c.RebootDuration)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			c.mu.Lock()
			c.rebooting = false
			c.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Dialer hands out one mock Client per serial, returning the same Client
// on every Dial of that serial, for tests that need a deviceapi.Dialer.
type Dialer struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewDialer constructs an empty Dialer.
func NewDialer() *Dialer {
	return &Dialer{clients: map[string]*Client{}}
}

// Register pre-seeds the client returned for a given serial.
func (d *Dialer) Register(serial string, c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[serial] = c
}

func (d *Dialer) Dial(device model.Device) deviceapi.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[device.Serial]; ok {
		return c
	}
	c := New(device.Serial, device.Model, device.CurrentVersion)
	d.clients[device.Serial] = c
	return c
}
