// Package deviceapi declares the abstract capability the Upgrade Engine
// drives (SPEC_FULL.md §5.4). The core is implementable against any
// provider honoring this interface; concrete implementations live in
// deviceapi/mock (for tests and dry-run) and deviceapi/httpclient.
package deviceapi

import (
	"context"
	"time"

	"github.com/natej/panos-upgrade/internal/model"
)

// SystemInfo is the result of system_info().
type SystemInfo struct {
	Version string
	Model   string
	Serial  string
}

// SoftwareInfo is the result of software_info().
type SoftwareInfo struct {
	Downloaded []string
	Available  []string
}

// JobHandle identifies an asynchronous device-side operation started by
// download() or install().
type JobHandle string

// Client is the capability the engine calls into. Every operation takes a
// context so callers can enforce the configured timeout and propagate
// cooperative cancellation; wait_* implementations MUST honor ctx
// cancellation inside their poll loop, not just at entry.
type Client interface {
	SystemInfo(ctx context.Context) (SystemInfo, error)
	HAState(ctx context.Context) (model.HAState, error)
	Metrics(ctx context.Context) (model.Metrics, error)

	SoftwareCheck(ctx context.Context) error
	SoftwareInfo(ctx context.Context) (SoftwareInfo, error)
	DiskAvailable(ctx context.Context) (float64, error)

	Download(ctx context.Context, version string) (JobHandle, error)
	WaitDownload(ctx context.Context, job JobHandle) error

	Install(ctx context.Context, version string) (JobHandle, error)
	WaitInstall(ctx context.Context, job JobHandle) error

	Reboot(ctx context.Context) error
	WaitOnline(ctx context.Context, maxWait time.Duration) error
}

// Dialer constructs a Client bound to one device, given its management
// address. Concrete transports (httpclient, mock) implement this so the
// engine never needs to know how a Client was built.
type Dialer interface {
	Dial(device model.Device) Client
}
