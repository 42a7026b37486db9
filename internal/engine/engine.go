// Package engine implements the per-device upgrade workflow
// (SPEC_FULL.md §5.6): a looplab/fsm state machine, generalized from the
// teacher's vehicle firmware FSM, driving one device through
// validate -> download -> install -> reboot -> validate(post) -> complete,
// with failed/cancelled/skipped reachable as terminals from any
// non-terminal state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/natej/panos-upgrade/internal/backoff"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	fsmutil "github.com/natej/panos-upgrade/internal/pkg/util/fsm"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/store/upgradepath"
	"github.com/natej/panos-upgrade/internal/upgradeerr"
	"github.com/natej/panos-upgrade/internal/validator"
	"github.com/natej/panos-upgrade/pkg/log"
)

const (
	evValidate     = "validate"
	evDownload     = "download"
	evDownloadDone = "download_complete"
	evInstall      = "install"
	evReboot       = "reboot"
	evValidatePost = "validate_post"
	evComplete     = "complete"
	evFail         = "fail"
	evCancel       = "cancel"
	evSkip         = "skip"
)

// Config bundles the tunables the engine needs from the process
// configuration singleton (SPEC_FULL.md §7); kept narrow so engine does
// not import internal/config and create an import cycle with callers
// that configure it.
type Config struct {
	MinDiskGB             float64
	DownloadRetryAttempts int
	JobStallTimeout       time.Duration
	MaxRebootWait         time.Duration
	MaxRebootPollInterval time.Duration
	DryRun                bool
}

// Engine drives a single device's workflow.
type Engine struct {
	cfg        Config
	paths      *upgradepath.Store
	validator  *validator.Validator
	statusDir  string
}

// New constructs an Engine writing DeviceStatus files under statusDir
// (status/devices/).
func New(cfg Config, paths *upgradepath.Store, v *validator.Validator, statusDir string) *Engine {
	return &Engine{cfg: cfg, paths: paths, validator: v, statusDir: statusDir}
}

func (e *Engine) statusPath(serial string) string {
	return fmt.Sprintf("%s/%s.json", e.statusDir, serial)
}

// loadOrInit loads any existing DeviceStatus for serial, or builds a
// fresh one. Per SPEC_FULL.md §5.6, an existing starting_version is
// never overwritten — it anchors resumption after a daemon restart.
func (e *Engine) loadOrInit(serial, hostname, jobID string) *model.DeviceStatus {
	var ds model.DeviceStatus
	if err := atomic.ReadJSON(e.statusPath(serial), &ds); err == nil && ds.Serial == serial {
		ds.JobID = jobID
		return &ds
	}
	return &model.DeviceStatus{
		Serial:        serial,
		Hostname:      hostname,
		UpgradeStatus: model.UpgradeStatusPending,
		JobID:         jobID,
		LastUpdated:   time.Now().UTC(),
	}
}

func (e *Engine) persist(ds *model.DeviceStatus) {
	ds.LastUpdated = time.Now().UTC()
	if err := atomic.WriteJSON(e.statusPath(ds.Serial), ds); err != nil {
		log.Error(err, "failed to persist device status", "serial", ds.Serial)
	}
}

// run is the shared machinery driven by Run/RunDownloadOnly; downloadOnly
// stops the workflow after the download phase instead of installing.
func (e *Engine) run(ctx context.Context, client deviceapi.Client, ds *model.DeviceStatus, downloadOnly bool) error {
	m := newMachine(ds, e)

	fire := func(event string, args ...any) error {
		if err := m.Event(ctx, event, args...); err != nil {
			if _, ok := err.(fsm.NoTransitionError); ok {
				return nil
			}
			return err
		}
		return nil
	}

	checkCancel := func() error {
		select {
		case <-ctx.Done():
			ds.UpgradeStatus = model.UpgradeStatusCancelled
			ds.AddError(ds.CurrentPhase, "cancelled", ctx.Err().Error())
			e.persist(ds)
			return upgradeerr.New(upgradeerr.KindCancelled, ds.CurrentPhase, ctx.Err())
		default:
			return nil
		}
	}

	// Initial transition.
	if ds.StartingVersion == "" {
		info, err := client.SystemInfo(ctx)
		if err != nil {
			return e.fail(ds, "initial", err)
		}
		ds.StartingVersion = info.Version
		ds.CurrentVersion = info.Version
	}

	path, ok := e.paths.Plan(ds.StartingVersion)
	if !ok {
		ds.SkipReason = fmt.Sprintf("no upgrade path for version %s", ds.StartingVersion)
		_ = fire(evSkip)
		e.persist(ds)
		return nil
	}
	ds.UpgradePath = path
	ds.TargetVersion = path[len(path)-1]

	info, err := client.SystemInfo(ctx)
	if err != nil {
		return e.fail(ds, "initial", err)
	}
	live := info.Version
	ds.CurrentVersion = live

	if live == ds.TargetVersion {
		_ = fire(evComplete)
		e.persist(ds)
		return nil
	}

	index := positionIn(path, live)
	ds.CurrentPathIndex = index

	if err := checkCancel(); err != nil {
		return err
	}

	if err := fire(evValidate); err != nil {
		return e.fail(ds, "validating", err)
	}
	e.persist(ds)

	pre, err := e.collectPreFlight(ctx, client, ds)
	if err != nil {
		return e.fail(ds, "validating", err)
	}

	if err := checkCancel(); err != nil {
		return err
	}

	if err := fire(evDownload); err != nil {
		return e.fail(ds, "downloading", err)
	}
	e.persist(ds)

	if err := e.downloadPhase(ctx, client, ds, path[index:]); err != nil {
		return e.fail(ds, "downloading", err)
	}

	if downloadOnly {
		ds.ReadyForInstall = true
		_ = fire(evDownloadDone)
		e.persist(ds)
		return nil
	}

	cycles := 0
	for ds.CurrentVersion != ds.TargetVersion && cycles < len(path) {
		cycles++

		if err := checkCancel(); err != nil {
			return err
		}

		if err := fire(evInstall); err != nil {
			return e.fail(ds, "installing", err)
		}
		e.persist(ds)

		if err := e.installPhase(ctx, client, ds.TargetVersion); err != nil {
			return e.fail(ds, "installing", err)
		}

		if err := fire(evReboot); err != nil {
			return e.fail(ds, "rebooting", err)
		}
		e.persist(ds)

		if err := e.rebootPhase(ctx, client); err != nil {
			return e.fail(ds, "rebooting", err)
		}

		info, err := client.SystemInfo(ctx)
		if err != nil {
			return e.fail(ds, "rebooting", err)
		}
		ds.CurrentVersion = info.Version
		ds.CurrentPathIndex = positionIn(path, info.Version)
		e.persist(ds)
	}

	if err := fire(evValidatePost); err != nil {
		return e.fail(ds, "validating_post", err)
	}
	e.persist(ds)

	post, err := e.validator.CollectPostFlight(ctx, client, pre)
	if err != nil {
		ds.AddError("validating_post", "post-flight collection failed", err.Error())
	} else if !post.Comparison.ValidationPassed {
		ds.AddError("validating_post", "validation margins exceeded", "see post-flight artifact for details")
	}

	_ = fire(evComplete)
	e.persist(ds)
	return nil
}

// Run drives a full standalone upgrade workflow for one device.
func (e *Engine) Run(ctx context.Context, client deviceapi.Client, serial, hostname, jobID string) *model.DeviceStatus {
	ds := e.loadOrInit(serial, hostname, jobID)
	if err := e.run(ctx, client, ds, false); err != nil {
		log.Error(err, "device workflow ended with error", "serial", serial)
	}
	return ds
}

// RunDownloadOnly drives the download phase only, leaving the device
// ready_for_install without installing.
func (e *Engine) RunDownloadOnly(ctx context.Context, client deviceapi.Client, serial, hostname, jobID string) *model.DeviceStatus {
	ds := e.loadOrInit(serial, hostname, jobID)
	if err := e.run(ctx, client, ds, true); err != nil {
		log.Error(err, "device download workflow ended with error", "serial", serial)
	}
	return ds
}

func (e *Engine) fail(ds *model.DeviceStatus, phase string, err error) error {
	if errors.Is(err, context.Canceled) {
		ds.UpgradeStatus = model.UpgradeStatusCancelled
		ds.CurrentPhase = phase
		ds.AddError(phase, "cancelled", err.Error())
		e.persist(ds)
		return upgradeerr.New(upgradeerr.KindCancelled, phase, err)
	}
	ds.UpgradeStatus = model.UpgradeStatusFailed
	ds.CurrentPhase = phase
	ds.AddError(phase, err.Error(), "")
	e.persist(ds)
	return err
}

func (e *Engine) collectPreFlight(ctx context.Context, client deviceapi.Client, ds *model.DeviceStatus) (model.PreFlightArtifact, error) {
	if e.cfg.DryRun {
		time.Sleep(time.Millisecond)
	}
	return e.validator.Collect(ctx, client, ds.Serial)
}

func (e *Engine) downloadPhase(ctx context.Context, client deviceapi.Client, ds *model.DeviceStatus, remaining []string) error {
	for _, v := range remaining {
		if err := e.validator.DiskPrecheck(ctx, client, e.cfg.MinDiskGB); err != nil {
			return err
		}

		info, err := client.SoftwareInfo(ctx)
		if err != nil {
			return fmt.Errorf("checking software info: %w", err)
		}
		if contains(info.Downloaded, v) {
			ds.SkippedVersions = append(ds.SkippedVersions, v)
			continue
		}

		if e.cfg.DryRun {
			time.Sleep(5 * time.Millisecond)
			ds.DownloadedVersions = append(ds.DownloadedVersions, v)
			continue
		}

		if err := e.downloadWithRetry(ctx, client, v); err != nil {
			return err
		}
		ds.DownloadedVersions = append(ds.DownloadedVersions, v)
		e.persist(ds)
	}

	if e.cfg.DryRun {
		return nil
	}

	info, err := client.SoftwareInfo(ctx)
	if err != nil {
		return fmt.Errorf("verifying downloads: %w", err)
	}
	for _, v := range remaining {
		if !contains(info.Downloaded, v) {
			return upgradeerr.Newf(upgradeerr.KindVerificationFailed, "downloading", "version %s missing from software_info after download", v)
		}
	}
	return nil
}

func (e *Engine) downloadWithRetry(ctx context.Context, client deviceapi.Client, version string) error {
	policy := backoff.Policy{Initial: time.Second, Max: 30 * time.Second, Factor: 2}
	var lastErr error
	for attempt := 0; attempt < e.cfg.DownloadRetryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.Next(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		job, err := client.Download(ctx, version)
		if err != nil {
			lastErr = err
			continue
		}
		if err := client.WaitDownload(ctx, job); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("download of %s failed after %d attempts: %w", version, e.cfg.DownloadRetryAttempts, lastErr)
}

func (e *Engine) installPhase(ctx context.Context, client deviceapi.Client, version string) error {
	if e.cfg.DryRun {
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	job, err := client.Install(ctx, version)
	if err != nil {
		return err
	}
	return client.WaitInstall(ctx, job)
}

func (e *Engine) rebootPhase(ctx context.Context, client deviceapi.Client) error {
	if e.cfg.DryRun {
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	if err := client.Reboot(ctx); err != nil {
		return err
	}
	return client.WaitOnline(ctx, e.cfg.MaxRebootWait)
}

func positionIn(path []string, version string) int {
	for i, v := range path {
		if v == version {
			return i
		}
	}
	return 0
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// newMachine builds the looplab/fsm state machine for one device
// workflow. A single enter_state callback keeps DeviceStatus.upgrade_status
// and current_phase in sync with the machine, mirroring the side-effect
// callbacks of the teacher's vehicle FSM.
func newMachine(ds *model.DeviceStatus, e *Engine) *fsm.FSM {
	nonTerminal := []string{
		string(model.UpgradeStatusPending),
		string(model.UpgradeStatusValidating),
		string(model.UpgradeStatusDownloading),
		string(model.UpgradeStatusInstalling),
		string(model.UpgradeStatusRebooting),
	}

	events := fsm.Events{
		{Name: evValidate, Src: []string{string(model.UpgradeStatusPending)}, Dst: string(model.UpgradeStatusValidating)},
		{Name: evDownload, Src: []string{string(model.UpgradeStatusValidating)}, Dst: string(model.UpgradeStatusDownloading)},
		{Name: evDownloadDone, Src: []string{string(model.UpgradeStatusDownloading)}, Dst: string(model.UpgradeStatusDownloadComplete)},
		{Name: evInstall, Src: []string{string(model.UpgradeStatusDownloading), string(model.UpgradeStatusValidating)}, Dst: string(model.UpgradeStatusInstalling)},
		{Name: evReboot, Src: []string{string(model.UpgradeStatusInstalling)}, Dst: string(model.UpgradeStatusRebooting)},
		{Name: evValidatePost, Src: []string{string(model.UpgradeStatusRebooting)}, Dst: string(model.UpgradeStatusValidating)},
		{Name: evComplete, Src: []string{string(model.UpgradeStatusValidating), string(model.UpgradeStatusPending)}, Dst: string(model.UpgradeStatusComplete)},
		{Name: evSkip, Src: []string{string(model.UpgradeStatusPending)}, Dst: string(model.UpgradeStatusSkipped)},
		{Name: evFail, Src: nonTerminal, Dst: string(model.UpgradeStatusFailed)},
		{Name: evCancel, Src: nonTerminal, Dst: string(model.UpgradeStatusCancelled)},
	}

	phaseOf := map[string]string{
		string(model.UpgradeStatusValidating):       "validating",
		string(model.UpgradeStatusDownloading):      "downloading",
		string(model.UpgradeStatusDownloadComplete): "download_complete",
		string(model.UpgradeStatusInstalling):        "installing",
		string(model.UpgradeStatusRebooting):         "rebooting",
		string(model.UpgradeStatusComplete):          "complete",
		string(model.UpgradeStatusSkipped):           "skipped",
		string(model.UpgradeStatusFailed):            "failed",
		string(model.UpgradeStatusCancelled):         "cancelled",
	}

	enter := fsmutil.WrapEvent(func(ctx context.Context, ev *fsm.Event) error {
		ds.UpgradeStatus = model.UpgradeStatus(ev.Dst)
		if phase, ok := phaseOf[ev.Dst]; ok {
			ds.CurrentPhase = phase
		}
		return nil
	})

	callbacks := fsm.Callbacks{
		"enter_state": enter,
	}

	return fsm.NewFSM(string(ds.UpgradeStatus), events, callbacks)
}
