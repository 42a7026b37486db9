// Package jobintake implements Job Intake (SPEC_FULL.md §5.9): it polls
// queue/pending/, validates and admits descriptors (enforcing the
// Duplicate-Job Guard), and hands accepted jobs to the worker pool via a
// narrow Submitter interface so this package never imports workerpool
// directly.
package jobintake

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/store/inventory"
	"github.com/natej/panos-upgrade/internal/upgradeerr"
	"github.com/natej/panos-upgrade/pkg/log"
)

// Submitter hands an admitted job to the worker pool. Returning an error
// means "queue full, retry next scan" and the job is moved back to pending/.
type Submitter interface {
	Submit(job model.Job) error
}

// Dirs names the queue subdirectories this component reads and writes.
type Dirs struct {
	Pending   string
	Active    string
	Completed string
	Failed    string
	Cancelled string
}

// Intake periodically scans Dirs.Pending and admits jobs.
type Intake struct {
	dirs      Dirs
	inventory *inventory.Store
	submitter Submitter
	interval  time.Duration
}

// New constructs an Intake.
func New(dirs Dirs, inv *inventory.Store, submitter Submitter, interval time.Duration) *Intake {
	return &Intake{dirs: dirs, inventory: inv, submitter: submitter, interval: interval}
}

// Run scans on startup (recovering any resubmittable active/ jobs), then
// on every tick of interval and whenever fsnotify observes a write under
// Dirs.Pending, until ctx is cancelled.
func (in *Intake) Run(ctx context.Context) {
	in.recoverActive()
	in.scan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error(err, "job intake: fsnotify unavailable, falling back to poll-only")
	} else {
		defer watcher.Close()
		if err := watcher.Add(in.dirs.Pending); err != nil {
			log.Error(err, "job intake: failed to watch pending directory", "dir", in.dirs.Pending)
		}
	}

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.scan()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			in.scan()
		}
	}
}

// recoverActive resubmits every job file found in active/ on startup;
// this is idempotent because the engine resumes from existing
// DeviceStatus rather than re-planning (SPEC_FULL.md §7, "Crash recovery").
func (in *Intake) recoverActive() {
	files, err := atomic.ListJSONByMtime(in.dirs.Active)
	if err != nil {
		log.Error(err, "job intake: failed to list active jobs for recovery")
		return
	}
	for _, f := range files {
		var job model.Job
		if err := atomic.ReadJSON(f, &job); err != nil {
			log.Error(err, "job intake: failed to parse active job during recovery", "path", f)
			continue
		}
		if err := in.submitter.Submit(job); err != nil {
			log.Warn("job intake: resubmission of recovered active job deferred", "job_id", job.JobID, "error", err.Error())
		}
	}
}

// scan processes every descriptor in Dirs.Pending, oldest mtime first.
func (in *Intake) scan() {
	files, err := atomic.ListJSONByMtime(in.dirs.Pending)
	if err != nil {
		log.Error(err, "job intake: failed to list pending jobs")
		return
	}

	for _, f := range files {
		in.processOne(f)
	}
}

func (in *Intake) processOne(path string) {
	name := filepath.Base(path)

	var job model.Job
	if err := atomic.ReadJSON(path, &job); err != nil {
		in.reject(path, name, fmt.Sprintf("invalid job descriptor: %v", err))
		return
	}

	if err := in.validate(job); err != nil {
		in.reject(path, name, err.Error())
		return
	}

	if blocker, kind := in.findConflict(job); blocker != "" {
		in.reject(path, name, fmt.Sprintf("%s: blocked by job %s", kind, blocker))
		return
	}

	activePath := filepath.Join(in.dirs.Active, name)
	if err := atomic.Move(path, activePath); err != nil {
		log.Error(err, "job intake: failed to activate job", "job_id", job.JobID)
		return
	}

	if err := in.submitter.Submit(job); err != nil {
		// Queue full: put it back in pending/ for the next scan.
		if err := atomic.Move(activePath, path); err != nil {
			log.Error(err, "job intake: failed to revert job to pending after submit failure", "job_id", job.JobID)
		}
	}
}

func (in *Intake) validate(job model.Job) error {
	if job.JobID == "" {
		return fmt.Errorf("job_id must not be empty")
	}
	if len(job.Devices) != job.Type.ExpectedDevices() {
		return fmt.Errorf("type %s requires %d device(s), got %d", job.Type, job.Type.ExpectedDevices(), len(job.Devices))
	}
	for _, serial := range job.Devices {
		d, ok := in.inventory.Lookup(serial)
		if !ok {
			return fmt.Errorf("device %s not found in inventory", serial)
		}
		// A device with no management IP can never be dialed; fail the
		// job here rather than admit it and let the first device-API
		// call surface an opaque "unreachable" error.
		if d.MgmtIP == "" {
			return upgradeerr.Newf(upgradeerr.KindMissingMgmtIP, "job_intake",
				"device %s has no management IP configured", serial)
		}
	}
	return nil
}

// findConflict implements the Duplicate-Job Guard: a device already
// named by a pending or active job of either family blocks admission.
func (in *Intake) findConflict(job model.Job) (blockingJobID, kind string) {
	for _, dir := range []struct {
		path string
		kind string
	}{{in.dirs.Pending, "pending_job"}, {in.dirs.Active, "active_job"}} {
		files, err := atomic.ListJSON(dir.path)
		if err != nil {
			continue
		}
		for _, f := range files {
			var other model.Job
			if err := atomic.ReadJSON(f, &other); err != nil {
				continue
			}
			if other.JobID == job.JobID {
				continue
			}
			if overlaps(job.Devices, other.Devices) {
				return other.JobID, dir.kind
			}
		}
	}
	return "", ""
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}

func (in *Intake) reject(path, name, reason string) {
	failedPath := filepath.Join(in.dirs.Failed, name)
	if err := atomic.Move(path, failedPath); err != nil {
		log.Error(err, "job intake: failed to move rejected job to failed/", "name", name)
		return
	}
	sidecar := failedPath + ".error.json"
	_ = atomic.WriteJSON(sidecar, map[string]string{"reason": reason})
	log.Warn("job intake: rejected job", "name", name, "reason", reason)
}
