// Package executor bridges Job Intake's admitted jobs to the Worker
// Pool and the Upgrade Engine / HA Coordinator (SPEC_FULL.md §5.6-§5.8):
// it implements jobintake.Submitter, drives one device or one HA pair to
// completion, registers each in-flight device with the cancellation
// registry, and finalizes the job descriptor into completed/failed/
// cancelled once every device workflow has returned.
package executor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/engine"
	"github.com/natej/panos-upgrade/internal/engine/registry"
	"github.com/natej/panos-upgrade/internal/ha"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/store/inventory"
	"github.com/natej/panos-upgrade/internal/upgradeerr"
	"github.com/natej/panos-upgrade/internal/workerpool"
	"github.com/natej/panos-upgrade/pkg/log"
)

// Notifier optionally announces a device's terminal status (SPEC_FULL.md
// §5.16). Implemented by *mqtt.Notifier; nil disables publishing.
type Notifier interface {
	PublishStatus(ctx context.Context, ds *model.DeviceStatus) error
}

// Dirs names the queue subdirectories the executor transitions job
// descriptors between once a workflow finishes.
type Dirs struct {
	Active    string
	Completed string
	Failed    string
	Cancelled string
}

// Executor implements jobintake.Submitter.
type Executor struct {
	pool      *workerpool.Pool
	inventory *inventory.Store
	registry  *registry.Registry
	engine    *engine.Engine
	dial      deviceapi.Dialer
	notifier  Notifier
	dirs      Dirs
}

// New constructs an Executor. The HA Coordinator is built per job (its
// Workflow varies with whether the job is download-only), so the
// Executor only needs a Dialer, not a pre-built Coordinator.
func New(pool *workerpool.Pool, inv *inventory.Store, reg *registry.Registry, eng *engine.Engine, dial deviceapi.Dialer, notifier Notifier, dirs Dirs) *Executor {
	return &Executor{pool: pool, inventory: inv, registry: reg, engine: eng, dial: dial, notifier: notifier, dirs: dirs}
}

// Submit enqueues job on the worker pool. Returning an error (queue
// full) tells Job Intake to leave the descriptor in pending/ for retry.
func (e *Executor) Submit(job model.Job) error {
	item := workerpool.WorkItem{
		JobID:         job.JobID,
		DeviceSerials: job.Devices,
		Payload: func(ctx context.Context) error {
			return e.run(ctx, job)
		},
	}
	return e.pool.Submit(item)
}

func (e *Executor) run(ctx context.Context, job model.Job) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var statuses []*model.DeviceStatus
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.JobID, r)
			log.Error(err, "executor: job workflow panicked", "job_id", job.JobID)
		}
		e.publish(ctx, statuses)
		e.finish(job, statuses, err)
	}()

	if job.Type.IsHA() {
		a, ok := e.inventory.Lookup(job.Devices[0])
		if !ok {
			return fmt.Errorf("device %s not found in inventory", job.Devices[0])
		}
		b, ok := e.inventory.Lookup(job.Devices[1])
		if !ok {
			return fmt.Errorf("device %s not found in inventory", job.Devices[1])
		}

		e.registry.Register(a.Serial, job.JobID, cancel)
		e.registry.Register(b.Serial, job.JobID, cancel)
		defer e.registry.Unregister(a.Serial)
		defer e.registry.Unregister(b.Serial)

		run := e.engine.Run
		if job.Type.IsDownloadOnly() {
			run = e.engine.RunDownloadOnly
		}
		coord := ha.New(e.dial, run)
		passive, active, runErr := coord.Run(ctx, a, b, job.JobID)
		statuses = append(statuses, passive, active)
		if runErr != nil {
			return runErr
		}
	} else {
		serial := job.Devices[0]
		d, ok := e.inventory.Lookup(serial)
		if !ok {
			return fmt.Errorf("device %s not found in inventory", serial)
		}

		e.registry.Register(d.Serial, job.JobID, cancel)
		defer e.registry.Unregister(d.Serial)

		client := e.dial.Dial(d)
		var ds *model.DeviceStatus
		if job.Type.IsDownloadOnly() {
			ds = e.engine.RunDownloadOnly(ctx, client, d.Serial, d.Hostname, job.JobID)
		} else {
			ds = e.engine.Run(ctx, client, d.Serial, d.Hostname, job.JobID)
		}
		statuses = append(statuses, ds)
	}

	// any member workflow ending in UpgradeStatusFailed fails the whole
	// job, even when runErr itself is nil (HA role resolution succeeded
	// but the engine workflow for one member did not).
	for _, s := range statuses {
		if s != nil && s.UpgradeStatus == model.UpgradeStatusFailed {
			return fmt.Errorf("device %s workflow failed", s.Serial)
		}
	}
	// a member workflow that observed cancellation makes the job cancelled.
	for _, s := range statuses {
		if s != nil && s.UpgradeStatus == model.UpgradeStatusCancelled {
			return upgradeerr.Newf(upgradeerr.KindCancelled, s.CurrentPhase, "device %s workflow cancelled", s.Serial)
		}
	}
	return nil
}

func (e *Executor) publish(ctx context.Context, statuses []*model.DeviceStatus) {
	if e.notifier == nil {
		return
	}
	for _, ds := range statuses {
		if ds == nil {
			continue
		}
		if err := e.notifier.PublishStatus(ctx, ds); err != nil {
			log.Warn("executor: status publish failed", "serial", ds.Serial, "error", err.Error())
		}
	}
}

// finish moves the job descriptor from active/ to whichever terminal
// directory matches the outcome. A job counts as failed if the run
// errored for any reason other than cancellation, or if any device
// workflow itself ended in UpgradeStatusFailed.
func (e *Executor) finish(job model.Job, statuses []*model.DeviceStatus, runErr error) {
	name := job.JobID + ".json"
	src := filepath.Join(e.dirs.Active, name)

	dest := e.dirs.Completed
	switch {
	case runErr != nil && upgradeerr.KindOf(runErr) == upgradeerr.KindCancelled:
		dest = e.dirs.Cancelled
	case runErr != nil:
		dest = e.dirs.Failed
	}

	if err := atomic.Move(src, filepath.Join(dest, name)); err != nil {
		log.Error(err, "executor: failed to finalize job descriptor", "job_id", job.JobID)
	}
}
