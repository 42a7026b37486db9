// Package cmdintake implements Command Intake (SPEC_FULL.md §5.10): it
// polls commands/incoming/ and routes cancellations into the in-flight
// workflow registry.
package cmdintake

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/pkg/metrics"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/pkg/log"
)

// Canceller delivers a cancellation signal to the in-flight workflow
// registry. Implemented by *registry.Registry.
type Canceller interface {
	CancelDevice(serial string) bool
	CancelJob(jobID string) int
}

// Dirs names the command subdirectories this component reads and writes.
type Dirs struct {
	Incoming  string
	Processed string
}

// Intake periodically scans Dirs.Incoming and processes command files.
type Intake struct {
	dirs      Dirs
	canceller Canceller
	interval  time.Duration
}

// New constructs an Intake.
func New(dirs Dirs, canceller Canceller, interval time.Duration) *Intake {
	return &Intake{dirs: dirs, canceller: canceller, interval: interval}
}

// Run scans on every tick of interval and whenever fsnotify observes a
// write under Dirs.Incoming, until ctx is cancelled.
func (in *Intake) Run(ctx context.Context) {
	in.scan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error(err, "command intake: fsnotify unavailable, falling back to poll-only")
	} else {
		defer watcher.Close()
		if err := watcher.Add(in.dirs.Incoming); err != nil {
			log.Error(err, "command intake: failed to watch incoming directory", "dir", in.dirs.Incoming)
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

func (in *Intake) scan() {
	files, err := atomic.ListJSONByMtime(in.dirs.Incoming)
	if err != nil {
		log.Error(err, "command intake: failed to list incoming commands")
		return
	}
	for _, f := range files {
		in.processOne(f)
	}
}

func (in *Intake) processOne(path string) {
	name := filepath.Base(path)

	var cmd model.Command
	if err := atomic.ReadJSON(path, &cmd); err != nil {
		in.finish(path, name, map[string]string{"reason": fmt.Sprintf("invalid command descriptor: %v", err)})
		return
	}

	note := in.route(cmd)
	in.finish(path, name, note)
}

func (in *Intake) route(cmd model.Command) map[string]string {
	switch cmd.Command {
	case model.CommandCancelUpgrade:
		switch cmd.Target {
		case model.CommandTargetJob:
			n := in.canceller.CancelJob(cmd.JobID)
			metrics.CommandsProcessedTotal.WithLabelValues("job", outcomeOf(n > 0)).Inc()
			if n == 0 {
				return map[string]string{"note": "no-op: job not currently active"}
			}
			return map[string]string{"note": fmt.Sprintf("cancelled %d device workflow(s)", n)}
		case model.CommandTargetDevice:
			ok := in.canceller.CancelDevice(cmd.DeviceSerial)
			metrics.CommandsProcessedTotal.WithLabelValues("device", outcomeOf(ok)).Inc()
			if !ok {
				return map[string]string{"note": "no-op: device not currently active"}
			}
			return map[string]string{"note": "cancellation delivered"}
		default:
			metrics.CommandsProcessedTotal.WithLabelValues("unknown", "rejected").Inc()
			return map[string]string{"reason": fmt.Sprintf("unknown target %q", cmd.Target)}
		}
	default:
		metrics.CommandsProcessedTotal.WithLabelValues("unknown", "rejected").Inc()
		return map[string]string{"reason": fmt.Sprintf("unknown command %q", cmd.Command)}
	}
}

func outcomeOf(delivered bool) string {
	if delivered {
		return "delivered"
	}
	return "no-op"
}

func (in *Intake) finish(path, name string, note map[string]string) {
	processedPath := filepath.Join(in.dirs.Processed, name)
	if err := atomic.Move(path, processedPath); err != nil {
		log.Error(err, "command intake: failed to move processed command", "name", name)
		return
	}
	if len(note) > 0 {
		_ = atomic.WriteJSON(processedPath+".result.json", note)
	}
}
