// Package statuswriter implements the Status Writer (SPEC_FULL.md
// §5.11): every status_interval it snapshots daemon and worker
// state to status/daemon.json and status/workers.json. Per-device status
// files are written by the engine itself at each phase transition; this
// component only owns the aggregate view, derived by counting queue
// directory contents rather than a separately maintained counter, so it
// can never drift from what queue/ actually holds.
package statuswriter

import (
	"path/filepath"
	"context"
	"time"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/pkg/metrics"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/workerpool"
	"github.com/natej/panos-upgrade/pkg/log"
)

// Dirs names the queue subdirectories counted for the aggregate job tallies.
type Dirs struct {
	Pending   string
	Active    string
	Completed string
	Failed    string
	Cancelled string
}

// Writer periodically snapshots daemon/worker state to the status/ directory.
type Writer struct {
	statusDir string
	dirs      Dirs
	pool      *workerpool.Pool
	workers   int
	startedAt time.Time
	interval  time.Duration
}

// New constructs a Writer. workers is the configured pool size, used for
// the daemon.json "workers" field even before any executor has run.
func New(statusDir string, dirs Dirs, pool *workerpool.Pool, workers int, interval time.Duration) *Writer {
	return &Writer{
		statusDir: statusDir,
		dirs:      dirs,
		pool:      pool,
		workers:   workers,
		startedAt: time.Now().UTC(),
		interval:  interval,
	}
}

// Run writes an initial snapshot, then one every interval, until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	w.writeOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeOnce()
		}
	}
}

func count(dir string) int {
	files, err := atomic.ListJSON(dir)
	if err != nil {
		return 0
	}
	return len(files)
}

func (w *Writer) writeOnce() {
	pending, active, completed, failed, cancelled :=
		count(w.dirs.Pending), count(w.dirs.Active), count(w.dirs.Completed), count(w.dirs.Failed), count(w.dirs.Cancelled)

	daemon := model.DaemonStatus{
		Running:       true,
		Workers:       w.workers,
		ActiveJobs:    active,
		PendingJobs:   pending,
		CompletedJobs: completed,
		FailedJobs:    failed,
		CancelledJobs: cancelled,
		StartedAt:     w.startedAt,
		LastUpdated:   time.Now().UTC(),
	}
	if err := atomic.WriteJSON(filepath.Join(w.statusDir, "daemon.json"), daemon); err != nil {
		log.Error(err, "status writer: failed to write daemon.json")
	}

	poolStatuses := w.pool.Statuses()
	workers := make([]model.WorkerStatus, len(poolStatuses))
	busy := 0
	for i, s := range poolStatuses {
		if s.Status == model.WorkerBusy {
			busy++
		}
		workers[i] = model.WorkerStatus{
			WorkerID:      s.WorkerID,
			Status:        s.Status,
			CurrentJobID:  s.CurrentJobID,
			CurrentDevice: s.CurrentDevice,
			LastUpdated:   s.LastUpdated,
		}
	}
	doc := model.WorkersDocument{Workers: workers}
	if err := atomic.WriteJSON(filepath.Join(w.statusDir, "workers.json"), doc); err != nil {
		log.Error(err, "status writer: failed to write workers.json")
	}

	metrics.WorkersBusy.Set(float64(busy))
	metrics.WorkersCapacity.Set(float64(len(poolStatuses)))
	metrics.JobsByStatus.WithLabelValues("active").Set(float64(active))
	metrics.JobsByStatus.WithLabelValues("pending").Set(float64(pending))
	metrics.JobsByStatus.WithLabelValues("completed").Set(float64(completed))
	metrics.JobsByStatus.WithLabelValues("failed").Set(float64(failed))
	metrics.JobsByStatus.WithLabelValues("cancelled").Set(float64(cancelled))
}
