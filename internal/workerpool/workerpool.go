// Package workerpool implements the bounded pool of concurrent device
// workflow executors (SPEC_FULL.md §5.8): N long-lived workers drain a
// fixed-capacity buffered channel, a plain channel-plus-goroutines pool
// rather than a semaphore, since the spec calls for an explicit queue
// depth distinct from worker count and Submit must report queue-full
// rather than block.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/pkg/log"
)

// ErrQueueFull is returned by Submit when the pool's queue has no room;
// the caller (Job Intake) leaves the job in pending/ for the next scan.
var ErrQueueFull = errors.New("worker pool queue is full")

// WorkItem is one unit of work: either a single device workflow or an
// HA-pair workflow, identified by the job that owns it.
type WorkItem struct {
	JobID         string
	DeviceSerials []string
	Payload       func(ctx context.Context) error

	// OnComplete is invoked exactly once when Payload returns (including
	// on panic recovery), with the resulting error (nil on success).
	OnComplete func(err error)
}

// WorkerState is the published occupancy of one executor slot.
type WorkerState struct {
	WorkerID      int
	Status        model.WorkerState
	CurrentJobID  string
	CurrentDevice string
	LastUpdated   time.Time
}

// Pool is a bounded pool of concurrent executors draining a fixed-depth queue.
type Pool struct {
	items chan WorkItem

	mu      sync.Mutex
	workers []WorkerState

	wg sync.WaitGroup
}

// New constructs a Pool with `size` long-lived workers and a submit
// queue holding up to queueSize items, and starts the workers
// immediately. A worker returns as soon as ctx is cancelled, leaving any
// still-queued items unrun; after Shutdown closes the queue, workers
// return once every item already queued has drained.
func New(ctx context.Context, size, queueSize int) *Pool {
	p := &Pool{
		items:   make(chan WorkItem, queueSize),
		workers: make([]WorkerState, size),
	}
	for i := range p.workers {
		p.workers[i] = WorkerState{WorkerID: i, Status: model.WorkerIdle, LastUpdated: time.Now().UTC()}
	}

	for i := 0; i < size; i++ {
		workerID := i
		p.wg.Add(1)
		go p.runWorker(ctx, workerID)
	}
	return p
}

func (p *Pool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.items:
			if !ok {
				return
			}
			p.execute(ctx, workerID, item)
		}
	}
}

// execute runs one item's payload with failure isolation: a panic in
// Payload is recovered and reported as an error rather than taking down
// the worker or any other item.
func (p *Pool) execute(ctx context.Context, workerID int, item WorkItem) {
	p.setBusy(workerID, item)
	defer p.setIdle(workerID)

	var retErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				retErr = errFromPanic(r)
				log.Error(retErr, "worker item panicked", "job_id", item.JobID)
			}
		}()
		retErr = item.Payload(ctx)
	}()

	if item.OnComplete != nil {
		item.OnComplete(retErr)
	}
}

func (p *Pool) setBusy(workerID int, item WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	device := ""
	if len(item.DeviceSerials) > 0 {
		device = item.DeviceSerials[0]
	}
	p.workers[workerID] = WorkerState{
		WorkerID:      workerID,
		Status:        model.WorkerBusy,
		CurrentJobID:  item.JobID,
		CurrentDevice: device,
		LastUpdated:   time.Now().UTC(),
	}
}

func (p *Pool) setIdle(workerID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[workerID] = WorkerState{WorkerID: workerID, Status: model.WorkerIdle, LastUpdated: time.Now().UTC()}
}

// Submit enqueues item without blocking. If the queue is already at
// capacity, it returns ErrQueueFull immediately.
func (p *Pool) Submit(item WorkItem) error {
	select {
	case p.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Statuses returns a snapshot of every executor's current occupancy, for
// the Status Writer.
func (p *Pool) Statuses() []WorkerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WorkerState, len(p.workers))
	copy(out, p.workers)
	return out
}

// Shutdown stops accepting new items and waits up to deadline for
// in-flight items to finish. Items that do not finish in time are
// abandoned: their last persisted DeviceStatus stands.
func (p *Pool) Shutdown(deadline time.Duration) {
	close(p.items)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		log.Warn("worker pool shutdown deadline exceeded; abandoning in-flight items")
	}
}

func errFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("worker item panic")
}
