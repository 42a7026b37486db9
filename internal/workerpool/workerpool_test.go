package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsPayloadAndReportsCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, 2, 4)

	var ran int32
	done := make(chan error, 1)
	err := p.Submit(WorkItem{
		JobID: "job-1",
		Payload: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
		OnComplete: func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("OnComplete err = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for work item to complete")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("payload ran %d times, want 1", ran)
	}
}

func TestSubmitQueueFullReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, 1, 1)

	block := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(WorkItem{
		Payload: func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		},
	}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	<-started // wait for the single worker to dequeue the first item

	// Fill the single queue slot while the one worker is blocked.
	if err := p.Submit(WorkItem{Payload: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if err := p.Submit(WorkItem{Payload: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Submit error = %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestExecutePanicIsRecoveredAndReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, 1, 1)

	done := make(chan error, 1)
	if err := p.Submit(WorkItem{
		Payload: func(ctx context.Context) error {
			panic("boom")
		},
		OnComplete: func(err error) { done <- err },
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected a panic to surface as a non-nil error via OnComplete")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for panicking item to complete")
	}
}

func TestStatusesReflectsBusyThenIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, 1, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	release := make(chan struct{})
	if err := p.Submit(WorkItem{
		JobID:         "job-x",
		DeviceSerials: []string{"PA-0001"},
		Payload: func(ctx context.Context) error {
			wg.Done()
			<-release
			return nil
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wg.Wait()

	statuses := p.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("len(statuses) = %d, want 1", len(statuses))
	}
	if statuses[0].CurrentJobID != "job-x" || statuses[0].CurrentDevice != "PA-0001" {
		t.Errorf("statuses[0] = %+v, want busy on job-x/PA-0001", statuses[0])
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Statuses()[0].CurrentJobID == "" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("expected worker to return to idle after its item finished")
}

func TestShutdownWaitsForInFlightItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, 1, 1)

	var finished int32
	if err := p.Submit(WorkItem{
		Payload: func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&finished, 1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	p.Shutdown(time.Second)
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("expected Shutdown to wait for the in-flight item to finish")
	}
}
