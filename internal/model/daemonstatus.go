package model

import "time"

// DaemonStatus is the shape of status/daemon.json, a periodic snapshot
// written by the Status Writer (SPEC_FULL.md §5.11).
type DaemonStatus struct {
	Running        bool      `json:"running"`
	Workers        int       `json:"workers"`
	ActiveJobs     int       `json:"active_jobs"`
	PendingJobs    int       `json:"pending_jobs"`
	CompletedJobs  int       `json:"completed_jobs"`
	FailedJobs     int       `json:"failed_jobs"`
	CancelledJobs  int       `json:"cancelled_jobs"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// WorkerState is a single executor's published occupancy.
type WorkerState string

const (
	WorkerIdle WorkerState = "idle"
	WorkerBusy WorkerState = "busy"
)

// WorkerStatus is one entry in status/workers.json.
type WorkerStatus struct {
	WorkerID      int         `json:"worker_id"`
	Status        WorkerState `json:"status"`
	CurrentJobID  string      `json:"current_job_id,omitempty"`
	CurrentDevice string      `json:"current_device,omitempty"`
	LastUpdated   time.Time   `json:"last_updated"`
}

// WorkersDocument is the shape of status/workers.json.
type WorkersDocument struct {
	Workers []WorkerStatus `json:"workers"`
}
