package model

import "time"

// JobType selects the workflow a job drives and which devices it needs.
type JobType string

const (
	JobTypeStandalone      JobType = "standalone"
	JobTypeHAPair          JobType = "ha_pair"
	JobTypeDownloadOnly    JobType = "download_only"
	JobTypeDownloadOnlyHA  JobType = "download_only_ha"
)

// IsHA reports whether the job type targets an HA pair (two devices).
func (t JobType) IsHA() bool {
	return t == JobTypeHAPair || t == JobTypeDownloadOnlyHA
}

// IsDownloadOnly reports whether the job type stops after downloading.
func (t JobType) IsDownloadOnly() bool {
	return t == JobTypeDownloadOnly || t == JobTypeDownloadOnlyHA
}

// Family groups job types into the two mutually-exclusive families the
// Duplicate-Job Guard must never let run concurrently on the same device.
func (t JobType) Family() string {
	if t.IsDownloadOnly() {
		return "download-only"
	}
	return "full-upgrade"
}

// ExpectedDevices returns how many serials a job of this type must carry.
func (t JobType) ExpectedDevices() int {
	if t.IsHA() {
		return 2
	}
	return 1
}

// JobStatus is the lifecycle state encoded by a job's containing directory.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a client-submitted descriptor for one upgrade (or download-only)
// run, targeting one standalone device or one HA pair.
type Job struct {
	JobID      string    `json:"job_id"`
	Type       JobType   `json:"type"`
	Devices    []string  `json:"devices"`
	HAPairName string    `json:"ha_pair_name,omitempty"`
	DryRun     bool      `json:"dry_run"`
	CreatedAt  time.Time `json:"created_at"`
}
