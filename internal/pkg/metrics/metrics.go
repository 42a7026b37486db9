// Package metrics defines the Prometheus collectors exported by the daemon.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the daemon's private Prometheus registry, rather than the
// global DefaultRegisterer, so an embedded daemon in tests doesn't
// collide on collector registration across runs.
var Registry = prometheus.NewRegistry()

var (
	// WorkersBusy reports how many worker pool slots are currently occupied.
	WorkersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panos_upgrade_workers_busy",
		Help: "Number of worker pool slots currently executing a workflow.",
	})

	// WorkersCapacity reports the configured size of the worker pool.
	WorkersCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "panos_upgrade_workers_capacity",
		Help: "Configured worker pool size.",
	})

	// JobsByStatus counts jobs currently sitting in each queue directory.
	JobsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "panos_upgrade_jobs",
		Help: "Number of jobs currently in each queue state.",
	}, []string{"status"})

	// DeviceWorkflowsTotal counts completed device workflows by terminal status.
	DeviceWorkflowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "panos_upgrade_device_workflows_total",
		Help: "Total number of device workflows reaching a terminal state.",
	}, []string{"status"})

	// PhaseDuration records how long each upgrade phase takes.
	PhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panos_upgrade_phase_duration_seconds",
		Help:    "Duration of each upgrade phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	// CommandsProcessedTotal counts cancel commands processed by Command Intake.
	CommandsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "panos_upgrade_commands_processed_total",
		Help: "Total number of command files processed.",
	}, []string{"target", "outcome"})
)

func init() {
	Registry.MustRegister(
		WorkersBusy,
		WorkersCapacity,
		JobsByStatus,
		DeviceWorkflowsTotal,
		PhaseDuration,
		CommandsProcessedTotal,
	)
}
