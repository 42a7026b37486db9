package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/natej/panos-upgrade/internal/cli/render"
	"github.com/natej/panos-upgrade/internal/layout"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
)

func newJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Submit, list, inspect, and cancel jobs.",
	}
	cmd.AddCommand(newJobSubmitCommand(), newJobListCommand(), newJobStatusCommand(), newJobCancelCommand())
	return cmd
}

func newJobSubmitCommand() *cobra.Command {
	var jobType string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "submit DEVICE [DEVICE2]",
		Short: "Write a job descriptor into queue/pending/ for a running daemon to pick up.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := model.JobType(jobType)
			if len(args) != t.ExpectedDevices() {
				return fmt.Errorf("job type %s requires %d device(s), got %d", t, t.ExpectedDevices(), len(args))
			}
			job := model.Job{
				JobID:     uuid.NewString(),
				Type:      t,
				Devices:   args,
				DryRun:    dryRun,
				CreatedAt: time.Now().UTC(),
			}
			l := layout.New(cfg.WorkDir)
			path := filepath.Join(l.Pending(), job.JobID+".json")
			if err := atomic.WriteJSON(path, job); err != nil {
				return fmt.Errorf("writing job descriptor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted job %s (%s)\n", job.JobID, job.Type)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", string(model.JobTypeStandalone), "Job type: standalone, ha_pair, download_only, download_only_ha.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Mark this job as a dry run.")
	return cmd
}

func newJobListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every job currently in the queue (any state).",
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			views, err := collectJobViews(l)
			if err != nil {
				return err
			}
			render.Jobs(cmd.OutOrStdout(), views)
			return nil
		},
	}
}

func newJobStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show one job's queue state and its devices' current status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			l := layout.New(cfg.WorkDir)
			views, err := collectJobViews(l)
			if err != nil {
				return err
			}
			var found *render.JobView
			for i := range views {
				if views[i].Job.JobID == jobID {
					found = &views[i]
					break
				}
			}
			if found == nil {
				return fmt.Errorf("job %s not found", jobID)
			}
			render.Jobs(cmd.OutOrStdout(), []render.JobView{*found})

			var statuses []model.DeviceStatus
			for _, serial := range found.Job.Devices {
				var ds model.DeviceStatus
				if err := atomic.ReadJSON(l.DeviceStatusFile(serial), &ds); err == nil {
					statuses = append(statuses, ds)
				}
			}
			if len(statuses) > 0 {
				render.DeviceStatuses(cmd.OutOrStdout(), statuses)
			}
			return nil
		},
	}
}

func newJobCancelCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Write a cancel_upgrade command for a running daemon to deliver.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := layout.New(cfg.WorkDir)
			command := model.Command{
				Command:   model.CommandCancelUpgrade,
				Target:    model.CommandTargetJob,
				JobID:     args[0],
				Reason:    reason,
				Timestamp: time.Now().UTC(),
			}
			path := filepath.Join(l.CommandsIncoming(), "cancel-"+uuid.NewString()+".json")
			if err := atomic.WriteJSON(path, command); err != nil {
				return fmt.Errorf("writing cancel command: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued cancellation for job %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded alongside the cancellation.")
	return cmd
}

// collectJobViews reads every job descriptor across the queue's five
// state directories, pairing each with the directory name it was found in.
func collectJobViews(l layout.Layout) ([]render.JobView, error) {
	dirs := []struct {
		path  string
		state string
	}{
		{l.Pending(), string(model.JobStatusPending)},
		{l.Active(), string(model.JobStatusActive)},
		{l.Completed(), string(model.JobStatusCompleted)},
		{l.Failed(), string(model.JobStatusFailed)},
		{l.Cancelled(), string(model.JobStatusCancelled)},
	}

	var out []render.JobView
	for _, d := range dirs {
		files, err := atomic.ListJSON(d.path)
		if err != nil {
			continue
		}
		for _, f := range files {
			var job model.Job
			if err := atomic.ReadJSON(f, &job); err != nil {
				continue
			}
			out = append(out, render.JobView{Job: job, State: d.state})
		}
	}
	return out, nil
}
