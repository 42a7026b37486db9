package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/natej/panos-upgrade/internal/layout"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
)

// Bulk subcommands read a CSV of devices and write one Job descriptor
// per row directly into queue/pending/ for a running daemon to admit.
// Standalone CSVs are two columns (serial, dry_run); HA-pair CSVs are
// three (device_a, device_b, dry_run). dry_run is optional in both and
// defaults to false when the column is blank or absent.

func newUpgradeCommand() *cobra.Command {
	return newBulkCommand("upgrade", "Submit a CSV of standalone devices for a full upgrade.", model.JobTypeStandalone, false)
}

func newUpgradeHAPairsCommand() *cobra.Command {
	return newBulkCommand("upgrade-ha-pairs", "Submit a CSV of HA pairs for a full upgrade.", model.JobTypeHAPair, true)
}

func newDownloadCommand() *cobra.Command {
	return newBulkCommand("download", "Submit a CSV of standalone devices for a download-only run.", model.JobTypeDownloadOnly, false)
}

func newDownloadHAPairsCommand() *cobra.Command {
	return newBulkCommand("download-ha-pairs", "Submit a CSV of HA pairs for a download-only run.", model.JobTypeDownloadOnlyHA, true)
}

func newBulkCommand(use, short string, jobType model.JobType, ha bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CSV",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			submitted, failed, err := submitBulkCSV(args[0], jobType, ha)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %d job(s), %d row(s) rejected\n", submitted, failed)
			return nil
		},
	}
}

func submitBulkCSV(path string, jobType model.JobType, ha bool) (submitted, failed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	l := layout.New(cfg.WorkDir)

	rows, err := reader.ReadAll()
	if err != nil {
		return 0, 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	for i, row := range rows {
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}

		var devices []string
		var dryRunCol string
		if ha {
			if len(row) < 2 {
				failed++
				continue
			}
			devices = []string{row[0], row[1]}
			if len(row) > 2 {
				dryRunCol = row[2]
			}
		} else {
			devices = []string{row[0]}
			if len(row) > 1 {
				dryRunCol = row[1]
			}
		}

		dryRun, _ := strconv.ParseBool(dryRunCol)

		job := model.Job{
			JobID:     uuid.NewString(),
			Type:      jobType,
			Devices:   devices,
			DryRun:    dryRun,
			CreatedAt: time.Now().UTC(),
		}
		jobPath := filepath.Join(l.Pending(), job.JobID+".json")
		if err := atomic.WriteJSON(jobPath, job); err != nil {
			fmt.Fprintf(os.Stderr, "row %d: failed to write job descriptor: %v\n", i+1, err)
			failed++
			continue
		}
		submitted++
	}

	return submitted, failed, nil
}
