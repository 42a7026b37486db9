// Package render formats CLI output as aligned tables via gosuri/uitable,
// the teacher's declared tabular-output dependency, and as CSV for the
// `device export` command.
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/gosuri/uitable"

	"github.com/natej/panos-upgrade/internal/model"
)

// Table builds a uitable.Table with a fixed column-width wrap, matching
// the compact single-terminal-width output the rest of the CLI favors.
func Table() *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = 60
	t.Wrap = true
	return t
}

// Devices renders an inventory slice, sorted by serial for stable output.
func Devices(w io.Writer, devices []model.Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })

	t := Table()
	t.AddRow("SERIAL", "HOSTNAME", "MGMT IP", "MODEL", "VERSION", "TYPE", "HA STATE", "PEER")
	for _, d := range devices {
		t.AddRow(d.Serial, d.Hostname, d.MgmtIP, d.Model, d.CurrentVersion, d.DeviceType, d.HAState, d.PeerSerial)
	}
	fmt.Fprintln(w, t)
}

// DeviceStatuses renders a slice of DeviceStatus records.
func DeviceStatuses(w io.Writer, statuses []model.DeviceStatus) {
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Serial < statuses[j].Serial })

	t := Table()
	t.AddRow("SERIAL", "STATUS", "PHASE", "PROGRESS", "CURRENT", "TARGET", "JOB", "ERRORS")
	for _, s := range statuses {
		t.AddRow(s.Serial, s.UpgradeStatus, s.CurrentPhase, fmt.Sprintf("%d%%", s.Progress), s.CurrentVersion, s.TargetVersion, s.JobID, len(s.Errors))
	}
	fmt.Fprintln(w, t)
}

// Jobs renders a slice of Job descriptors alongside the queue state each
// was found in.
func Jobs(w io.Writer, jobs []JobView) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Job.CreatedAt.Before(jobs[j].Job.CreatedAt) })

	t := Table()
	t.AddRow("JOB ID", "STATE", "TYPE", "DEVICES", "DRY RUN", "CREATED")
	for _, j := range jobs {
		t.AddRow(j.Job.JobID, j.State, j.Job.Type, j.Job.Devices, j.Job.DryRun, j.Job.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintln(w, t)
}

// JobView pairs a Job descriptor with the queue subdirectory it was read from.
type JobView struct {
	Job   model.Job
	State string
}

// Metrics renders one device's raw metrics snapshot as a two-column table.
func Metrics(w io.Writer, serial string, m model.Metrics) {
	t := Table()
	t.AddRow("SERIAL", serial)
	t.AddRow("TCP SESSIONS", m.TCPSessions)
	t.AddRow("ROUTE COUNT", m.RouteCount)
	t.AddRow("ARP COUNT", m.ARPCount)
	t.AddRow("DISK AVAILABLE (GB)", m.DiskAvailableGB)
	fmt.Fprintln(w, t)
}

// Comparison renders a pre/post validation comparison.
func Comparison(w io.Writer, serial string, c model.Comparison) {
	t := Table()
	t.AddRow("SERIAL", serial)
	t.AddRow("TCP SESSIONS Δ", fmt.Sprintf("%+d (%.1f%%, within margin: %v)", c.TCPSessions.Difference, c.TCPSessions.Percentage, c.TCPSessions.WithinMargin))
	t.AddRow("ROUTES Δ", fmt.Sprintf("%+d added=%d removed=%d (passed: %v)", c.Routes.CountDifference, len(c.Routes.Added), len(c.Routes.Removed), c.Routes.ValidationPassed))
	t.AddRow("ARP Δ", fmt.Sprintf("%+d added=%d removed=%d (passed: %v)", c.ARPEntries.CountDifference, len(c.ARPEntries.Added), len(c.ARPEntries.Removed), c.ARPEntries.ValidationPassed))
	t.AddRow("VALIDATION PASSED", c.ValidationPassed)
	fmt.Fprintln(w, t)
}

// ExportCSV writes the inventory as CSV with a fixed header, for
// `device export`.
func ExportCSV(w io.Writer, devices []model.Device) error {
	sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"serial", "hostname", "mgmt_ip", "model", "current_version", "device_type", "peer_serial", "ha_state", "discovered_at"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, d := range devices {
		row := []string{
			d.Serial, d.Hostname, d.MgmtIP, d.Model, d.CurrentVersion,
			string(d.DeviceType), d.PeerSerial, string(d.HAState), d.DiscoveredAt.Format("2006-01-02T15:04:05Z"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
