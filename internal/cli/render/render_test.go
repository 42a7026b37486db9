package render

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/natej/panos-upgrade/internal/model"
)

func TestDevicesSortsBySerial(t *testing.T) {
	var buf bytes.Buffer
	Devices(&buf, []model.Device{
		{Serial: "PA-0002", Hostname: "fw-b"},
		{Serial: "PA-0001", Hostname: "fw-a"},
	})
	out := buf.String()

	posA := strings.Index(out, "PA-0001")
	posB := strings.Index(out, "PA-0002")
	if posA == -1 || posB == -1 || posA > posB {
		t.Errorf("expected PA-0001 before PA-0002 in output:\n%s", out)
	}
	if !strings.Contains(out, "SERIAL") {
		t.Errorf("expected a header row, got:\n%s", out)
	}
}

func TestDeviceStatusesIncludesErrorCount(t *testing.T) {
	var buf bytes.Buffer
	ds := model.DeviceStatus{Serial: "PA-0001", UpgradeStatus: model.UpgradeStatusFailed}
	ds.AddError("downloading", "boom", "")
	DeviceStatuses(&buf, []model.DeviceStatus{ds})

	out := buf.String()
	if !strings.Contains(out, "PA-0001") || !strings.Contains(out, "failed") {
		t.Errorf("expected serial and status in output:\n%s", out)
	}
}

func TestJobsSortsByCreatedAt(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := []JobView{
		{Job: model.Job{JobID: "later", CreatedAt: now.Add(time.Hour)}, State: "pending"},
		{Job: model.Job{JobID: "earlier", CreatedAt: now}, State: "completed"},
	}
	Jobs(&buf, jobs)
	out := buf.String()

	posEarlier := strings.Index(out, "earlier")
	posLater := strings.Index(out, "later")
	if posEarlier == -1 || posLater == -1 || posEarlier > posLater {
		t.Errorf("expected earlier job before later job in output:\n%s", out)
	}
}

func TestMetricsRendersFields(t *testing.T) {
	var buf bytes.Buffer
	Metrics(&buf, "PA-0001", model.Metrics{TCPSessions: 50, RouteCount: 3, ARPCount: 4, DiskAvailableGB: 12.5})
	out := buf.String()
	for _, want := range []string{"PA-0001", "50", "12.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestComparisonRendersValidationPassed(t *testing.T) {
	var buf bytes.Buffer
	c := model.Comparison{ValidationPassed: true}
	Comparison(&buf, "PA-0001", c)
	out := buf.String()
	if !strings.Contains(out, "PA-0001") || !strings.Contains(out, "true") {
		t.Errorf("expected serial and validation outcome in output:\n%s", out)
	}
}

func TestExportCSVRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	devices := []model.Device{
		{Serial: "PA-0002", Hostname: "fw-b", DeviceType: model.DeviceTypeStandalone},
		{Serial: "PA-0001", Hostname: "fw-a", DeviceType: model.DeviceTypeHAPair, PeerSerial: "PA-0003"},
	}
	if err := ExportCSV(&buf, devices); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	r := csv.NewReader(&buf)
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 { // header + 2 rows
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if records[0][0] != "serial" {
		t.Errorf("header[0] = %q, want serial", records[0][0])
	}
	if records[1][0] != "PA-0001" {
		t.Errorf("first data row serial = %q, want PA-0001 (sorted)", records[1][0])
	}
	if records[1][6] != "PA-0003" {
		t.Errorf("peer_serial column = %q, want PA-0003", records[1][6])
	}
}
