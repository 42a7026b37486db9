package jobintake

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/store/inventory"
)

type fakeSubmitter struct {
	accept  bool
	submitted []model.Job
}

func (f *fakeSubmitter) Submit(job model.Job) error {
	if !f.accept {
		return fmt.Errorf("queue full")
	}
	f.submitted = append(f.submitted, job)
	return nil
}

func testDirs(t *testing.T) Dirs {
	t.Helper()
	root := t.TempDir()
	d := Dirs{
		Pending:   filepath.Join(root, "pending"),
		Active:    filepath.Join(root, "active"),
		Completed: filepath.Join(root, "completed"),
		Failed:    filepath.Join(root, "failed"),
		Cancelled: filepath.Join(root, "cancelled"),
	}
	for _, dir := range []string{d.Pending, d.Active, d.Completed, d.Failed, d.Cancelled} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	return d
}

func testInventory(t *testing.T, serials ...string) *inventory.Store {
	t.Helper()
	devices := map[string]model.Device{}
	for _, s := range serials {
		devices[s] = model.Device{MgmtIP: "10.0.0.1"}
	}
	path := filepath.Join(t.TempDir(), "inventory.json")
	if err := atomic.WriteJSON(path, model.InventoryDocument{Devices: devices, DeviceCount: len(devices)}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	inv := inventory.New(path)
	if err := inv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return inv
}

func TestScanAdmitsValidJob(t *testing.T) {
	dirs := testDirs(t)
	inv := testInventory(t, "PA-0001")
	sub := &fakeSubmitter{accept: true}
	in := New(dirs, inv, sub, time.Second)

	job := model.Job{JobID: "job-1", Type: model.JobTypeStandalone, Devices: []string{"PA-0001"}, CreatedAt: time.Now().UTC()}
	if err := atomic.WriteJSON(filepath.Join(dirs.Pending, "job-1.json"), job); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.scan()

	if len(sub.submitted) != 1 || sub.submitted[0].JobID != "job-1" {
		t.Fatalf("submitted = %+v, want one job-1", sub.submitted)
	}
	if _, err := os.Stat(filepath.Join(dirs.Pending, "job-1.json")); !os.IsNotExist(err) {
		t.Error("expected job-1.json to be moved out of pending/")
	}
	if _, err := os.Stat(filepath.Join(dirs.Active, "job-1.json")); err != nil {
		t.Errorf("expected job-1.json under active/: %v", err)
	}
}

func TestScanRejectsUnknownDevice(t *testing.T) {
	dirs := testDirs(t)
	inv := testInventory(t, "PA-0001")
	sub := &fakeSubmitter{accept: true}
	in := New(dirs, inv, sub, time.Second)

	job := model.Job{JobID: "job-1", Type: model.JobTypeStandalone, Devices: []string{"PA-9999"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Pending, "job-1.json"), job); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.scan()

	if len(sub.submitted) != 0 {
		t.Errorf("expected no job submitted, got %+v", sub.submitted)
	}
	if _, err := os.Stat(filepath.Join(dirs.Failed, "job-1.json")); err != nil {
		t.Errorf("expected job-1.json under failed/: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dirs.Failed, "job-1.json.error.json")); err != nil {
		t.Errorf("expected an error sidecar under failed/: %v", err)
	}
}

func TestScanRejectsWrongDeviceCount(t *testing.T) {
	dirs := testDirs(t)
	inv := testInventory(t, "PA-0001", "PA-0002")
	sub := &fakeSubmitter{accept: true}
	in := New(dirs, inv, sub, time.Second)

	job := model.Job{JobID: "job-1", Type: model.JobTypeHAPair, Devices: []string{"PA-0001"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Pending, "job-1.json"), job); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.scan()

	if len(sub.submitted) != 0 {
		t.Errorf("expected no job submitted for a malformed HA pair job, got %+v", sub.submitted)
	}
}

func TestScanRejectsDeviceWithNoMgmtIP(t *testing.T) {
	dirs := testDirs(t)
	root := t.TempDir()
	invPath := filepath.Join(root, "inventory.json")
	devices := map[string]model.Device{"PA-0001": {MgmtIP: ""}}
	if err := atomic.WriteJSON(invPath, model.InventoryDocument{Devices: devices, DeviceCount: len(devices)}); err != nil {
		t.Fatalf("WriteJSON inventory: %v", err)
	}
	inv := inventory.New(invPath)
	if err := inv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	sub := &fakeSubmitter{accept: true}
	in := New(dirs, inv, sub, time.Second)

	job := model.Job{JobID: "job-1", Type: model.JobTypeStandalone, Devices: []string{"PA-0001"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Pending, "job-1.json"), job); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.scan()

	if len(sub.submitted) != 0 {
		t.Errorf("expected no job submitted for a device with no mgmt IP, got %+v", sub.submitted)
	}
	if _, err := os.Stat(filepath.Join(dirs.Failed, "job-1.json")); err != nil {
		t.Errorf("expected job-1.json under failed/: %v", err)
	}
}

func TestScanDuplicateJobGuardBlocksOverlappingDevice(t *testing.T) {
	dirs := testDirs(t)
	inv := testInventory(t, "PA-0001")
	sub := &fakeSubmitter{accept: true}
	in := New(dirs, inv, sub, time.Second)

	existing := model.Job{JobID: "job-existing", Type: model.JobTypeStandalone, Devices: []string{"PA-0001"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Active, "job-existing.json"), existing); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	conflicting := model.Job{JobID: "job-new", Type: model.JobTypeStandalone, Devices: []string{"PA-0001"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Pending, "job-new.json"), conflicting); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.scan()

	if len(sub.submitted) != 0 {
		t.Errorf("expected the conflicting job to be rejected, submitted = %+v", sub.submitted)
	}
	if _, err := os.Stat(filepath.Join(dirs.Failed, "job-new.json")); err != nil {
		t.Errorf("expected job-new.json under failed/: %v", err)
	}
}

func TestScanQueueFullRevertsToPending(t *testing.T) {
	dirs := testDirs(t)
	inv := testInventory(t, "PA-0001")
	sub := &fakeSubmitter{accept: false}
	in := New(dirs, inv, sub, time.Second)

	job := model.Job{JobID: "job-1", Type: model.JobTypeStandalone, Devices: []string{"PA-0001"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Pending, "job-1.json"), job); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.scan()

	if _, err := os.Stat(filepath.Join(dirs.Pending, "job-1.json")); err != nil {
		t.Errorf("expected job-1.json to be reverted to pending/ when the queue is full: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dirs.Active, "job-1.json")); !os.IsNotExist(err) {
		t.Error("expected job-1.json not to remain under active/")
	}
}

func TestRecoverActiveResubmitsExistingActiveJobs(t *testing.T) {
	dirs := testDirs(t)
	inv := testInventory(t, "PA-0001")
	sub := &fakeSubmitter{accept: true}
	in := New(dirs, inv, sub, time.Second)

	job := model.Job{JobID: "job-1", Type: model.JobTypeStandalone, Devices: []string{"PA-0001"}}
	if err := atomic.WriteJSON(filepath.Join(dirs.Active, "job-1.json"), job); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	in.recoverActive()

	if len(sub.submitted) != 1 || sub.submitted[0].JobID != "job-1" {
		t.Fatalf("submitted = %+v, want one job-1 recovered from active/", sub.submitted)
	}
}
