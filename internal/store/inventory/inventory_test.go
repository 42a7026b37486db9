package inventory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
)

func writeInventory(t *testing.T, path string, devices map[string]model.Device) {
	t.Helper()
	doc := model.InventoryDocument{
		Devices:     devices,
		DeviceCount: len(devices),
		LastUpdated: time.Now().UTC(),
	}
	if err := atomic.WriteJSON(path, doc); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func TestReloadAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{
		"PA-0001": {Hostname: "fw-a", MgmtIP: "10.0.0.1", DeviceType: model.DeviceTypeHAPair, PeerSerial: "PA-0002", HAState: model.HAStateActive},
		"PA-0002": {Hostname: "fw-b", MgmtIP: "10.0.0.2", DeviceType: model.DeviceTypeHAPair, PeerSerial: "PA-0001", HAState: model.HAStatePassive},
	})

	s := New(path)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	d, ok := s.Lookup("PA-0001")
	if !ok {
		t.Fatal("expected PA-0001 to be found")
	}
	if d.Serial != "PA-0001" {
		t.Errorf("Lookup did not backfill Serial from the map key: got %q", d.Serial)
	}
	if d.Hostname != "fw-a" {
		t.Errorf("Hostname = %q, want fw-a", d.Hostname)
	}

	if _, ok := s.Lookup("does-not-exist"); ok {
		t.Error("expected lookup of an unknown serial to fail")
	}
}

func TestPeer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{
		"PA-0001": {PeerSerial: "PA-0002"},
		"PA-0002": {PeerSerial: "PA-0001"},
		"PA-0003": {},
	})

	s := New(path)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	peer, ok := s.Peer("PA-0001")
	if !ok || peer.Serial != "PA-0002" {
		t.Errorf("Peer(PA-0001) = %+v, ok=%v, want PA-0002", peer, ok)
	}

	if _, ok := s.Peer("PA-0003"); ok {
		t.Error("expected no peer for a standalone device")
	}
	if _, ok := s.Peer("missing"); ok {
		t.Error("expected no peer for an unknown serial")
	}
}

func TestReloadReplacesIndexWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{"PA-0001": {}})

	s := New(path)
	if err := s.Reload(); err != nil {
		t.Fatalf("first Reload: %v", err)
	}
	if len(s.All()) != 1 {
		t.Fatalf("expected 1 device after first reload, got %d", len(s.All()))
	}

	writeInventory(t, path, map[string]model.Device{"PA-0002": {}, "PA-0003": {}})
	if err := s.Reload(); err != nil {
		t.Fatalf("second Reload: %v", err)
	}

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 devices after second reload, got %d", len(all))
	}
	if _, ok := s.Lookup("PA-0001"); ok {
		t.Error("expected PA-0001 to be gone after a wholesale reload")
	}
}

func TestReloadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"))
	if err := s.Reload(); err == nil {
		t.Error("expected an error loading a missing inventory file")
	}
}
