package model

import "testing"

func TestUpgradeStatusIsTerminal(t *testing.T) {
	terminal := []UpgradeStatus{UpgradeStatusComplete, UpgradeStatusFailed, UpgradeStatusCancelled, UpgradeStatusSkipped, UpgradeStatusDownloadComplete}
	nonTerminal := []UpgradeStatus{UpgradeStatusPending, UpgradeStatusValidating, UpgradeStatusDownloading, UpgradeStatusInstalling, UpgradeStatusRebooting}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s: expected IsTerminal() true", s)
		}
	}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s: expected IsTerminal() false", s)
		}
	}
}

func TestDeviceStatusTarget(t *testing.T) {
	var empty DeviceStatus
	if got := empty.Target(); got != "" {
		t.Errorf("Target() on empty path = %q, want empty string", got)
	}

	ds := DeviceStatus{UpgradePath: []string{"10.1.0", "10.1.5", "10.2.0"}}
	if got := ds.Target(); got != "10.2.0" {
		t.Errorf("Target() = %q, want 10.2.0", got)
	}
}

func TestDeviceStatusAddErrorAppends(t *testing.T) {
	var ds DeviceStatus
	ds.AddError("downloading", "retry exhausted", "attempt 3 of 3")
	ds.AddError("installing", "timed out", "")

	if len(ds.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(ds.Errors))
	}
	if ds.Errors[0].Phase != "downloading" || ds.Errors[0].Message != "retry exhausted" {
		t.Errorf("first error = %+v, mismatched fields", ds.Errors[0])
	}
	if ds.Errors[1].Details != "" {
		t.Errorf("second error details = %q, want empty", ds.Errors[1].Details)
	}
	if ds.Errors[0].Timestamp.IsZero() {
		t.Errorf("expected a non-zero timestamp to be stamped")
	}
}
