package layout

import (
	"path/filepath"
	"testing"
)

func TestAccessorsJoinUnderRoot(t *testing.T) {
	l := New("/var/lib/panos-upgrade")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConfigFile", l.ConfigFile(), "/var/lib/panos-upgrade/config/config.json"},
		{"UpgradePathsFile", l.UpgradePathsFile(), "/var/lib/panos-upgrade/config/upgrade_paths.json"},
		{"InventoryFile", l.InventoryFile(), "/var/lib/panos-upgrade/devices/inventory.json"},
		{"Pending", l.Pending(), "/var/lib/panos-upgrade/queue/pending"},
		{"Active", l.Active(), "/var/lib/panos-upgrade/queue/active"},
		{"CommandsIncoming", l.CommandsIncoming(), "/var/lib/panos-upgrade/commands/incoming"},
		{"DaemonStatusFile", l.DaemonStatusFile(), "/var/lib/panos-upgrade/status/daemon.json"},
		{"DeviceStatusFile", l.DeviceStatusFile("PA-0001"), "/var/lib/panos-upgrade/status/devices/PA-0001.json"},
		{"PreFlightDir", l.PreFlightDir(), "/var/lib/panos-upgrade/validation/pre_flight"},
		{"StructuredLogsDir", l.StructuredLogsDir(), "/var/lib/panos-upgrade/logs/structured"},
		{"PIDFile", l.PIDFile(), "/var/lib/panos-upgrade/panos-upgrade.pid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDirsCoversEveryLeafDirectory(t *testing.T) {
	l := New("/work")
	dirs := l.Dirs()

	want := []string{
		l.ConfigDir(), filepath.Dir(l.InventoryFile()),
		l.Pending(), l.Active(), l.Completed(), l.Cancelled(), l.Failed(),
		l.CommandsIncoming(), l.CommandsProcessed(),
		l.StatusDir(), l.DeviceStatusDir(),
		l.PreFlightDir(), l.PostFlightDir(),
		l.StructuredLogsDir(), l.TextLogsDir(),
	}
	if len(dirs) != len(want) {
		t.Fatalf("len(Dirs()) = %d, want %d", len(dirs), len(want))
	}
	for i, d := range want {
		if dirs[i] != d {
			t.Errorf("Dirs()[%d] = %q, want %q", i, dirs[i], d)
		}
	}
}
