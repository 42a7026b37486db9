// Package layout names the fixed subdirectory structure of a work_dir
// (SPEC_FULL.md §7, "File-system layout"), so the daemon and the CLI
// resolve the same paths without duplicating string-joining logic.
package layout

import "path/filepath"

// Layout is the set of paths rooted at one work_dir.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout { return Layout{Root: root} }

func (l Layout) ConfigDir() string       { return filepath.Join(l.Root, "config") }
func (l Layout) ConfigFile() string      { return filepath.Join(l.ConfigDir(), "config.json") }
func (l Layout) UpgradePathsFile() string { return filepath.Join(l.ConfigDir(), "upgrade_paths.json") }
func (l Layout) ArchiveConfigFile() string { return filepath.Join(l.ConfigDir(), "archive.json") }
func (l Layout) NotifyConfigFile() string  { return filepath.Join(l.ConfigDir(), "notify.json") }

func (l Layout) InventoryFile() string { return filepath.Join(l.Root, "devices", "inventory.json") }

func (l Layout) QueueDir() string     { return filepath.Join(l.Root, "queue") }
func (l Layout) Pending() string      { return filepath.Join(l.QueueDir(), "pending") }
func (l Layout) Active() string       { return filepath.Join(l.QueueDir(), "active") }
func (l Layout) Completed() string    { return filepath.Join(l.QueueDir(), "completed") }
func (l Layout) Cancelled() string    { return filepath.Join(l.QueueDir(), "cancelled") }
func (l Layout) Failed() string       { return filepath.Join(l.QueueDir(), "failed") }

func (l Layout) CommandsDir() string   { return filepath.Join(l.Root, "commands") }
func (l Layout) CommandsIncoming() string  { return filepath.Join(l.CommandsDir(), "incoming") }
func (l Layout) CommandsProcessed() string { return filepath.Join(l.CommandsDir(), "processed") }

func (l Layout) StatusDir() string        { return filepath.Join(l.Root, "status") }
func (l Layout) DaemonStatusFile() string { return filepath.Join(l.StatusDir(), "daemon.json") }
func (l Layout) WorkersStatusFile() string { return filepath.Join(l.StatusDir(), "workers.json") }
func (l Layout) DeviceStatusDir() string  { return filepath.Join(l.StatusDir(), "devices") }
func (l Layout) DeviceStatusFile(serial string) string {
	return filepath.Join(l.DeviceStatusDir(), serial+".json")
}

func (l Layout) ValidationDir() string { return filepath.Join(l.Root, "validation") }
func (l Layout) PreFlightDir() string  { return filepath.Join(l.ValidationDir(), "pre_flight") }
func (l Layout) PostFlightDir() string { return filepath.Join(l.ValidationDir(), "post_flight") }

func (l Layout) LogsDir() string         { return filepath.Join(l.Root, "logs") }
func (l Layout) StructuredLogsDir() string { return filepath.Join(l.LogsDir(), "structured") }
func (l Layout) TextLogsDir() string       { return filepath.Join(l.LogsDir(), "text") }

func (l Layout) PIDFile() string { return filepath.Join(l.Root, "panos-upgrade.pid") }

// Dirs returns every directory that must exist before the daemon or CLI
// writes into work_dir for the first time.
func (l Layout) Dirs() []string {
	return []string{
		l.ConfigDir(), filepath.Dir(l.InventoryFile()),
		l.Pending(), l.Active(), l.Completed(), l.Cancelled(), l.Failed(),
		l.CommandsIncoming(), l.CommandsProcessed(),
		l.StatusDir(), l.DeviceStatusDir(),
		l.PreFlightDir(), l.PostFlightDir(),
		l.StructuredLogsDir(), l.TextLogsDir(),
	}
}
