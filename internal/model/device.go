// Package model defines the data types shared across the daemon, CLI,
// and file-system control plane: devices, jobs, device status, commands,
// and validation artifacts, as specified in SPEC_FULL.md section 4.
package model

import "time"

// DeviceType classifies how a device participates in upgrades.
type DeviceType string

const (
	DeviceTypeStandalone DeviceType = "standalone"
	DeviceTypeHAPair     DeviceType = "ha_pair"
	DeviceTypeUnknown    DeviceType = "unknown"
)

// HAState is a device's observed high-availability role.
type HAState string

const (
	HAStateActive     HAState = "active"
	HAStatePassive    HAState = "passive"
	HAStateStandalone HAState = "standalone"
	HAStateUnknown    HAState = "unknown"
)

// Device is an inventory entry. It is immutable for the lifetime of a
// job; the daemon never writes it back.
type Device struct {
	Serial         string     `json:"serial"`
	Hostname       string     `json:"hostname"`
	MgmtIP         string     `json:"mgmt_ip"`
	Model          string     `json:"model"`
	CurrentVersion string     `json:"current_version"`
	DeviceType     DeviceType `json:"device_type"`
	PeerSerial     string     `json:"peer_serial,omitempty"`
	HAState        HAState    `json:"ha_state"`
	DiscoveredAt   time.Time  `json:"discovered_at"`
}

// InventoryDocument is the shape of devices/inventory.json.
type InventoryDocument struct {
	Devices     map[string]Device `json:"devices"`
	DeviceCount int               `json:"device_count"`
	LastUpdated time.Time         `json:"last_updated"`
}
