// Package inventory loads the device inventory document and provides
// serial-keyed lookups for every other component (SPEC_FULL.md §5.2).
package inventory

import (
	"fmt"
	"sync"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
)

// Store holds an in-memory, serial-indexed view of devices/inventory.json.
// It is reloaded wholesale on Reload; callers never mutate entries in place.
type Store struct {
	path string

	mu      sync.RWMutex
	byIndex map[string]model.Device
}

// New constructs a Store reading from the given inventory.json path. It
// does not load eagerly; call Reload before first use.
func New(path string) *Store {
	return &Store{path: path, byIndex: map[string]model.Device{}}
}

// Reload re-reads the inventory document from disk, replacing the
// in-memory index atomically with respect to concurrent Lookup/All calls.
func (s *Store) Reload() error {
	var doc model.InventoryDocument
	if err := atomic.ReadJSON(s.path, &doc); err != nil {
		return fmt.Errorf("loading inventory: %w", err)
	}

	index := make(map[string]model.Device, len(doc.Devices))
	for serial, d := range doc.Devices {
		d.Serial = serial
		index[serial] = d
	}

	s.mu.Lock()
	s.byIndex = index
	s.mu.Unlock()
	return nil
}

// Lookup returns the device with the given serial.
func (s *Store) Lookup(serial string) (model.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byIndex[serial]
	return d, ok
}

// Peer returns the HA peer of the device with the given serial, if one
// is configured and present in the inventory.
func (s *Store) Peer(serial string) (model.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byIndex[serial]
	if !ok || d.PeerSerial == "" {
		return model.Device{}, false
	}
	peer, ok := s.byIndex[d.PeerSerial]
	return peer, ok
}

// All returns a snapshot of every known device.
func (s *Store) All() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Device, 0, len(s.byIndex))
	for _, d := range s.byIndex {
		out = append(out, d)
	}
	return out
}
