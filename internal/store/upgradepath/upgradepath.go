// Package upgradepath loads the read-only source-version to target-path
// mapping (SPEC_FULL.md §5.3) and resolves a plan for a given running
// version.
package upgradepath

import (
	"fmt"
	"sync"

	"github.com/natej/panos-upgrade/internal/store/atomic"
)

// Store holds an in-memory view of config/upgrade_paths.json: a mapping
// from a source version string to the ordered sequence of versions that
// must be installed to reach the target (the sequence's last element).
type Store struct {
	path string

	mu    sync.RWMutex
	paths map[string][]string
}

// New constructs a Store reading from the given upgrade_paths.json path.
func New(path string) *Store {
	return &Store{path: path, paths: map[string][]string{}}
}

// Reload re-reads the upgrade path document from disk.
func (s *Store) Reload() error {
	var doc map[string][]string
	if err := atomic.ReadJSON(s.path, &doc); err != nil {
		return fmt.Errorf("loading upgrade paths: %w", err)
	}

	s.mu.Lock()
	s.paths = doc
	s.mu.Unlock()
	return nil
}

// Plan returns the ordered sequence of versions to install starting from
// fromVersion, or ok=false if fromVersion has no entry in the table
// ("skip device" per SPEC_FULL.md §5.3, not an error).
func (s *Store) Plan(fromVersion string) (sequence []string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.paths[fromVersion]
	if !ok || len(seq) == 0 {
		return nil, false
	}
	out := make([]string, len(seq))
	copy(out, seq)
	return out, true
}

// Target returns the final version a device on fromVersion should reach.
func (s *Store) Target(fromVersion string) (string, bool) {
	seq, ok := s.Plan(fromVersion)
	if !ok {
		return "", false
	}
	return seq[len(seq)-1], true
}
