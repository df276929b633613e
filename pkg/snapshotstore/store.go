// Package snapshotstore holds the current published configuration
// snapshot in memory and lets data-plane consumers watch for changes.
// A watcher that falls behind only ever sees the most recent snapshot —
// there is no queue to drain.
package snapshotstore

import (
	"sync"

	"github.com/cuemby/gateway/pkg/types"
)

// Store is safe for concurrent use. The zero value is not usable; call
// New.
type Store struct {
	mu      sync.RWMutex
	current *types.Snapshot
	watch   chan *types.Snapshot
}

// New creates a Store seeded with initial (may be an empty Snapshot).
func New(initial *types.Snapshot) *Store {
	return &Store{
		current: initial,
		watch:   make(chan *types.Snapshot, 1),
	}
}

// Current returns the currently applied snapshot.
func (s *Store) Current() *types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply installs snap as the current snapshot and notifies watchers.
// The installation is a single pointer swap under the write lock, so a
// reader never observes a torn snapshot.
func (s *Store) Apply(snap *types.Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	// Drain any stale value before refilling so Watch always yields the
	// latest snapshot rather than queuing every Apply call.
	select {
	case <-s.watch:
	default:
	}
	select {
	case s.watch <- snap:
	default:
	}
}

// Watch returns a channel that receives the latest snapshot whenever it
// changes. Slow readers coalesce onto the newest value; they never see
// an intermediate one.
func (s *Store) Watch() <-chan *types.Snapshot {
	return s.watch
}
