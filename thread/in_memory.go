// Package thread provides storage for run transcripts. The orchestrator
// registers each run's thread here before the first decision, so partial
// transcripts stay retrievable after budget errors and cancellation.
package thread

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agencykit/core"
)

// Store persists threads keyed by run ID.
type Store interface {
	// Put registers the thread for runID, overwriting any previous entry.
	Put(runID string, t *core.Thread) error

	// Get returns the thread for runID.
	Get(runID string) (*core.Thread, error)

	// Delete removes the thread for runID. Deleting an unknown run is a no-op.
	Delete(runID string) error
}

// InMemoryStore is a volatile Store implementation keeping threads in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Threads themselves are append-only and
// internally synchronized, so they are shared, not cloned.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*core.Thread
}

// NewInMemoryStore constructs an empty in-memory thread store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*core.Thread)}
}

// Put implements Store.
func (s *InMemoryStore) Put(runID string, t *core.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[runID] = t

	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(runID string) (*core.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[runID]
	if !ok {
		return nil, fmt.Errorf("thread for run %q not found", runID)
	}

	return t, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, runID)

	return nil
}

var _ Store = (*InMemoryStore)(nil)
