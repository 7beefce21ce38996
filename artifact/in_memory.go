package artifact

import (
	"bytes"
	"sort"
	"sync"
)

type key struct {
	runID      string
	artifactID string
}

// InMemoryStore is an in-process ArtifactStore for tests, examples and
// single-process deployments. Artifacts live in a flat map keyed by
// (runID, artifactID); bytes are cloned on both save and retrieval so
// callers never share buffers with the store.
//
// There is no retention, quota or eviction handling. Durable backends
// (object stores, databases) belong in sibling packages.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[key][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[key][]byte)}
}

// Save stores (or overwrites) the artifact bytes for the given run and id.
func (s *InMemoryStore) Save(runID, artifactID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key{runID, artifactID}] = bytes.Clone(data)

	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (s *InMemoryStore) Get(runID, artifactID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key{runID, artifactID}]
	if !ok {
		return nil, ErrNotFound
	}

	return bytes.Clone(data), nil
}

// List returns the artifact ids stored for the run, sorted for
// deterministic output. The slice is a snapshot and safe for caller
// mutation.
func (s *InMemoryStore) List(runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for k := range s.data {
		if k.runID == runID {
			ids = append(ids, k.artifactID)
		}
	}

	sort.Strings(ids)

	return ids, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (s *InMemoryStore) Delete(runID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{runID, artifactID}
	if _, ok := s.data[k]; !ok {
		return ErrNotFound
	}

	delete(s.data, k)

	return nil
}
