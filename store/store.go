// Package store holds the single most recent measurement per name.
//
// The store is the shared state between the producer thread (writes),
// the notification consumer (reads) and arbitrary caller threads
// (reads). It synchronizes internally; callers never need external
// locking.
package store

import (
	"sync"

	"github.com/c360/vehiclehub/measurement"
)

// Store is a concurrent mapping from measurement name to the latest
// measurement observed for that name. Entries are replaced atomically;
// a concurrent Get for a name being written sees either the previous or
// the new measurement, never a torn one.
type Store struct {
	mu sync.RWMutex
	m  map[string]measurement.Measurement
}

// New creates an empty store.
func New() *Store {
	return &Store{
		m: make(map[string]measurement.Measurement),
	}
}

// Put overwrites the entry for name. Put never blocks on notification
// delivery; it only contends with other store accesses.
func (s *Store) Put(name string, m measurement.Measurement) {
	s.mu.Lock()
	s.m[name] = m
	s.mu.Unlock()
}

// Get returns the stored measurement for name, or the unknown sentinel
// if the name has never been observed. Get never fails.
func (s *Store) Get(name string) measurement.Measurement {
	s.mu.RLock()
	m, ok := s.m[name]
	s.mu.RUnlock()

	if !ok {
		return measurement.Unknown()
	}
	return m
}

// Has reports whether name has ever been observed.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	_, ok := s.m[name]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of distinct measurement names observed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Clear removes all entries. Used at service teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	s.m = make(map[string]measurement.Measurement)
	s.mu.Unlock()
}
