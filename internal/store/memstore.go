// SPDX-License-Identifier: MPL-2.0

package store

import (
	"slices"
	"sync"
)

// MemStore is an in-memory Store used by tests and by callers that opt out
// of cross-session persistence. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	entries map[Fingerprint]*Artifacts
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[Fingerprint]*Artifacts)}
}

// Get returns the stored artifact set for fp.
func (s *MemStore) Get(fp Fingerprint) (*Artifacts, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arts, ok := s.entries[fp]
	return arts, ok, nil
}

// Put stores a deep copy of the artifact set so later caller mutations
// cannot reach the committed entry. First writer wins.
func (s *MemStore) Put(arts *Artifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[arts.Fingerprint]; ok {
		return nil
	}
	cp := &Artifacts{Fingerprint: arts.Fingerprint}
	for _, p := range arts.Products {
		cp.Products = append(cp.Products, Product{
			Name:     p.Name,
			Contents: slices.Clone(p.Contents),
		})
	}
	cp.Sort()
	s.entries[arts.Fingerprint] = cp
	return nil
}
