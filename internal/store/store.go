// SPDX-License-Identifier: MPL-2.0

// Package store defines the persistent artifact store contract: compiled
// dependency artifacts keyed by a content fingerprint. The store is
// append-only across fingerprints and read-only within a build session;
// commits are atomic, so a cancelled build never leaves a partial entry.
package store

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type (
	// Product is one compiled build product inside an artifact set. Name is
	// a slash-separated path relative to the artifact root.
	Product struct {
		Name     string
		Contents []byte
	}

	// Artifacts is the full set of compiled dependency build products for
	// one fingerprint. Products are ordered lexicographically by name.
	Artifacts struct {
		Fingerprint Fingerprint
		Products    []Product
	}

	// Store is the get/put contract over a persistent artifact store. A
	// real deployment may back it with a content-addressed filesystem
	// cache; this interface deliberately does not expose the storage
	// format.
	Store interface {
		// Get returns the artifact set for fp, or ok=false if the store
		// has no entry. A returned set must never be mutated by callers.
		Get(fp Fingerprint) (arts *Artifacts, ok bool, err error)
		// Put commits the artifact set under fp atomically: after Put
		// returns nil the full entry is visible, and on error or
		// cancellation nothing is. Put on an existing fingerprint is a
		// no-op (first writer wins).
		Put(arts *Artifacts) error
	}
)

// Sort orders products lexicographically by name. Called by store
// implementations before commit so that Get always observes a stable order.
func (a *Artifacts) Sort() {
	slices.SortFunc(a.Products, func(x, y Product) int {
		return strings.Compare(x.Name, y.Name)
	})
}

// Product returns the named product, or false if the set has none.
func (a *Artifacts) Product(name string) (Product, bool) {
	for _, p := range a.Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// Materialize writes the products under dir for consumption by external
// tools. The artifact set itself is not touched; this is a read-only copy
// into a caller-owned working directory.
func (a *Artifacts) Materialize(dir string) error {
	for _, p := range a.Products {
		dst := filepath.Join(dir, filepath.FromSlash(p.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, p.Contents, 0o644); err != nil {
			return err
		}
	}
	return nil
}
