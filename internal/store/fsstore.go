// SPDX-License-Identifier: MPL-2.0

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSStore is a filesystem-backed Store. Each fingerprint maps to one
// directory named by its hex encoding; entries are staged in a temporary
// sibling directory and published with a single rename, which is the atomic
// commit the Store contract requires.
type FSStore struct {
	root string
}

// NewFSStore opens (creating if needed) a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact store root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

// Get reads the artifact set for fp from disk.
func (s *FSStore) Get(fp Fingerprint) (*Artifacts, bool, error) {
	entryDir := filepath.Join(s.root, fp.String())
	info, err := os.Stat(entryDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat store entry %s: %w", fp, err)
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("store entry %s is not a directory", fp)
	}

	arts := &Artifacts{Fingerprint: fp}
	walkErr := filepath.WalkDir(entryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(entryDir, path)
		if relErr != nil {
			return relErr
		}
		contents, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		arts.Products = append(arts.Products, Product{
			Name:     filepath.ToSlash(rel),
			Contents: contents,
		})
		return nil
	})
	if walkErr != nil {
		return nil, false, fmt.Errorf("read store entry %s: %w", fp, walkErr)
	}
	arts.Sort()
	return arts, true, nil
}

// Put stages the artifact set next to its final location and renames it
// into place. If another writer committed the same fingerprint first, the
// existing entry wins and the staged copy is discarded.
func (s *FSStore) Put(arts *Artifacts) error {
	entryDir := filepath.Join(s.root, arts.Fingerprint.String())
	if _, err := os.Stat(entryDir); err == nil {
		return nil
	}

	staging, err := os.MkdirTemp(s.root, arts.Fingerprint.String()+".staging-*")
	if err != nil {
		return fmt.Errorf("stage store entry %s: %w", arts.Fingerprint, err)
	}
	defer os.RemoveAll(staging)

	for _, p := range arts.Products {
		if !fs.ValidPath(p.Name) || strings.Contains(p.Name, "..") {
			return fmt.Errorf("invalid product name %q", p.Name)
		}
		dst := filepath.Join(staging, filepath.FromSlash(p.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("stage product %s: %w", p.Name, err)
		}
		if err := os.WriteFile(dst, p.Contents, 0o644); err != nil {
			return fmt.Errorf("stage product %s: %w", p.Name, err)
		}
	}

	if err := os.Rename(staging, entryDir); err != nil {
		// A concurrent Put for the same fingerprint may have won the
		// rename; that is not an error for this writer.
		if _, statErr := os.Stat(entryDir); statErr == nil {
			return nil
		}
		return fmt.Errorf("commit store entry %s: %w", arts.Fingerprint, err)
	}
	return nil
}
