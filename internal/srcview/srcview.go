// SPDX-License-Identifier: MPL-2.0

// Package srcview produces filtered, deterministic views of the package
// source tree. A view is recomputed on every build invocation; caching of
// compiled output is the dependency cache's job, not this package's.
package srcview

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// ModeCompile selects only files relevant to compilation: sources,
	// the dependency manifest, and the lockfile.
	ModeCompile Mode = "compile"
	// ModePackage selects everything ModeCompile selects plus auxiliary
	// asset directories (manual-page and shell-completion sources).
	ModePackage Mode = "package"
)

type (
	// Mode names a view variant.
	Mode string

	// Entry is one file in a view. Paths are slash-separated and relative
	// to the view root.
	Entry struct {
		Path    string
		Content []byte
	}

	// View is an immutable, lexicographically ordered sequence of entries.
	// Downstream fingerprinting relies on the ordering being stable.
	View struct {
		Mode    Mode
		Root    string
		Entries []Entry
	}

	// ViewError reports a view that could not be built, typically because
	// the root directory does not exist.
	ViewError struct {
		Root  string
		Cause error
	}

	// Options configures the filter predicates. Zero-value fields fall
	// back to the defaults below.
	Options struct {
		// SourceExts are file extensions (with leading dot) recognized as
		// compilable sources.
		SourceExts []string
		// Manifest is the dependency manifest filename at the view root.
		Manifest string
		// Lockfile is the lockfile filename at the view root.
		Lockfile string
		// ManDir is the directory segment holding manual-page sources.
		ManDir string
		// CompletionsDir is the directory segment holding shell-completion
		// sources.
		CompletionsDir string
		// ExcludeDirs are directory names pruned from the walk entirely
		// (build output, version control metadata).
		ExcludeDirs []string
	}

	// predicate decides whether a relative file path belongs to a view.
	// Predicates are independent; a file is included if any predicate in
	// the chain accepts it.
	predicate func(relPath string) bool
)

// DefaultOptions returns the filter configuration used when the caller does
// not override it.
func DefaultOptions() Options {
	return Options{
		SourceExts:     []string{".src"},
		Manifest:       "package.toml",
		Lockfile:       "package.lock",
		ManDir:         "man",
		CompletionsDir: "completions",
		ExcludeDirs:    []string{".git", ".hg", ".jj", ".svn", "target", "out"},
	}
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("cannot build source view for %s: %v", e.Root, e.Cause)
}

// Unwrap returns the underlying cause for use with errors.Is/As.
func (e *ViewError) Unwrap() error {
	return e.Cause
}

// Build walks root and returns the view for the requested mode. Entries are
// ordered lexicographically by path; two invocations over an unchanged tree
// produce identical views.
func Build(root string, mode Mode, opts Options) (*View, error) {
	opts = withDefaults(opts)

	info, err := os.Stat(root)
	if err != nil {
		return nil, &ViewError{Root: root, Cause: err}
	}
	if !info.IsDir() {
		return nil, &ViewError{Root: root, Cause: fmt.Errorf("not a directory")}
	}

	chain, err := predicateChain(mode, opts)
	if err != nil {
		return nil, &ViewError{Root: root, Cause: err}
	}

	var entries []Entry
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && slices.Contains(opts.ExcludeDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !anyAccepts(chain, rel) {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		entries = append(entries, Entry{Path: rel, Content: content})
		return nil
	})
	if walkErr != nil {
		return nil, &ViewError{Root: root, Cause: walkErr}
	}

	// WalkDir visits lexically already; the explicit sort pins the
	// ordering contract rather than relying on walk internals.
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})

	return &View{Mode: mode, Root: root, Entries: entries}, nil
}

// Lookup returns the content of the entry at relPath, or false if the view
// does not contain it.
func (v *View) Lookup(relPath string) ([]byte, bool) {
	for _, e := range v.Entries {
		if e.Path == relPath {
			return e.Content, true
		}
	}
	return nil, false
}

// Paths returns the entry paths in view order.
func (v *View) Paths() []string {
	paths := make([]string, len(v.Entries))
	for i, e := range v.Entries {
		paths[i] = e.Path
	}
	return paths
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if len(opts.SourceExts) == 0 {
		opts.SourceExts = def.SourceExts
	}
	if opts.Manifest == "" {
		opts.Manifest = def.Manifest
	}
	if opts.Lockfile == "" {
		opts.Lockfile = def.Lockfile
	}
	if opts.ManDir == "" {
		opts.ManDir = def.ManDir
	}
	if opts.CompletionsDir == "" {
		opts.CompletionsDir = def.CompletionsDir
	}
	if len(opts.ExcludeDirs) == 0 {
		opts.ExcludeDirs = def.ExcludeDirs
	}
	return opts
}

// predicateChain builds the ordered filter chain for a mode. The chain is a
// set union of independent predicates, so evaluation order cannot change
// the result set.
func predicateChain(mode Mode, opts Options) ([]predicate, error) {
	compile := []predicate{
		func(rel string) bool { return rel == opts.Manifest },
		func(rel string) bool { return rel == opts.Lockfile },
		func(rel string) bool {
			return slices.Contains(opts.SourceExts, filepath.Ext(rel))
		},
	}

	switch mode {
	case ModeCompile:
		return compile, nil
	case ModePackage:
		return append(compile,
			func(rel string) bool { return hasSegment(rel, opts.ManDir) },
			func(rel string) bool { return hasSegment(rel, opts.CompletionsDir) },
		), nil
	default:
		return nil, fmt.Errorf("unknown view mode %q", mode)
	}
}

func anyAccepts(chain []predicate, rel string) bool {
	for _, p := range chain {
		if p(rel) {
			return true
		}
	}
	return false
}

// hasSegment reports whether the slash-separated path contains dir as a
// whole path segment (not a substring of a longer name).
func hasSegment(rel, dir string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == dir {
			return true
		}
	}
	return false
}
