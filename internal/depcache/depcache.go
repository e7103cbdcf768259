// SPDX-License-Identifier: MPL-2.0

// Package depcache compiles the package's external dependencies in
// isolation and reuses the compiled artifacts across builds. Artifacts are
// keyed by a fingerprint over the dependency declaration and the toolchain;
// the central invariant is at most one recompilation per fingerprint.
package depcache

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pakforge/pakforge/internal/config"
	"github.com/pakforge/pakforge/internal/srcview"
	"github.com/pakforge/pakforge/internal/store"
	"github.com/pakforge/pakforge/internal/toolchain"
	"github.com/pakforge/pakforge/internal/toolexec"
)

type (
	// Cache compiles and stores reusable dependency artifacts. The zero
	// value is not usable; both fields must be set.
	Cache struct {
		Store   store.Store
		Invoker toolexec.Invoker
	}

	// DependencyBuildError reports a failed dependency compilation. It is
	// fatal to every pipeline stage that reads the artifact cache.
	DependencyBuildError struct {
		// Dependency is the failing dependency name, best-effort parsed
		// from the compiler diagnostic ("unknown" when unparseable).
		Dependency string
		// Fingerprint is the cache key the build was running under.
		Fingerprint store.Fingerprint
		// Diagnostic is the compiler's raw diagnostic text.
		Diagnostic string
	}
)

// backtickName matches the first `name` in a compiler diagnostic.
var backtickName = regexp.MustCompile("`([^`]+)`")

func (e *DependencyBuildError) Error() string {
	return fmt.Sprintf("dependency %s failed to build (fingerprint %s): %s",
		e.Dependency, e.Fingerprint, toolexec.FirstLine(e.Diagnostic))
}

// Fingerprint computes the cache key for a compile view, toolchain, and the
// buildConfig fields that affect dependency compilation. Package-local
// feature flags deliberately do not participate: they select package code
// paths, not dependency artifacts.
func Fingerprint(view *srcview.View, tc toolchain.Spec, cfg config.Resolved) (store.Fingerprint, error) {
	manifest, ok := view.Lookup(cfg.Manifest)
	if !ok {
		return store.Fingerprint{}, fmt.Errorf("dependency manifest %s not present in compile view", cfg.Manifest)
	}
	lockfile, ok := view.Lookup(cfg.Lockfile)
	if !ok {
		return store.Fingerprint{}, fmt.Errorf("lockfile %s not present in compile view", cfg.Lockfile)
	}
	return store.NewFingerprint(
		manifest,
		lockfile,
		[]byte(tc.Identity()),
		[]byte(cfg.HostPlatform),
		[]byte(strings.Join(cfg.LinkInputs, "\x00")),
	), nil
}

// BuildDepsOnly returns the artifact set for the current fingerprint,
// compiling it first if the store has no entry. On a hit the stored set is
// returned unchanged. On a miss the external compiler builds dependencies
// in isolation into a scratch directory, and the result is committed to the
// store atomically before returning; cancellation mid-build leaves no entry.
func (c *Cache) BuildDepsOnly(ctx context.Context, view *srcview.View, tc toolchain.Spec, cfg config.Resolved) (*store.Artifacts, error) {
	fp, err := Fingerprint(view, tc, cfg)
	if err != nil {
		return nil, err
	}

	if arts, ok, err := c.Store.Get(fp); err != nil {
		return nil, fmt.Errorf("artifact store lookup for %s: %w", fp, err)
	} else if ok {
		slog.Debug("dependency cache hit", "fingerprint", fp.String(), "products", len(arts.Products))
		return arts, nil
	}

	slog.Debug("dependency cache miss", "fingerprint", fp.String(), "toolchain", tc.Identity())

	outDir, err := os.MkdirTemp("", "pakforge-deps-*")
	if err != nil {
		return nil, fmt.Errorf("create dependency output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		"build", "--deps-only",
		"--toolchain", tc.Channel,
		"--manifest", cfg.Manifest,
		"--lockfile", cfg.Lockfile,
		"--out-dir", outDir,
	}
	for _, input := range cfg.LinkInputs {
		args = append(args, "--link", input)
	}

	out, err := c.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Compiler,
		Args: args,
		Dir:  view.Root,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke dependency compiler: %w", err)
	}
	if out.ExitCode != 0 {
		diagnostic := out.Combined()
		return nil, &DependencyBuildError{
			Dependency:  failingDependency(diagnostic),
			Fingerprint: fp,
			Diagnostic:  diagnostic,
		}
	}
	if err := ctx.Err(); err != nil {
		// Cancelled after the compiler finished: do not commit.
		return nil, err
	}

	arts, err := collectArtifacts(fp, outDir)
	if err != nil {
		return nil, fmt.Errorf("collect dependency artifacts: %w", err)
	}
	if err := c.Store.Put(arts); err != nil {
		return nil, fmt.Errorf("commit artifacts for %s: %w", fp, err)
	}
	slog.Info("dependency artifacts compiled", "fingerprint", fp.String(), "products", len(arts.Products))
	return arts, nil
}

// failingDependency extracts the dependency name from a compiler
// diagnostic. Compilers conventionally quote the failing crate/library in
// backticks on the first line.
func failingDependency(diagnostic string) string {
	if m := backtickName.FindStringSubmatch(toolexec.FirstLine(diagnostic)); m != nil {
		return m[1]
	}
	return "unknown"
}

func collectArtifacts(fp store.Fingerprint, outDir string) (*store.Artifacts, error) {
	arts := &store.Artifacts{Fingerprint: fp}
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(outDir, path)
		if relErr != nil {
			return relErr
		}
		contents, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		arts.Products = append(arts.Products, store.Product{
			Name:     filepath.ToSlash(rel),
			Contents: contents,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(arts.Products) == 0 {
		return nil, fmt.Errorf("dependency compiler produced no artifacts in %s", outDir)
	}
	arts.Sort()
	return arts, nil
}
