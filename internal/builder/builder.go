// SPDX-License-Identifier: MPL-2.0

// Package builder compiles the package against cached dependency artifacts
// and assembles the final bundle: binary, generated manual pages, and
// installed shell completions. Stages are strictly sequential and
// fail-fast; a failed build returns no artifact at all.
package builder

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pakforge/pakforge/internal/config"
	"github.com/pakforge/pakforge/internal/srcview"
	"github.com/pakforge/pakforge/internal/store"
	"github.com/pakforge/pakforge/internal/toolchain"
	"github.com/pakforge/pakforge/internal/toolexec"
)

type (
	// Builder compiles and packages the single target package.
	Builder struct {
		Invoker toolexec.Invoker
	}

	// File is one file inside the final bundle, with a slash-separated
	// path relative to the install root.
	File struct {
		Path     string
		Contents []byte
	}

	// Artifact is the final output bundle. It is owned exclusively by the
	// builder until returned; all contents are held in memory so a failed
	// build has nothing on disk to clean up.
	Artifact struct {
		// BinaryName is the executable's base name.
		BinaryName string
		// Binary is the compiled executable.
		Binary []byte
		// ManPages are the generated manual pages (paths under man/).
		ManPages []File
		// Completions are the installed completion scripts (paths under
		// completions/<shell>/).
		Completions []File
		// Extra are files produced by descriptor-declared steps.
		Extra []File
		// Version is the version string that was substituted into manual
		// pages.
		Version string
	}

	// CompileError reports a failed package compilation, carrying the
	// feature combination that failed and the compiler's diagnostic text.
	CompileError struct {
		Features   []string
		Diagnostic string
	}

	// PostInstallError reports a failed post-install step by name.
	// Earlier steps' outputs are not rolled back; they live in a scoped
	// temporary area the builder discards before returning.
	PostInstallError struct {
		Step  string
		Cause error
	}
)

func (e *CompileError) Error() string {
	return fmt.Sprintf("package compilation failed (features [%s]): %s",
		featureList(e.Features), toolexec.FirstLine(e.Diagnostic))
}

func (e *PostInstallError) Error() string {
	return fmt.Sprintf("post-install step %q failed: %v", e.Step, e.Cause)
}

// Unwrap returns the step's underlying error.
func (e *PostInstallError) Unwrap() error {
	return e.Cause
}

// Build runs the three builder stages: compile the package sources against
// the cached dependency artifacts, run the post-install steps in declared
// order, and assemble the bundle. Each stage runs only if the previous one
// succeeded. Given identical inputs the binary is byte-identical across
// runs; manual pages vary only in the caller-supplied version string.
func (b *Builder) Build(ctx context.Context, view *srcview.View, arts *store.Artifacts, tc toolchain.Spec, cfg config.Resolved, steps []Step) (*Artifact, error) {
	features, err := ResolveFeatures(cfg.Features)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "pakforge-build-*")
	if err != nil {
		return nil, fmt.Errorf("create build output area: %w", err)
	}
	defer os.RemoveAll(workDir)

	depsDir := filepath.Join(workDir, "deps")
	outDir := filepath.Join(workDir, "out")
	for _, dir := range []string{depsDir, outDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create build output area: %w", err)
		}
	}
	if err := arts.Materialize(depsDir); err != nil {
		return nil, fmt.Errorf("materialize dependency artifacts: %w", err)
	}

	// Stage 1: compile.
	if err := b.compile(ctx, view, tc, cfg, features, depsDir, outDir); err != nil {
		return nil, err
	}

	// Stage 2: post-install steps, declared order, fail-fast.
	env := &StepEnv{
		View:    view,
		OutDir:  outDir,
		Version: cfg.Package.Version,
		Config:  cfg,
		Invoker: b.Invoker,
	}
	for _, step := range steps {
		slog.Debug("running post-install step", "step", step.Name())
		if err := step.Run(ctx, env); err != nil {
			return nil, &PostInstallError{Step: step.Name(), Cause: err}
		}
	}

	// Stage 3: assemble.
	artifact, err := assemble(outDir, cfg.Package.Name, cfg.Package.Version)
	if err != nil {
		return nil, err
	}
	slog.Info("package assembled",
		"package", cfg.Package.Name,
		"features", featureList(features),
		"manpages", len(artifact.ManPages),
		"completions", len(artifact.Completions))
	return artifact, nil
}

func (b *Builder) compile(ctx context.Context, view *srcview.View, tc toolchain.Spec, cfg config.Resolved, features []string, depsDir, outDir string) error {
	binDir := filepath.Join(outDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	args := []string{
		"build",
		"--toolchain", tc.Channel,
		"--artifact-dir", depsDir,
		"--out-dir", binDir,
		"--bin", cfg.Package.Name,
	}
	if len(features) > 0 {
		args = append(args, "--features", featureList(features))
	} else {
		args = append(args, "--no-default-features")
	}
	for _, input := range cfg.LinkInputs {
		args = append(args, "--link", input)
	}

	out, err := b.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Compiler,
		Args: args,
		Dir:  view.Root,
	})
	if err != nil {
		return fmt.Errorf("invoke compiler: %w", err)
	}
	if out.ExitCode != 0 {
		return &CompileError{Features: features, Diagnostic: out.Combined()}
	}
	if _, statErr := os.Stat(filepath.Join(binDir, cfg.Package.Name)); statErr != nil {
		return &CompileError{
			Features:   features,
			Diagnostic: fmt.Sprintf("compiler reported success but produced no binary %s", cfg.Package.Name),
		}
	}
	return nil
}

// assemble lifts the output area into an in-memory Artifact.
func assemble(outDir, pkgName, version string) (*Artifact, error) {
	artifact := &Artifact{BinaryName: pkgName, Version: version}

	err := filepath.WalkDir(outDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(outDir, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		contents, readErr := os.ReadFile(p)
		if readErr != nil {
			return readErr
		}
		switch {
		case rel == "bin/"+pkgName:
			artifact.Binary = contents
		case strings.HasPrefix(rel, "man/"):
			artifact.ManPages = append(artifact.ManPages, File{Path: rel, Contents: contents})
		case strings.HasPrefix(rel, "completions/"):
			artifact.Completions = append(artifact.Completions, File{Path: rel, Contents: contents})
		default:
			artifact.Extra = append(artifact.Extra, File{Path: rel, Contents: contents})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assemble package artifact: %w", err)
	}
	if artifact.Binary == nil {
		return nil, fmt.Errorf("assemble package artifact: binary bin/%s missing from output area", pkgName)
	}
	return artifact, nil
}

// Install writes the bundle under dir: the binary (executable) at
// bin/<name>, manual pages and completions at their bundle paths.
func (a *Artifact) Install(dir string) error {
	files := make([]File, 0, 2+len(a.ManPages)+len(a.Completions)+len(a.Extra))
	files = append(files, File{Path: "bin/" + a.BinaryName, Contents: a.Binary})
	files = append(files, a.ManPages...)
	files = append(files, a.Completions...)
	files = append(files, a.Extra...)

	for _, f := range files {
		dst := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("install %s: %w", f.Path, err)
		}
		mode := os.FileMode(0o644)
		if f.Path == "bin/"+a.BinaryName {
			mode = 0o755
		}
		if err := os.WriteFile(dst, f.Contents, mode); err != nil {
			return fmt.Errorf("install %s: %w", f.Path, err)
		}
	}
	return nil
}
