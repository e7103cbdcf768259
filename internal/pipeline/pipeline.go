// SPDX-License-Identifier: MPL-2.0

// Package pipeline wires the build stages together: toolchain resolution,
// source views, the dependency cache, the package builder, and the check
// runner. It contains no stage logic of its own; every decision lives in
// the package that owns it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pakforge/pakforge/internal/builder"
	"github.com/pakforge/pakforge/internal/checks"
	"github.com/pakforge/pakforge/internal/config"
	"github.com/pakforge/pakforge/internal/depcache"
	"github.com/pakforge/pakforge/internal/issue"
	"github.com/pakforge/pakforge/internal/srcview"
	"github.com/pakforge/pakforge/internal/store"
	"github.com/pakforge/pakforge/internal/toolchain"
	"github.com/pakforge/pakforge/internal/toolexec"
)

// stateDirName holds the on-disk artifact store, relative to the
// package root.
const stateDirName = ".pakforge"

// Pipeline is one invocation's frozen composition: the package root, the
// resolved configuration, the artifact store, and the tool invoker.
type Pipeline struct {
	Root    string
	Config  config.Resolved
	Store   store.Store
	Invoker toolexec.Invoker
}

// HostPlatform names the platform this process builds for.
func HostPlatform() string {
	return runtime.GOARCH + "-" + runtime.GOOS
}

// Open loads the descriptor at descriptorPath, resolves it for the host
// platform, and returns a pipeline rooted at the descriptor's directory
// with an on-disk artifact store and the real tool invoker.
func Open(descriptorPath string) (*Pipeline, error) {
	if descriptorPath == "" {
		descriptorPath = config.DescriptorFileName
	}
	cfg, err := config.Load(descriptorPath)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(filepath.Dir(descriptorPath))
	if err != nil {
		return nil, fmt.Errorf("resolve package root: %w", err)
	}
	st, err := store.NewFSStore(filepath.Join(root, stateDirName, "store"))
	if err != nil {
		return nil, issue.NewContext().
			Operation("open artifact store").
			Resource(filepath.Join(root, stateDirName, "store")).
			Suggest("check that the package root is writable").
			Wrap(err)
	}
	return &Pipeline{
		Root:    root,
		Config:  cfg.Resolve(HostPlatform()),
		Store:   st,
		Invoker: &toolexec.ExecInvoker{},
	}, nil
}

// viewOptions maps the descriptor's layout fields onto view filters.
func (p *Pipeline) viewOptions() srcview.Options {
	opts := srcview.DefaultOptions()
	if len(p.Config.SourceExts) > 0 {
		opts.SourceExts = p.Config.SourceExts
	}
	if p.Config.Manifest != "" {
		opts.Manifest = p.Config.Manifest
	}
	if p.Config.Lockfile != "" {
		opts.Lockfile = p.Config.Lockfile
	}
	if p.Config.ManDir != "" {
		opts.ManDir = p.Config.ManDir
	}
	if p.Config.CompletionsDir != "" {
		opts.CompletionsDir = p.Config.CompletionsDir
	}
	opts.ExcludeDirs = append(opts.ExcludeDirs, stateDirName)
	return opts
}

// Toolchain resolves the pinned toolchain descriptor. Read-only and
// deterministic; safe to call repeatedly.
func (p *Pipeline) Toolchain() (toolchain.Spec, error) {
	return toolchain.Resolve(filepath.Join(p.Root, p.Config.ToolchainFile))
}

// prepare resolves the toolchain, builds the view for mode, and ensures
// the dependency artifacts exist (compiling at most once per fingerprint).
func (p *Pipeline) prepare(ctx context.Context, mode srcview.Mode) (*srcview.View, *store.Artifacts, toolchain.Spec, error) {
	tc, err := p.Toolchain()
	if err != nil {
		return nil, nil, toolchain.Spec{}, err
	}
	slog.Debug("toolchain resolved", "channel", tc.Channel, "identity", tc.Identity())

	view, err := srcview.Build(p.Root, mode, p.viewOptions())
	if err != nil {
		return nil, nil, toolchain.Spec{}, err
	}

	// The dependency fingerprint is always computed over the compile view,
	// even when the caller needs the wider package view.
	compileView := view
	if mode != srcview.ModeCompile {
		compileView, err = srcview.Build(p.Root, srcview.ModeCompile, p.viewOptions())
		if err != nil {
			return nil, nil, toolchain.Spec{}, err
		}
	}

	cache := &depcache.Cache{Store: p.Store, Invoker: p.Invoker}
	arts, err := cache.BuildDepsOnly(ctx, compileView, tc, p.Config)
	if err != nil {
		return nil, nil, toolchain.Spec{}, err
	}
	return view, arts, tc, nil
}

// Build runs the full build: dependencies, package compilation,
// post-install steps, assembly.
func (p *Pipeline) Build(ctx context.Context) (*builder.Artifact, error) {
	view, arts, tc, err := p.prepare(ctx, srcview.ModePackage)
	if err != nil {
		return nil, err
	}
	steps := append(builder.DefaultSteps(), builder.StepsFromConfig(p.Config.Steps)...)
	b := &builder.Builder{Invoker: p.Invoker}
	return b.Build(ctx, view, arts, tc, p.Config, steps)
}

// Check runs the requested checks against the compile view and the cached
// dependency artifacts. Check failures come back as results; the returned
// error covers only pipeline-stage failures (toolchain, view, dependency
// cache), which are fatal.
func (p *Pipeline) Check(ctx context.Context, requested []checks.Kind) ([]checks.Result, error) {
	view, arts, tc, err := p.prepare(ctx, srcview.ModeCompile)
	if err != nil {
		return nil, err
	}
	runner := &checks.Runner{Invoker: p.Invoker, Partitions: p.Config.Checks.TestPartitions}
	return runner.Run(ctx, view, arts, tc, p.Config, requested), nil
}

// FixFormat rewrites the source tree in place with the formatter.
func (p *Pipeline) FixFormat(ctx context.Context) (string, error) {
	runner := &checks.Runner{Invoker: p.Invoker}
	return runner.FixFormat(ctx, p.Root, p.Config)
}

// InstallDir returns the per-version install location under the state
// directory, used by the run command.
func (p *Pipeline) InstallDir() string {
	return filepath.Join(p.Root, stateDirName, "install", p.Config.Package.Version)
}

// BinaryPath returns where the built executable lands after Install.
func (p *Pipeline) BinaryPath() string {
	return filepath.Join(p.InstallDir(), "bin", p.Config.Package.Name)
}

// Install builds the package and writes the bundle under InstallDir,
// returning the executable path.
func (p *Pipeline) Install(ctx context.Context) (string, error) {
	artifact, err := p.Build(ctx)
	if err != nil {
		return "", err
	}
	dir := p.InstallDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create install directory: %w", err)
	}
	if err := artifact.Install(dir); err != nil {
		return "", err
	}
	return p.BinaryPath(), nil
}
