// SPDX-License-Identifier: MPL-2.0

// Package checks runs the verification battery: formatting, security
// audit, lint, and the partitioned test suite. Checks are isolated, not
// fail-fast: every requested check runs and reports, regardless of how the
// others fare. Each check only reads the source view and the artifact
// cache and works inside its own scratch directory, so the set runs safely
// as concurrent workers.
package checks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pakforge/pakforge/internal/config"
	"github.com/pakforge/pakforge/internal/srcview"
	"github.com/pakforge/pakforge/internal/store"
	"github.com/pakforge/pakforge/internal/toolchain"
	"github.com/pakforge/pakforge/internal/toolexec"
)

const (
	// KindFormat is the structural re-formatting check over the full
	// repository tree. Check mode only; fix mode is exposed separately.
	KindFormat Kind = "format"
	// KindAudit cross-references the dependency declaration against the
	// vulnerability advisory dataset.
	KindAudit Kind = "audit"
	// KindLint is static analysis in zero-tolerance mode: every warning
	// is a failure.
	KindLint Kind = "lint"
	// KindTest executes the test suite, optionally split into disjoint
	// shards.
	KindTest Kind = "test"
)

// CanonicalOrder fixes the result ordering regardless of which subset of
// checks a caller requests or how the concurrent workers finish.
var CanonicalOrder = []Kind{KindFormat, KindAudit, KindLint, KindTest}

type (
	// Kind names one verification check.
	Kind string

	// Result is one check's outcome. Failures are data, not errors: a
	// failing check never prevents the others from reporting.
	Result struct {
		Check      Kind
		Passed     bool
		Diagnostic string
	}

	// Runner executes verification checks against a compile view and the
	// cached dependency artifacts.
	Runner struct {
		Invoker toolexec.Invoker
		// Partitions is the test shard count; values below 1 mean a
		// single shard.
		Partitions int
	}
)

// ParseKinds validates a caller-specified subset of check names.
func ParseKinds(names []string) ([]Kind, error) {
	var kinds []Kind
	for _, n := range names {
		k := Kind(n)
		switch k {
		case KindFormat, KindAudit, KindLint, KindTest:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("unknown check %q (valid: format, audit, lint, test)", n)
		}
	}
	return kinds, nil
}

// Run executes the requested checks concurrently and returns one Result
// per distinct requested check, in canonical order.
func (r *Runner) Run(ctx context.Context, view *srcview.View, arts *store.Artifacts, tc toolchain.Spec, cfg config.Resolved, requested []Kind) []Result {
	selected := make([]Kind, 0, len(CanonicalOrder))
	for _, k := range CanonicalOrder {
		for _, req := range requested {
			if req == k {
				selected = append(selected, k)
				break
			}
		}
	}

	results := make([]Result, len(selected))
	var wg sync.WaitGroup
	for i, kind := range selected {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.runOne(ctx, kind, view, arts, tc, cfg)
		}()
	}
	wg.Wait()

	for _, res := range results {
		slog.Info("check finished", "check", string(res.Check), "passed", res.Passed)
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, kind Kind, view *srcview.View, arts *store.Artifacts, tc toolchain.Spec, cfg config.Resolved) Result {
	// Format and audit only read the source tree; lint and test need a
	// scratch directory for materialized artifacts.
	switch kind {
	case KindFormat:
		return r.runFormat(ctx, view, cfg)
	case KindAudit:
		return r.runAudit(ctx, view, cfg)
	case KindLint, KindTest:
	default:
		return Result{Check: kind, Diagnostic: fmt.Sprintf("unknown check %q", kind)}
	}

	workDir, err := os.MkdirTemp("", "pakforge-check-"+string(kind)+"-*")
	if err != nil {
		return Result{Check: kind, Diagnostic: fmt.Sprintf("create check working directory: %v", err)}
	}
	defer os.RemoveAll(workDir)

	if kind == KindLint {
		return r.runLint(ctx, view, arts, tc, cfg, workDir)
	}
	return r.runTest(ctx, view, arts, tc, cfg, workDir)
}

// runFormat checks formatting over the full repository tree, not just the
// compile view. No side effects in check mode.
func (r *Runner) runFormat(ctx context.Context, view *srcview.View, cfg config.Resolved) Result {
	out, err := r.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Formatter,
		Args: []string{"--check", "."},
		Dir:  view.Root,
	})
	return resultFromOutput(KindFormat, out, err)
}

// FixFormat runs the formatter in fix mode, rewriting files in place. This
// is the one check operation with side effects, exposed only through the
// CLI fmt entry point.
func (r *Runner) FixFormat(ctx context.Context, root string, cfg config.Resolved) (string, error) {
	out, err := r.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Formatter,
		Args: []string{"."},
		Dir:  root,
	})
	if err != nil {
		return "", err
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("formatter exited with status %d: %s", out.ExitCode, out.Combined())
	}
	return string(out.Stdout), nil
}

func (r *Runner) runAudit(ctx context.Context, view *srcview.View, cfg config.Resolved) Result {
	out, err := r.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Auditor,
		Args: []string{"--manifest", cfg.Manifest, "--lockfile", cfg.Lockfile},
		Dir:  view.Root,
	})
	return resultFromOutput(KindAudit, out, err)
}

// runLint runs static analysis over the compile view with every warning
// promoted to a failure.
func (r *Runner) runLint(ctx context.Context, view *srcview.View, arts *store.Artifacts, tc toolchain.Spec, cfg config.Resolved, workDir string) Result {
	if err := arts.Materialize(workDir); err != nil {
		return Result{Check: KindLint, Diagnostic: fmt.Sprintf("materialize dependency artifacts: %v", err)}
	}
	out, err := r.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Linter,
		Args: []string{
			"--toolchain", tc.Channel,
			"--artifact-dir", workDir,
			"--deny", "warnings",
		},
		Dir: view.Root,
	})
	return resultFromOutput(KindLint, out, err)
}

// runTest enumerates the suite, splits it into disjoint shards, and runs
// the shards as concurrent workers, each in its own subdirectory.
func (r *Runner) runTest(ctx context.Context, view *srcview.View, arts *store.Artifacts, tc toolchain.Spec, cfg config.Resolved, workDir string) Result {
	if err := arts.Materialize(workDir); err != nil {
		return Result{Check: KindTest, Diagnostic: fmt.Sprintf("materialize dependency artifacts: %v", err)}
	}

	listOut, err := r.Invoker.Run(ctx, toolexec.Invocation{
		Tool: cfg.Tools.Tester,
		Args: []string{"--list"},
		Dir:  view.Root,
	})
	if err != nil {
		return Result{Check: KindTest, Diagnostic: err.Error()}
	}
	if listOut.ExitCode != 0 {
		return Result{Check: KindTest, Diagnostic: "test enumeration failed: " + listOut.Combined()}
	}

	names := splitLines(string(listOut.Stdout))
	shards := Partition(names, r.Partitions)

	type shardResult struct {
		passed     bool
		diagnostic string
	}
	results := make([]shardResult, len(shards))
	var wg sync.WaitGroup
	for i, shard := range shards {
		if len(shard) == 0 {
			results[i] = shardResult{passed: true}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			shardDir := fmt.Sprintf("%s/shard-%d", workDir, i)
			if err := os.MkdirAll(shardDir, 0o755); err != nil {
				results[i] = shardResult{diagnostic: err.Error()}
				return
			}
			out, err := r.Invoker.Run(ctx, toolexec.Invocation{
				Tool: cfg.Tools.Tester,
				Args: []string{
					"run",
					"--artifact-dir", workDir,
					"--toolchain", tc.Channel,
					"--tests", strings.Join(shard, ","),
				},
				Dir: view.Root,
				Env: map[string]string{"TMPDIR": shardDir},
			})
			if err != nil {
				results[i] = shardResult{diagnostic: err.Error()}
				return
			}
			results[i] = shardResult{
				passed:     out.ExitCode == 0,
				diagnostic: out.Combined(),
			}
		}()
	}
	wg.Wait()

	passed := true
	var diagnostics []string
	for i, res := range results {
		if !res.passed {
			passed = false
			diagnostics = append(diagnostics, fmt.Sprintf("shard %d/%d: %s", i+1, len(shards), strings.TrimSpace(res.diagnostic)))
		}
	}
	return Result{Check: KindTest, Passed: passed, Diagnostic: strings.Join(diagnostics, "\n")}
}

func resultFromOutput(kind Kind, out *toolexec.Output, err error) Result {
	if err != nil {
		return Result{Check: kind, Diagnostic: err.Error()}
	}
	if out.ExitCode != 0 {
		return Result{Check: kind, Diagnostic: strings.TrimSpace(out.Combined())}
	}
	return Result{Check: kind, Passed: true}
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
