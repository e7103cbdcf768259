// SPDX-License-Identifier: MPL-2.0

// Package toolexec invokes external build tools (compiler, formatter,
// auditor, linter, test runner) as opaque executables. Every pipeline
// component funnels its external invocations through the Invoker interface
// so tests can substitute fakes without spawning processes.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type (
	// Invocation describes one external tool run. Values are plain data;
	// the zero value of optional fields means "inherit".
	Invocation struct {
		// Tool is the executable name or path.
		Tool string
		// Args are the arguments, already fully expanded.
		Args []string
		// Dir is the working directory. Empty inherits the process cwd.
		Dir string
		// Env are extra environment variables layered over the process
		// environment.
		Env map[string]string
	}

	// Output captures a completed invocation. ExitCode is meaningful even
	// when the tool failed; Stdout and Stderr always carry whatever the
	// tool produced.
	Output struct {
		ExitCode int
		Stdout   []byte
		Stderr   []byte
	}

	// Invoker runs external tools. Implementations must honor context
	// cancellation on the underlying process.
	Invoker interface {
		Run(ctx context.Context, inv Invocation) (*Output, error)
	}

	// ExecInvoker is the production Invoker backed by os/exec.
	ExecInvoker struct{}
)

// Combined returns stderr if non-empty, otherwise stdout. External tools
// disagree about which stream carries diagnostics; error reporting wants
// whichever one has content.
func (o *Output) Combined() string {
	if len(bytes.TrimSpace(o.Stderr)) > 0 {
		return string(o.Stderr)
	}
	return string(o.Stdout)
}

// Run executes the tool and waits for it. A non-zero exit is not an error:
// the caller gets the exit code and captured output and decides. Run only
// returns an error when the process could not be started or was killed by
// the context.
func (ExecInvoker) Run(ctx context.Context, inv Invocation) (*Output, error) {
	cmd := exec.CommandContext(ctx, inv.Tool, inv.Args...)
	if inv.Dir != "" {
		cmd.Dir = inv.Dir
	}
	cmd.Env = append(os.Environ(), EnvToSlice(inv.Env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("tool %s interrupted: %w", inv.Tool, ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("failed to start tool %s: %w", inv.Tool, err)
	}
	return out, nil
}

// EnvToSlice converts an environment map to KEY=VALUE form in sorted key
// order, so invocations (and anything fingerprinted from them) stay
// deterministic.
func EnvToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

// ExpandArgs substitutes ${name} placeholders in each argument using vars.
// Unknown placeholders expand to the empty string, matching shell behavior.
func ExpandArgs(args []string, vars map[string]string) []string {
	expanded := make([]string, len(args))
	for i, a := range args {
		expanded[i] = os.Expand(a, func(name string) string {
			return vars[name]
		})
	}
	return expanded
}

// FirstLine returns the first non-empty line of diagnostic text, trimmed.
// Used to pull a failing dependency or advisory name out of raw tool output.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
