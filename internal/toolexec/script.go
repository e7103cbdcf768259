// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ValidateScript parses a shell-script post-install step without running
// it, surfacing syntax errors at configuration time instead of mid-build.
func ValidateScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("script has no content to execute")
	}
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), "step"); err != nil {
		return fmt.Errorf("script syntax error: %w", err)
	}
	return nil
}

// RunScript executes a shell-script step in the embedded interpreter. The
// script runs in dir with env layered over the process environment; stdout
// and stderr go to the provided writers. A non-zero script exit is returned
// as an error carrying the exit status.
func RunScript(ctx context.Context, script, dir string, env map[string]string, stdout, stderr io.Writer) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "step")
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	environ := append(os.Environ(), EnvToSlice(env)...)
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(environ...)),
		interp.StdIO(strings.NewReader(""), stdout, stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create script interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return fmt.Errorf("script exited with status %d", status)
		}
		return err
	}
	return nil
}
