// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pakforge/pakforge/internal/config"
	"github.com/pakforge/pakforge/internal/manpage"
	"github.com/pakforge/pakforge/internal/srcview"
	"github.com/pakforge/pakforge/internal/toolexec"
)

type (
	// StepEnv is the environment a post-install step runs in. Steps only
	// read the view and write inside OutDir; they never touch the source
	// tree or the artifact cache.
	StepEnv struct {
		// View is the package-mode source view.
		View *srcview.View
		// OutDir is the scoped temporary output area shared by all steps
		// of one build. Discarded wholesale by the caller on failure, so
		// steps need no rollback.
		OutDir string
		// Version is the caller-supplied version string substituted into
		// templated steps and manual pages.
		Version string
		// Config is the frozen build configuration.
		Config config.Resolved
		// Invoker runs templated external-tool steps.
		Invoker toolexec.Invoker
	}

	// Step is one named post-install operation. Steps run in declared
	// order and fail independently; attribution stays precise because each
	// failure names its step.
	Step interface {
		Name() string
		Run(ctx context.Context, env *StepEnv) error
	}

	// ManPagesStep renders every markdown manual-page source in the view
	// into roff under OutDir/man.
	ManPagesStep struct{}

	// CompletionsStep installs the completion script for each declared
	// shell under OutDir/completions/<shell>.
	CompletionsStep struct{}

	// CommandStep is a templated external-tool invocation from the
	// descriptor's steps list.
	CommandStep struct {
		StepName string
		Argv     []string
	}

	// ScriptStep is a shell-script step from the descriptor's steps list,
	// executed by the embedded interpreter.
	ScriptStep struct {
		StepName string
		Script   string
	}
)

// DefaultSteps returns the built-in post-install sequence: manual pages,
// then shell completions.
func DefaultSteps() []Step {
	return []Step{ManPagesStep{}, CompletionsStep{}}
}

// StepsFromConfig maps descriptor step declarations onto Step values.
// Validation (name uniqueness, run/argv exclusivity, script syntax) already
// happened at descriptor load time.
func StepsFromConfig(steps []config.StepConfig) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Run != "" {
			out = append(out, ScriptStep{StepName: s.Name, Script: s.Run})
		} else {
			out = append(out, CommandStep{StepName: s.Name, Argv: s.Argv})
		}
	}
	return out
}

// templateVars are the placeholders available to templated steps.
func (env *StepEnv) templateVars() map[string]string {
	return map[string]string{
		"version": env.Version,
		"outdir":  env.OutDir,
		"name":    env.Config.Package.Name,
		"root":    env.View.Root,
	}
}

func (ManPagesStep) Name() string { return "manpages" }

func (ManPagesStep) Run(_ context.Context, env *StepEnv) error {
	manDir := filepath.Join(env.OutDir, "man")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return err
	}
	for _, entry := range env.View.Entries {
		if !strings.HasPrefix(entry.Path, env.Config.ManDir+"/") || !strings.HasSuffix(entry.Path, ".md") {
			continue
		}
		page, err := manpage.Generate(entry.Content, env.Version)
		if err != nil {
			return fmt.Errorf("manual page %s: %w", entry.Path, err)
		}
		dst := filepath.Join(manDir, page.Filename())
		if err := os.WriteFile(dst, page.Roff, 0o644); err != nil {
			return fmt.Errorf("manual page %s: %w", entry.Path, err)
		}
	}
	return nil
}

func (CompletionsStep) Name() string { return "completions" }

// completionFilename returns the conventional install filename for a shell.
func completionFilename(shell, pkg string) string {
	switch shell {
	case "zsh":
		return "_" + pkg
	case "fish":
		return pkg + ".fish"
	case "nushell":
		return pkg + ".nu"
	default:
		return pkg
	}
}

func (CompletionsStep) Run(_ context.Context, env *StepEnv) error {
	for _, shell := range env.Config.Shells {
		prefix := path.Join(env.Config.CompletionsDir, shell) + "/"
		installed := false
		for _, entry := range env.View.Entries {
			if !strings.HasPrefix(entry.Path, prefix) {
				continue
			}
			dstDir := filepath.Join(env.OutDir, "completions", shell)
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return err
			}
			dst := filepath.Join(dstDir, completionFilename(shell, env.Config.Package.Name))
			if err := os.WriteFile(dst, entry.Content, 0o644); err != nil {
				return err
			}
			installed = true
		}
		if !installed {
			return fmt.Errorf("no completion script for declared shell %q under %s", shell, prefix)
		}
	}
	return nil
}

func (s CommandStep) Name() string { return s.StepName }

func (s CommandStep) Run(ctx context.Context, env *StepEnv) error {
	argv := toolexec.ExpandArgs(s.Argv, env.templateVars())
	out, err := env.Invoker.Run(ctx, toolexec.Invocation{
		Tool: argv[0],
		Args: argv[1:],
		Dir:  env.View.Root,
	})
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("tool %s exited with status %d: %s", argv[0], out.ExitCode, out.Combined())
	}
	return nil
}

func (s ScriptStep) Name() string { return s.StepName }

func (s ScriptStep) Run(ctx context.Context, env *StepEnv) error {
	var stdout, stderr bytes.Buffer
	scriptEnv := map[string]string{
		"VERSION": env.Version,
		"OUTDIR":  env.OutDir,
		"NAME":    env.Config.Package.Name,
	}
	if err := toolexec.RunScript(ctx, s.Script, env.View.Root, scriptEnv, &stdout, &stderr); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
