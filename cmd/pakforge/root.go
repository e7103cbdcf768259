// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for pakforge.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pakforge/pakforge/internal/issue"
	"github.com/pakforge/pakforge/internal/pipeline"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging and full error chains
	verbose bool
	// descriptorFile allows pointing at a descriptor outside the cwd
	descriptorFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "pakforge",
		Short: "A reproducible build and check pipeline for one package",
		Long: TitleStyle.Render("pakforge") + SubtitleStyle.Render(" - a reproducible build and check pipeline") + `

pakforge builds exactly one command-line package: it pins the compiler
toolchain from a version descriptor, compiles third-party dependencies
once per fingerprint into a content-addressed artifact store, and
produces a bundle of binary, manual pages, and shell completions.

The package is described by a '` + "pakforge.cue" + `' descriptor in CUE format;
every build invocation resolves it afresh, so two invocations over an
unchanged tree produce the same bundle.

` + SubtitleStyle.Render("Examples:") + `
  pakforge build            Build the package bundle
  pakforge run -- --help    Build, then execute the binary
  pakforge check            Run format, audit, lint, and test checks
  pakforge check --only lint,test
  pakforge fmt              Rewrite sources with the formatter`,
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&descriptorFile, "descriptor", "d", "", "pipeline descriptor (default is ./pakforge.cue)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(newCompletionCommand())
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initLogging routes slog through the styled terminal logger. Debug level
// only in verbose mode; the pipeline packages log key progress at info.
func initLogging() {
	level := charmlog.WarnLevel
	if verbose {
		level = charmlog.DebugLevel
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:  level,
		Prefix: "pakforge",
	})
	slog.SetDefault(slog.New(logger))
}

// openPipeline builds the per-invocation pipeline from the --descriptor
// flag (or the default descriptor in the working directory).
func openPipeline() (*pipeline.Pipeline, error) {
	return pipeline.Open(descriptorFile)
}

// formatErrorForDisplay formats an error for user display. Actionable
// errors render their suggestions as styled markdown; in verbose mode the
// full error chain is shown beneath.
func formatErrorForDisplay(err error, verboseMode bool) string {
	if ae, ok := issue.AsActionable(err); ok {
		out := issue.Render(ae.Markdown())
		if verboseMode && ae.Cause != nil {
			out += "\n" + SubtitleStyle.Render(fmt.Sprintf("caused by: %v", ae.Cause))
		}
		return out
	}
	return err.Error()
}

// fail prints err styled and signals exit status 1 to Execute.
func fail(err error) error {
	fmt.Fprintf(os.Stderr, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))
	return &ExitError{Code: 1}
}
