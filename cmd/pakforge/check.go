// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/pakforge/pakforge/internal/checks"
	"github.com/pakforge/pakforge/internal/issue"

	"github.com/spf13/cobra"
)

var (
	// checkOnly restricts the run to a named subset of checks.
	checkOnly []string
	// checkPartitions overrides the descriptor's test shard count.
	checkPartitions int

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Run the verification checks",
		Long: `Run the verification checks: formatting (read-only), dependency
audit, lint with warnings denied, and the test suite. All requested
checks run even when one fails; the exit status is non-zero if any
check reports a failure.

` + SubtitleStyle.Render("Examples:") + `
  pakforge check
  pakforge check --only lint,test
  pakforge check --only test --partitions 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := checks.CanonicalOrder
			if len(checkOnly) > 0 {
				kinds, err := checks.ParseKinds(checkOnly)
				if err != nil {
					return fail(err)
				}
				requested = kinds
			}

			p, err := openPipeline()
			if err != nil {
				return fail(err)
			}
			if checkPartitions > 0 {
				cfg := p.Config
				cfg.Checks.TestPartitions = checkPartitions
				p.Config = cfg
			}

			results, err := p.Check(cmd.Context(), requested)
			if err != nil {
				return fail(err)
			}

			failures := map[string]string{}
			for _, r := range results {
				if r.Passed {
					fmt.Fprintf(os.Stdout, "%s %s\n", SuccessStyle.Render("PASS"), r.Check)
					continue
				}
				failures[string(r.Check)] = r.Diagnostic
				fmt.Fprintf(os.Stdout, "%s %s\n", ErrorStyle.Render("FAIL"), r.Check)
				if diag := strings.TrimSpace(r.Diagnostic); diag != "" {
					fmt.Fprintln(os.Stdout, SubtitleStyle.Render(indent(diag)))
				}
			}
			if len(failures) > 0 {
				fmt.Fprintf(os.Stderr, "\n%s %s\n", ErrorStyle.Render("failed:"), failureSummary(failures, len(results)))
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
)

func init() {
	checkCmd.Flags().StringSliceVar(&checkOnly, "only", nil, "comma-separated subset of checks (format, audit, lint, test)")
	checkCmd.Flags().IntVar(&checkPartitions, "partitions", 0, "override the test shard count")
}

// failureSummary names the failing checks in deterministic order.
func failureSummary(failures map[string]string, total int) string {
	return fmt.Sprintf("%s (%d of %d)", strings.Join(issue.SortedKeys(failures), ", "), len(failures), total)
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
