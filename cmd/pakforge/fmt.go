// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt",
	Short: "Rewrite sources with the formatter",
	Long: `Run the formatter in fix mode over the package tree, rewriting
files in place. This is the only pipeline operation that modifies the
source tree; the 'check' command's format check is read-only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return fail(err)
		}
		out, err := p.FixFormat(cmd.Context())
		if err != nil {
			return fail(err)
		}
		if trimmed := strings.TrimSpace(out); trimmed != "" {
			fmt.Fprintln(os.Stdout, trimmed)
		}
		fmt.Fprintln(os.Stdout, SuccessStyle.Render("Formatted"))
		return nil
	},
}
