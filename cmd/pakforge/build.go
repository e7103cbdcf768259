// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the package bundle",
	Long: `Build the package bundle: resolve the pinned toolchain, compile
dependencies into the artifact store (reusing them when the manifest,
lockfile, toolchain, and platform inputs are unchanged), compile the
package, generate manual pages and shell completions, and install the
bundle under the package's state directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return fail(err)
		}
		binPath, err := p.Install(cmd.Context())
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(os.Stdout, "%s %s\n",
			SuccessStyle.Render("Built"),
			PathStyle.Render(binPath))
		return nil
	},
}
