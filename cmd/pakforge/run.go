// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [-- args...]",
	Short: "Build the package, then execute it",
	Long: `Build the package bundle and execute the resulting binary,
forwarding everything after -- as the binary's arguments. The binary's
exit status becomes pakforge's exit status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return fail(err)
		}
		binPath, err := p.Install(cmd.Context())
		if err != nil {
			return fail(err)
		}

		bin := exec.CommandContext(cmd.Context(), binPath, args...)
		bin.Stdin = os.Stdin
		bin.Stdout = os.Stdout
		bin.Stderr = os.Stderr
		if err := bin.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return &ExitError{Code: exitErr.ExitCode()}
			}
			return fail(err)
		}
		return nil
	},
}
