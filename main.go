// SPDX-License-Identifier: MPL-2.0

// pakforge builds and checks exactly one command-line package.
package main

import cmd "github.com/pakforge/pakforge/cmd/pakforge"

func main() {
	cmd.Execute()
}
