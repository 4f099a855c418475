// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/flowd-org/simctl/cmd"

func main() {
	cmd.Execute()
}
