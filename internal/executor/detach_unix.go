//go:build unix

// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it outlives the CLI.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
