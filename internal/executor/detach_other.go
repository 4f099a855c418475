//go:build !unix

// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import "os/exec"

func detach(cmd *exec.Cmd) {}
