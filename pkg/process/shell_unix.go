//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

const defaultShell = "/bin/sh"

// shellCommand runs command through sh -c as the leader of a new process
// group, so -pid addresses the whole subtree.
func shellCommand(shell, command string) *exec.Cmd {
	if shell == "" {
		shell = defaultShell
	}
	cmd := exec.Command(shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

func normalizeEnvKey(key string) string {
	return key
}
