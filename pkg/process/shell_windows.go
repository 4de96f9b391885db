//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

func shellCommand(shell, command string) *exec.Cmd {
	if shell == "" {
		shell = os.Getenv("ComSpec")
	}
	if shell == "" {
		shell = "cmd.exe"
	}
	cmd := exec.Command(shell)
	// cmd.exe does its own quote parsing, so the command line is passed verbatim
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       fmt.Sprintf(`%s /d /s /c "%s"`, syscall.EscapeArg(shell), command),
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
	return cmd
}

// Windows environment names are case-insensitive
func normalizeEnvKey(key string) string {
	return strings.ToUpper(key)
}
