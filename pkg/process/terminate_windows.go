//go:build windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	ps "github.com/shirou/gopsutil/v3/process"
)

const taskkillTimeout = 5 * time.Second

// NewTerminator returns the tree-enumeration terminator
func NewTerminator() Terminator {
	return newTreeTerminator(taskkillMember)
}

// taskkillMember asks a single process to close without forcing it
func taskkillMember(p *ps.Process) error {
	ctx, cancel := context.WithTimeout(context.Background(), taskkillTimeout)
	defer cancel()
	return exec.CommandContext(ctx, "taskkill", "/PID", strconv.Itoa(int(p.Pid))).Run()
}

func killPID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func signalName(sig syscall.Signal) string {
	return sig.String()
}

func IsNoSuchProcess(err error) bool {
	return errors.Is(err, ps.ErrorProcessNotRunning) || errors.Is(err, os.ErrProcessDone)
}

func platformTerminator(name string) (Terminator, bool) {
	if name == "tree" {
		return NewTerminator(), true
	}
	return nil, false
}
