//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"syscall"

	ps "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// NewTerminator returns the process-group terminator
func NewTerminator() Terminator {
	return &groupTerminator{signal: unix.Kill}
}

// groupTerminator signals the negated group id, reaching the leader and
// every descendant that stayed in its group.
type groupTerminator struct {
	signal func(pid int, sig unix.Signal) error
}

func (t *groupTerminator) Name() string {
	return "process-group"
}

func (t *groupTerminator) Terminate(pid int) error {
	return t.signal(-pid, unix.SIGTERM)
}

func (t *groupTerminator) Kill(pid int) error {
	return t.signal(-pid, unix.SIGKILL)
}

// killPID sends SIGKILL to a single process
func killPID(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// signalName renders a signal as SIGTERM rather than "terminated"
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}

func IsNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH) || errors.Is(err, os.ErrProcessDone) || errors.Is(err, ps.ErrorProcessNotRunning)
}

func platformTerminator(name string) (Terminator, bool) {
	switch name {
	case "group":
		return NewTerminator(), true
	case "tree":
		return newTreeTerminator(func(p *ps.Process) error {
			return p.TerminateWithContext(context.Background())
		}), true
	}
	return nil, false
}
