package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	domainerrors "github.com/core-tools/hsu-launchpad/pkg/errors"
)

// ExitStatus is the terminal state of a child
type ExitStatus struct {
	Code   int
	Signal string
}

func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

// Err is nil for a clean exit and a RuntimeExitError otherwise
func (s ExitStatus) Err() error {
	if s.Success() {
		return nil
	}
	message := fmt.Sprintf("exited with code %d", s.Code)
	if s.Signal != "" {
		message = fmt.Sprintf("terminated by %s", s.Signal)
	}
	return domainerrors.NewRuntimeExitError(message, nil).
		WithContext("code", s.Code).
		WithContext("signal", s.Signal)
}

// ExitStatusFromState reads code and signal from a finished process
func ExitStatusFromState(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	status := ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = signalName(ws.Signal())
	}
	return status
}

// ExitStatusFromWait interprets the result of exec.Cmd.Wait. ok is false when
// err is not an exit report but an OS-level failure.
func ExitStatusFromWait(cmd *exec.Cmd, err error) (ExitStatus, bool) {
	if err == nil {
		return ExitStatusFromState(cmd.ProcessState), true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitStatusFromState(exitErr.ProcessState), true
	}
	return ExitStatus{Code: -1}, false
}
