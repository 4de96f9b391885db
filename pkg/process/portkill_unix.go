//go:build !windows

package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

// CommandRunner runs an external utility and returns its output streams
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// lsofPortKiller asks lsof for the owners of tcp:PORT and SIGKILLs them
type lsofPortKiller struct {
	run    CommandRunner
	kill   func(pid int) error
	self   int
	logger logging.Logger
}

func newLsofPortKiller(logger logging.Logger) (PortKiller, error) {
	if _, err := exec.LookPath("lsof"); err != nil {
		return nil, errors.NewValidationError("lsof is not available", err)
	}
	return &lsofPortKiller{
		run:    runCommand,
		kill:   killPID,
		self:   os.Getpid(),
		logger: logger,
	}, nil
}

func newAutoPortKiller(logger logging.Logger) PortKiller {
	if k, err := newLsofPortKiller(logger); err == nil {
		return k
	}
	logger.Debugf("lsof not found, using native port lookup")
	return NewNativePortKiller(logger)
}

func (k *lsofPortKiller) KillByPort(ctx context.Context, port int) (PortKillResult, error) {
	stdout, stderr, err := k.run(ctx, "lsof", "-ti", fmt.Sprintf("tcp:%d", port))
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		// lsof exits 1 when nothing matched
		if !(ok && exitErr.ExitCode() == 1 && len(bytes.TrimSpace(stdout)) == 0) {
			msg := strings.TrimSpace(string(stderr))
			if isBenignLsofMessage(msg) {
				return PortKillResult{}, errors.NewLookupMissError("nothing to kill: "+msg, err).WithContext("port", port)
			}
			return PortKillResult{}, errors.NewIOError("lsof failed: "+msg, err).WithContext("port", port)
		}
	}

	pids, err := parsePIDList(stdout)
	if err != nil {
		return PortKillResult{}, errors.NewIOError("unexpected lsof output", err).WithContext("port", port)
	}
	return killOwners(port, pids, k.self, k.kill, k.logger)
}

func isBenignLsofMessage(msg string) bool {
	return strings.Contains(msg, "No such process") || strings.Contains(msg, "Operation not permitted") ||
		strings.Contains(msg, "Permission denied")
}

func parsePIDList(out []byte) ([]int, error) {
	var pids []int
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q: %w", field, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
