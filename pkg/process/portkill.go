package process

import (
	"context"
	"os"
	"sort"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

const (
	PortLookupAuto   = "auto"
	PortLookupLsof   = "lsof"
	PortLookupNative = "native"
)

// PortKillResult lists the owners found on a port and those actually killed
type PortKillResult struct {
	PIDs   []int
	Killed []int
}

// PortKiller finds the processes bound to a TCP port and kills them
type PortKiller interface {
	KillByPort(ctx context.Context, port int) (PortKillResult, error)
}

// NewPortKiller resolves the lookup mode to an implementation
func NewPortKiller(mode string, logger logging.Logger) (PortKiller, error) {
	switch mode {
	case "", PortLookupAuto:
		return newAutoPortKiller(logger), nil
	case PortLookupNative:
		return NewNativePortKiller(logger), nil
	case PortLookupLsof:
		return newLsofPortKiller(logger)
	}
	return nil, errors.NewValidationError("unsupported port lookup: "+mode, nil)
}

// nativePortKiller enumerates socket owners through the OS connection table
type nativePortKiller struct {
	lookup func(ctx context.Context, port int) ([]int, error)
	kill   func(pid int) error
	self   int
	logger logging.Logger
}

func NewNativePortKiller(logger logging.Logger) PortKiller {
	return &nativePortKiller{
		lookup: ListenerPIDs,
		kill:   killPID,
		self:   os.Getpid(),
		logger: logger,
	}
}

func (k *nativePortKiller) KillByPort(ctx context.Context, port int) (PortKillResult, error) {
	pids, err := k.lookup(ctx, port)
	if err != nil {
		return PortKillResult{}, errors.NewIOError("failed to enumerate socket owners", err).WithContext("port", port)
	}
	return killOwners(port, pids, k.self, k.kill, k.logger)
}

// ListenerPIDs returns the pids owning a listening TCP socket on port
func ListenerPIDs(ctx context.Context, port int) ([]int, error) {
	connections, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	unique := make(map[int]bool)
	for _, c := range connections {
		if c.Laddr.Port != uint32(port) || c.Status != "LISTEN" || c.Pid <= 0 {
			continue
		}
		unique[int(c.Pid)] = true
	}

	pids := make([]int, 0, len(unique))
	for pid := range unique {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

// killOwners kills every owner except self. No owners is a lookup miss;
// vanished or foreign processes are benign.
func killOwners(port int, pids []int, self int, kill func(pid int) error, logger logging.Logger) (PortKillResult, error) {
	result := PortKillResult{}
	for _, pid := range pids {
		if pid != self {
			result.PIDs = append(result.PIDs, pid)
		}
	}
	if len(result.PIDs) == 0 {
		return result, errors.NewLookupMissError("no process bound to port", nil).WithContext("port", port)
	}

	collection := errors.NewErrorCollection()
	for _, pid := range result.PIDs {
		err := kill(pid)
		switch {
		case err == nil:
			result.Killed = append(result.Killed, pid)
			logger.Infof("Killed PID %d bound to port %d", pid, port)
		case IsBenignKillError(err):
			logger.Debugf("Nothing to kill for PID %d on port %d: %v", pid, port, err)
		default:
			collection.Add(errors.NewTerminationError("failed to kill port owner", err).WithContext("pid", pid).WithContext("port", port))
		}
	}
	return result, collection.ToError()
}
