//go:build !windows

package process

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	ps "github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
	"github.com/core-tools/hsu-launchpad/pkg/processstate"
)

func launchForTest(t *testing.T, command string) *Launched {
	t.Helper()
	launched, err := Launch(LaunchConfig{Command: command, Directory: t.TempDir()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Kill(-launched.PID, unix.SIGKILL) })
	return launched
}

func waitExit(t *testing.T, launched *Launched) ExitStatus {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, _ = io.ReadAll(launched.Stdout)
		_, _ = io.ReadAll(launched.Stderr)
		done <- launched.Cmd.Wait()
	}()
	select {
	case err := <-done:
		status, ok := ExitStatusFromWait(launched.Cmd, err)
		require.True(t, ok)
		return status
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
		return ExitStatus{}
	}
}

func TestLaunch_ShellWithEnvironment(t *testing.T) {
	dir := t.TempDir()
	launched, err := Launch(LaunchConfig{
		Command:     `echo "$PORT|$NODE_OPTIONS|$(pwd)" && echo oops 1>&2; exit 3`,
		Directory:   dir,
		Environment: map[string]string{"PORT": "4000"},
		Append:      map[string]string{"NODE_OPTIONS": "--inspect"},
	}, logging.NewNopLogger())
	require.NoError(t, err)

	stdout, _ := io.ReadAll(launched.Stdout)
	stderr, _ := io.ReadAll(launched.Stderr)
	status, ok := ExitStatusFromWait(launched.Cmd, launched.Cmd.Wait())

	require.True(t, ok)
	assert.Equal(t, 3, status.Code)
	assert.Contains(t, string(stdout), "4000|")
	assert.Contains(t, string(stdout), "--inspect|")
	assert.Contains(t, string(stderr), "oops")

	pgid, err := unix.Getpgid(launched.PID)
	if err == nil {
		assert.Equal(t, launched.PID, pgid)
	}
}

func TestLaunch_SpawnError(t *testing.T) {
	_, err := Launch(LaunchConfig{Command: "true", Directory: t.TempDir(), Shell: "/nonexistent/shell"}, logging.NewNopLogger())
	assert.True(t, errors.IsSpawnError(err))
}

func TestGroupTerminator_SignalsNegatedGroup(t *testing.T) {
	var calls []string
	terminator := &groupTerminator{signal: func(pid int, sig unix.Signal) error {
		calls = append(calls, fmt.Sprintf("%d:%s", pid, unix.SignalName(sig)))
		return nil
	}}

	require.NoError(t, terminator.Terminate(1234))
	require.NoError(t, terminator.Kill(1234))
	assert.Equal(t, []string{"-1234:SIGTERM", "-1234:SIGKILL"}, calls)
}

func TestGroupTerminator_TerminatesSubtree(t *testing.T) {
	launched := launchForTest(t, "sleep 30 & sleep 30; wait")

	var children []*ps.Process
	require.Eventually(t, func() bool {
		tree, err := ProcessTree(context.Background(), launched.PID)
		if err != nil {
			return false
		}
		children = tree[1:]
		return len(children) >= 2
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, NewTerminator().Terminate(launched.PID))
	status := waitExit(t, launched)
	assert.False(t, status.Success())

	// orphans may linger as zombies when init does not reap them
	for _, child := range children {
		child := child
		assert.Eventually(t, func() bool { return exitedOrZombie(child) }, 5*time.Second, 50*time.Millisecond,
			"pid %d still running", child.Pid)
	}
}

func exitedOrZombie(p *ps.Process) bool {
	running, err := processstate.IsProcessRunning(int(p.Pid))
	if err != nil || !running {
		return true
	}
	states, err := p.StatusWithContext(context.Background())
	if err != nil {
		return true
	}
	for _, state := range states {
		if state == ps.Zombie {
			return true
		}
	}
	return false
}

func TestTreeTerminator_KillsDescendants(t *testing.T) {
	launched := launchForTest(t, "sleep 30 & sleep 30; wait")
	time.Sleep(100 * time.Millisecond)

	tree, err := ProcessTree(context.Background(), launched.PID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tree), 2)

	terminator, err := SelectTerminator("tree")
	require.NoError(t, err)
	assert.Equal(t, "process-tree", terminator.Name())
	require.NoError(t, terminator.Kill(launched.PID))

	status := waitExit(t, launched)
	assert.Equal(t, "SIGKILL", status.Signal)
}

func TestSelectTerminator(t *testing.T) {
	terminator, err := SelectTerminator("")
	require.NoError(t, err)
	assert.Equal(t, "process-group", terminator.Name())

	_, err = SelectTerminator("bogus")
	assert.Error(t, err)
}

func exitOneError(t *testing.T) error {
	err := exec.Command("/bin/sh", "-c", "exit 1").Run()
	require.Error(t, err)
	return err
}

func TestLsofPortKiller_KillsOwners(t *testing.T) {
	var gotArgs []string
	var killed []int
	killer := &lsofPortKiller{
		run: func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			gotArgs = append([]string{name}, args...)
			return []byte("111\n222\n"), nil, nil
		},
		kill: func(pid int) error {
			killed = append(killed, pid)
			if pid == 222 {
				return unix.ESRCH
			}
			return nil
		},
		self:   os.Getpid(),
		logger: logging.NewNopLogger(),
	}

	result, err := killer.KillByPort(context.Background(), 4000)

	require.NoError(t, err)
	assert.Equal(t, []string{"lsof", "-ti", "tcp:4000"}, gotArgs)
	assert.Equal(t, []int{111, 222}, killed)
	assert.Equal(t, []int{111, 222}, result.PIDs)
	assert.Equal(t, []int{111}, result.Killed)
}

func TestLsofPortKiller_NothingBound(t *testing.T) {
	exitErr := exitOneError(t)
	killer := &lsofPortKiller{
		run: func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return nil, nil, exitErr
		},
		kill:   func(pid int) error { t.Fatal("unexpected kill"); return nil },
		logger: logging.NewNopLogger(),
	}

	_, err := killer.KillByPort(context.Background(), 4000)
	assert.True(t, errors.IsLookupMissError(err))
}

func TestLsofPortKiller_Errors(t *testing.T) {
	failure := fmt.Errorf("exit status 2")
	tests := []struct {
		name      string
		stderr    string
		kill      func(pid int) error
		stdout    string
		runErr    error
		checkType func(error) bool
	}{
		{name: "benign stderr", stderr: "kill: No such process", runErr: failure, checkType: errors.IsLookupMissError},
		{name: "other stderr", stderr: "lsof: unknown option", runErr: failure, checkType: errors.IsIOError},
		{name: "garbage output", stdout: "abc", checkType: errors.IsIOError},
		{name: "kill denied is benign", stdout: "333", kill: func(int) error { return unix.EPERM }},
		{name: "kill failure surfaces", stdout: "333", kill: func(int) error { return unix.EINVAL }, checkType: errors.IsTerminationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kill := tt.kill
			if kill == nil {
				kill = func(int) error { return nil }
			}
			killer := &lsofPortKiller{
				run: func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
					return []byte(tt.stdout), []byte(tt.stderr), tt.runErr
				},
				kill:   kill,
				logger: logging.NewNopLogger(),
			}
			_, err := killer.KillByPort(context.Background(), 5173)
			if tt.checkType == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, tt.checkType(err), "unexpected error: %v", err)
			}
		})
	}
}

func TestNativePortKiller_SkipsSelf(t *testing.T) {
	var killed []int
	killer := &nativePortKiller{
		lookup: func(ctx context.Context, port int) ([]int, error) { return []int{os.Getpid(), 4242}, nil },
		kill:   func(pid int) error { killed = append(killed, pid); return nil },
		self:   os.Getpid(),
		logger: logging.NewNopLogger(),
	}

	result, err := killer.KillByPort(context.Background(), 8080)
	require.NoError(t, err)
	assert.Equal(t, []int{4242}, killed)
	assert.Equal(t, []int{4242}, result.Killed)
}

func TestNativePortKiller_OnlySelfIsMiss(t *testing.T) {
	killer := &nativePortKiller{
		lookup: func(ctx context.Context, port int) ([]int, error) { return []int{os.Getpid()}, nil },
		kill:   func(pid int) error { t.Fatal("must not kill itself"); return nil },
		self:   os.Getpid(),
		logger: logging.NewNopLogger(),
	}

	_, err := killer.KillByPort(context.Background(), 8080)
	assert.True(t, errors.IsLookupMissError(err))
}

func TestListenerPIDs_FindsOwnListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	pids, err := ListenerPIDs(context.Background(), port)
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
}

func TestNewPortKiller(t *testing.T) {
	killer, err := NewPortKiller(PortLookupNative, logging.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &nativePortKiller{}, killer)

	_, err = NewPortKiller("netstat", logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	killer, err = NewPortKiller(PortLookupAuto, logging.NewNopLogger())
	require.NoError(t, err)
	assert.NotNil(t, killer)
}

func TestSampleUsage_CoversTree(t *testing.T) {
	launched := launchForTest(t, "sleep 30 & sleep 30; wait")

	require.Eventually(t, func() bool {
		usage, err := SampleUsage(context.Background(), launched.PID)
		return err == nil && usage.Processes >= 3
	}, 5*time.Second, 50*time.Millisecond)

	usage, err := SampleUsage(context.Background(), launched.PID)
	require.NoError(t, err)
	assert.Positive(t, usage.MemoryRSS)
	assert.GreaterOrEqual(t, usage.CPUPercent, 0.0)
}

func TestSampleUsage_UnknownPID(t *testing.T) {
	launched := launchForTest(t, "exit 0")
	waitExit(t, launched)

	_, err := SampleUsage(context.Background(), launched.PID)
	assert.Error(t, err)
}
