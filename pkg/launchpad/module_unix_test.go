//go:build !windows

package launchpad

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/core-tools/hsu-launchpad/pkg/config"
	"github.com/core-tools/hsu-launchpad/pkg/control"
	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
	"github.com/core-tools/hsu-launchpad/pkg/processfile"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Data.Directory = t.TempDir()
	cfg.Output.LogDirectory = t.TempDir()
	cfg.Supervisor.GracePeriod = 500 * time.Millisecond
	cfg.Supervisor.StartAllDelay = 10 * time.Millisecond
	cfg.Supervisor.PortLookup = "native"
	return cfg
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) add(ev domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) has(systemID string, match func(domain.Event) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.SystemID == systemID && match(ev) {
			return true
		}
	}
	return false
}

func TestDaemon_EndToEnd(t *testing.T) {
	cfg := testConfig(t)

	var server *Server
	app := NewApp(cfg, zaptest.NewLogger(t), fx.Populate(&server))
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))

	paths := processfile.NewProcessFileManager(processfile.ProcessFileConfig{BaseDirectory: cfg.Data.Directory}, nil)
	address, err := paths.ReadAddressFile(DaemonName)
	require.NoError(t, err)
	assert.Equal(t, server.Address(), address)

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := control.NewGRPCClientGateway(conn, logging.NewNopLogger())

	events := &eventLog{}
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go client.Events(streamCtx, events.add)

	application, err := client.AddApplication(ctx, "Shop", t.TempDir())
	require.NoError(t, err)
	once, err := client.AddSystem(ctx, application.ID, domain.System{
		Name:          "once",
		Directory:     application.Directory,
		StartCommand:  "echo hello-launchpad",
		DeployCommand: "exit 0",
	})
	require.NoError(t, err)
	long, err := client.AddSystem(ctx, application.ID, domain.System{
		Name:         "long",
		Directory:    application.Directory,
		StartCommand: "sleep 30",
	})
	require.NoError(t, err)

	// the stream attaches asynchronously; repeat until an event arrives
	require.Eventually(t, func() bool {
		_ = client.Stop(ctx, "probe")
		return events.has("probe", func(ev domain.Event) bool { return ev.Type == domain.EventStopped })
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, client.Start(ctx, application.ID, once.ID))
	require.Eventually(t, func() bool {
		return events.has(once.ID, func(ev domain.Event) bool { return ev.Type == domain.EventStopped })
	}, 10*time.Second, 20*time.Millisecond)
	assert.True(t, events.has(once.ID, func(ev domain.Event) bool {
		return ev.Type == domain.EventOutput && ev.Classification == domain.ClassStdout && ev.Data == "hello-launchpad\n"
	}))

	require.NoError(t, client.Deploy(ctx, application.ID, once.ID))
	require.Eventually(t, func() bool {
		return events.has(once.ID, func(ev domain.Event) bool { return ev.Type == domain.EventDeployed && ev.Success })
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, client.Start(ctx, application.ID, long.ID))
	status, err := client.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, long.ID, status[0].SystemID)

	require.Eventually(t, func() bool {
		runs, err := client.History(ctx, once.ID, 10)
		return err == nil && len(runs) == 2 && runs[0].Outcome == domain.RunOutcomeExited
	}, 10*time.Second, 50*time.Millisecond)

	// deleting the application discards the running process silently
	require.NoError(t, client.DeleteApplication(ctx, application.ID))
	status, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)

	stopStream()
	require.NoError(t, app.Stop(ctx))

	_, err = paths.ReadAddressFile(DaemonName)
	assert.Error(t, err)
}
