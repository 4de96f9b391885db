package launchpad

import (
	"context"
	"net"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/core-tools/hsu-launchpad/pkg/config"
	"github.com/core-tools/hsu-launchpad/pkg/control"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/history"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
	"github.com/core-tools/hsu-launchpad/pkg/process"
	"github.com/core-tools/hsu-launchpad/pkg/processfile"
	"github.com/core-tools/hsu-launchpad/pkg/registry"
	"github.com/core-tools/hsu-launchpad/pkg/sink"
	"github.com/core-tools/hsu-launchpad/pkg/supervisor"
)

// DaemonName names the PID and address files of the daemon
const DaemonName = "launchpadsrv"

// Module provides the daemon: registry, history, sinks, supervisor and the
// gRPC control server.
func Module(cfg *config.Config) fx.Option {
	return fx.Module(
		"launchpad",
		fx.Supply(cfg),
		fx.Provide(
			newPaths,
			newRegistry,
			newHistory,
			newBroadcaster,
			newSink,
			newSupervisor,
			newHandler,
			newServer,
		),
		// the server pulls in everything else
		fx.Invoke(func(*Server) {}),
	)
}

func moduleLogger(log *zap.Logger, module string) logging.Logger {
	return logging.FromZap(log, module+": ")
}

func newPaths(cfg *config.Config, log *zap.Logger) (*processfile.ProcessFileManager, error) {
	serviceContext, err := processfile.ParseServiceContext(cfg.Data.Context)
	if err != nil {
		return nil, err
	}
	return processfile.NewProcessFileManager(processfile.ProcessFileConfig{
		BaseDirectory:  cfg.Data.Directory,
		ServiceContext: serviceContext,
	}, moduleLogger(log, "processfile")), nil
}

func newRegistry(lc fx.Lifecycle, cfg *config.Config, paths *processfile.ProcessFileManager, log *zap.Logger) (*registry.Store, error) {
	path := cfg.Registry.Path
	if path == "" {
		path = paths.RegistryPath()
	}
	if err := processfile.EnsureDirectory(path); err != nil {
		return nil, err
	}

	logger := moduleLogger(log, "registry")
	store, err := registry.NewStore(path, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			apps, err := store.Load(ctx)
			if err != nil {
				return err
			}
			logger.Infof("Registry loaded, path: %s, applications: %d", path, len(apps))
			return nil
		},
	})
	return store, nil
}

// newHistory returns nil when run history is disabled
func newHistory(lc fx.Lifecycle, cfg *config.Config, paths *processfile.ProcessFileManager, log *zap.Logger) (*history.Store, error) {
	if !cfg.History.Enabled {
		log.Info("run history disabled")
		return nil, nil
	}
	path := cfg.History.Path
	if path == "" {
		path = paths.HistoryPath()
	}

	store, err := history.Open(context.Background(), path)
	if err != nil {
		return nil, err
	}
	log.Info("run history opened", zap.String("path", path))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newBroadcaster(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *sink.Broadcaster {
	broadcaster := sink.NewBroadcaster(cfg.Output.SubscriberBuffer, moduleLogger(log, "events"))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			broadcaster.Close()
			return nil
		},
	})
	return broadcaster
}

// newSink mirrors output to the log, to per-system files when configured and,
// rendered, to event subscribers
func newSink(lc fx.Lifecycle, cfg *config.Config, broadcaster *sink.Broadcaster, log *zap.Logger) (sink.Sink, error) {
	sinks := []sink.Sink{sink.NewLogSink(moduleLogger(log, "output"))}

	if cfg.Output.LogDirectory != "" {
		fileSink, err := sink.NewFileSink(cfg.Output.LogDirectory, moduleLogger(log, "output"))
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return fileSink.Close()
			},
		})
		sinks = append(sinks, fileSink)
	}

	sinks = append(sinks, sink.WithRender(cfg.Output.Render, broadcaster))
	return sink.Tee(sinks...), nil
}

func newSupervisor(lc fx.Lifecycle, cfg *config.Config, store *registry.Store, out sink.Sink, runs *history.Store, log *zap.Logger) (*supervisor.Supervisor, error) {
	logger := moduleLogger(log, "supervisor")

	terminator, err := process.SelectTerminator(cfg.Supervisor.Terminator)
	if err != nil {
		return nil, err
	}
	portKiller, err := process.NewPortKiller(cfg.Supervisor.PortLookup, logger)
	if err != nil {
		return nil, err
	}

	deps := supervisor.Dependencies{
		Resolver:   store,
		Sink:       out,
		Terminator: terminator,
		PortKiller: portKiller,
		Logger:     logger,
	}
	if runs != nil {
		deps.Recorder = runs
	}

	sup, err := supervisor.New(supervisor.Options{
		GracePeriod:     cfg.Supervisor.GracePeriod,
		StartAllDelay:   cfg.Supervisor.StartAllDelay,
		PortKillTimeout: cfg.Supervisor.PortKillTimeout,
		Shell:           cfg.Supervisor.Shell,
		DebugEnvVar:     cfg.Supervisor.DebugEnvVar,
		DebugFlag:       cfg.Supervisor.DebugFlag,
	}, deps)
	if err != nil {
		return nil, err
	}
	logger.Infof("Supervisor ready, terminator: %s, port lookup: %s", terminator.Name(), cfg.Supervisor.PortLookup)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sup.Shutdown(ctx)
		},
	})
	return sup, nil
}

func newHandler(store *registry.Store, sup *supervisor.Supervisor, runs *history.Store, broadcaster *sink.Broadcaster, log *zap.Logger) *Handler {
	var runHistory RunHistory
	if runs != nil {
		runHistory = runs
	}
	return NewHandler(store, sup, runHistory, broadcaster, moduleLogger(log, "launchpad"))
}

// Server is the gRPC control endpoint of the daemon
type Server struct {
	grpcServer *grpc.Server
	handler    *Handler
	paths      *processfile.ProcessFileManager
	address    string
	listener   net.Listener
	logger     logging.Logger
}

func newServer(lc fx.Lifecycle, cfg *config.Config, handler *Handler, paths *processfile.ProcessFileManager, log *zap.Logger) *Server {
	logger := moduleLogger(log, "control")

	grpcServer := grpc.NewServer()
	control.RegisterGRPCServerHandler(grpcServer, handler, logger)

	server := &Server{
		grpcServer: grpcServer,
		handler:    handler,
		paths:      paths,
		address:    cfg.Server.Address,
		logger:     logger,
	}
	lc.Append(fx.Hook{
		OnStart: server.start,
		OnStop:  server.stop,
	})
	return server
}

// Address is the bound listen address once started
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

func (s *Server) start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return errors.NewNetworkError("failed to listen", err).WithContext("address", s.address)
	}
	s.listener = listener

	if err := s.paths.WritePIDFile(DaemonName, os.Getpid()); err != nil {
		s.logger.Warnf("PID file not written: %v", err)
	}
	if err := s.paths.WriteAddressFile(DaemonName, s.Address()); err != nil {
		s.logger.Warnf("Address file not written: %v", err)
	}

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.logger.Errorf("gRPC server stopped: %v", err)
		}
	}()
	s.logger.Infof("Listening on %s", s.Address())
	return nil
}

func (s *Server) stop(ctx context.Context) error {
	s.handler.Close()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	if err := s.paths.RemoveDaemonFiles(DaemonName); err != nil {
		s.logger.Warnf("Daemon files not removed: %v", err)
	}
	s.logger.Infof("Control server stopped")
	return nil
}
