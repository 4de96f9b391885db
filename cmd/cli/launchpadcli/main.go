package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/core-tools/hsu-launchpad/pkg/config"
	"github.com/core-tools/hsu-launchpad/pkg/control"
	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/launchpad"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
	"github.com/core-tools/hsu-launchpad/pkg/processfile"
)

type globalOptions struct {
	Address string        `long:"address" short:"a" description:"daemon address; read from the daemon address file when empty"`
	DataDir string        `long:"data-dir" description:"daemon data directory used to find the address file"`
	Timeout time.Duration `long:"timeout" default:"30s" description:"timeout of a single request"`
	Verbose bool          `long:"verbose" short:"v" description:"log client diagnostics"`
}

var options globalOptions

var parser = flags.NewParser(&options, flags.HelpFlag|flags.PassDoubleDash)

func main() {
	registerCommands(parser)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func registerCommands(p *flags.Parser) {
	add := func(name, short string, data interface{}) {
		if _, err := p.AddCommand(name, short, "", data); err != nil {
			panic(err)
		}
	}
	add("list", "List applications and their systems", &listCommand{})
	add("add-app", "Add an application", &addAppCommand{})
	add("update-app", "Rename or move an application", &updateAppCommand{})
	add("rm-app", "Delete an application and stop its processes", &rmAppCommand{})
	add("add-system", "Add a system to an application", &addSystemCommand{})
	add("update-system", "Change a system", &updateSystemCommand{})
	add("rm-system", "Delete a system and stop its process", &rmSystemCommand{})
	add("start", "Start a system", &startCommand{})
	add("stop", "Gracefully stop a system", &stopCommand{})
	add("force-stop", "Kill a system and whatever listens on its port", &forceStopCommand{})
	add("deploy", "Run the deploy command of a system", &deployCommand{})
	add("start-all", "Start every system of an application", &startAllCommand{})
	add("status", "List running systems", &statusCommand{})
	add("history", "List recent runs of a system", &historyCommand{})
	add("watch", "Stream output and lifecycle events", &watchCommand{})
}

// session is one connection to the daemon
type session struct {
	conn   *grpc.ClientConn
	client domain.Contract
	log    *zap.Logger
}

func connect() (*session, error) {
	level := "warn"
	if options.Verbose {
		level = "debug"
	}
	log, err := logging.NewZapLogger(logging.ZapConfig{Level: level, Format: "console"})
	if err != nil {
		return nil, err
	}

	address, err := resolveAddress(log)
	if err != nil {
		return nil, err
	}
	log.Debug("connecting", zap.String("address", address))

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return &session{
		conn:   conn,
		client: control.NewGRPCClientGateway(conn, logging.FromZap(log, "client: ")),
		log:    log,
	}, nil
}

// resolveAddress prefers the flag, then the address file the daemon wrote,
// then the configured default
func resolveAddress(log *zap.Logger) (string, error) {
	if options.Address != "" {
		return options.Address, nil
	}

	paths := processfile.NewProcessFileManager(processfile.ProcessFileConfig{BaseDirectory: options.DataDir}, logging.FromZap(log, "processfile: "))
	if address, err := paths.ReadAddressFile(launchpad.DaemonName); err == nil {
		return address, nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return "", err
	}
	return cfg.Server.Address, nil
}

func (s *session) close() {
	s.conn.Close()
	s.log.Sync()
}

func (s *session) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), options.Timeout)
}

// withSession runs fn against a fresh connection
func withSession(fn func(s *session) error) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}
