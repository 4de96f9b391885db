package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/core-tools/hsu-launchpad/pkg/config"
	"github.com/core-tools/hsu-launchpad/pkg/launchpad"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

type flagOptions struct {
	Config   string `long:"config" short:"c" description:"path to a YAML or JSON configuration file"`
	Address  string `long:"address" description:"control server listen address, overrides server.address"`
	DataDir  string `long:"data-dir" description:"directory for the registry, history and daemon files"`
	LogLevel string `long:"log-level" description:"debug, info, warn or error"`
}

func main() {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.Address != "" {
		cfg.Server.Address = opts.Address
	}
	if opts.DataDir != "" {
		cfg.Data.Directory = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	log, err := logging.NewZapLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := initSentry(cfg.Sentry); err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	defer sentry.Flush(2 * time.Second)

	log.Info("starting launchpad daemon",
		zap.String("address", cfg.Server.Address),
		zap.String("render", cfg.Output.Render),
		zap.Bool("history", cfg.History.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := launchpad.Run(ctx, cfg, log); err != nil {
		sentry.CaptureException(err)
		log.Error("launchpad daemon failed", zap.Error(err))
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
	log.Info("launchpad daemon stopped")
}

// initSentry enables error reporting when a DSN is configured
func initSentry(cfg config.SentryConfig) error {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	if dsn == "" {
		return nil
	}

	environment := cfg.Environment
	if environment == "" {
		environment = "local"
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}
