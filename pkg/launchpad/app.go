package launchpad

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/core-tools/hsu-launchpad/pkg/config"
)

// stopMargin is added to the grace period for the whole shutdown
const stopMargin = 10 * time.Second

// NewApp composes the daemon. extra options are appended, e.g. fx.Populate.
func NewApp(cfg *config.Config, log *zap.Logger, extra ...fx.Option) *fx.App {
	return fx.New(
		fx.Supply(log),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.StopTimeout(cfg.Supervisor.GracePeriod+stopMargin),
		Module(cfg),
		fx.Options(extra...),
	)
}

// Run starts the daemon and blocks until ctx is done or a shutdown signal
// arrives, then stops it gracefully
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	defer log.Sync()

	app := NewApp(cfg, log)

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("context done, stopping")
	case sig := <-app.Wait():
		log.Info("shutdown signal received", zap.Any("signal", sig.Signal), zap.Int("exit_code", sig.ExitCode))
	}

	// tracked processes get the grace period even when ctx is already done
	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return app.Stop(stopCtx)
}
