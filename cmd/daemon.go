package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/runtime"
)

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler daemon",
		Long: `Recovers every destination that was running or paused, watches the
schedule directory for changes, and runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := mgr.RecoverAll(ctx); err != nil {
				return err
			}

			go func() {
				err := runtime.WatchSchedules(ctx, cfg.Paths.SchedulesDir)
				if err != nil && ctx.Err() == nil {
					logger.Error(ctx, "Schedule watcher exited", tag.Error(err))
				}
			}()

			logger.Info(ctx, "Daemon running", tag.Dir(cfg.Paths.StateDir))
			<-ctx.Done()

			// Loops must not inherit the cancelled signal context while
			// draining.
			mgr.StopAll(context.WithoutCancel(ctx))
			return nil
		},
	}
}
