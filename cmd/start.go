package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core/spec"
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [flags] <destination>",
		Short: "Start a destination's scheduler in the foreground",
		Long: `Starts the destination's loop against its persisted schedule stack
and runs until interrupted. With --schedule the document is validated and
pushed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}
			dest := args[0]

			if file, _ := cmd.Flags().GetString("schedule"); file != "" {
				sched, err := spec.LoadFile(file)
				if err != nil {
					return err
				}
				if err := mgr.LoadSchedule(ctx, dest, sched); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := mgr.Start(ctx, dest); err != nil {
				return err
			}
			logger.Info(ctx, "Running until interrupted", tag.Destination(dest))
			<-ctx.Done()

			mgr.StopAll(context.WithoutCancel(ctx))
			return nil
		},
	}
	cmd.Flags().StringP("schedule", "s", "", "schedule document to load before starting")
	return cmd
}
