package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core/spec"
)

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <destination> <schedule file>",
		Short: "Validate a schedule and push it onto a destination's stack",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}

			sched, err := spec.LoadFile(args[1])
			if err != nil {
				// Validation failure leaves any loaded schedule untouched.
				return err
			}
			if err := mgr.LoadSchedule(ctx, args[0], sched); err != nil {
				return err
			}
			logger.Info(ctx, "Schedule loaded",
				tag.Destination(args[0]), tag.File(args[1]))
			return nil
		},
	}
}

func unloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unload <destination>",
		Short: "Pop the top schedule from a stopped destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}
			return mgr.UnloadSchedule(ctx, args[0])
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schedule file>...",
		Short: "Validate schedule documents without loading them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			for _, file := range args {
				if _, err := spec.LoadFile(file); err != nil {
					return err
				}
				logger.Info(ctx, "Schedule is valid", tag.File(file))
			}
			return nil
		},
	}
}
