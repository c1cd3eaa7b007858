package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/statestore/filestore"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <destination>",
		Short: "Mark a destination's scheduler stopped",
		Long: `Sets the persisted state to stopped, preserving the schedule and
context stacks. A daemon picks the change up on its next recovery; an
in-process loop is stopped through the daemon's own lifecycle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			store := filestore.New(cfg.Paths.StateDir)
			state, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			state.Status = core.StatusStopped
			return store.Save(ctx, args[0], state)
		},
	}
}

func pauseCmd() *cobra.Command {
	return statusPatchCmd("pause", "Pause a destination's scheduler", core.StatusPaused)
}

func unpauseCmd() *cobra.Command {
	return statusPatchCmd("unpause", "Unpause a destination's scheduler", core.StatusRunning)
}

func statusPatchCmd(use, short string, to core.SchedulerStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <destination>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			store := filestore.New(cfg.Paths.StateDir)
			state, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			state.Status = to
			return store.Save(ctx, args[0], state)
		},
	}
}
