package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/statestore/filestore"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [destination]",
		Short: "Show persisted scheduler state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			store := filestore.New(cfg.Paths.StateDir)

			dests := args
			if len(dests) == 0 {
				dests, err = store.List(ctx)
				if err != nil {
					return err
				}
			}

			for _, dest := range dests {
				state, err := store.Load(ctx, dest)
				if err != nil {
					return err
				}
				summary := map[string]any{
					"destination":  dest,
					"state":        state.Status,
					"stack_depth":  state.Depth(),
					"last_updated": state.LastUpdated,
				}
				out, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return nil
		},
	}
}
