package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/eventstore"
	"github.com/gjbm2/screen-machine/internal/statestore"
	"github.com/gjbm2/screen-machine/internal/statestore/filestore"
)

func throwCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "throw [flags] <scope> <event key>",
		Short: "Throw an event at a destination, a group, or global scope",
		Long: `Creates the event entries and folds them into each target
destination's persisted snapshot, where a starting scheduler picks them up.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cmdContext(cmd)
			if err != nil {
				return err
			}

			opts := eventstore.ThrowOptions{Scope: args[0], Key: args[1]}
			opts.TTL, _ = cmd.Flags().GetString("ttl")
			opts.Delay, _ = cmd.Flags().GetString("delay")
			opts.DisplayName, _ = cmd.Flags().GetString("display-name")
			opts.SingleConsumer, _ = cmd.Flags().GetBool("single-consumer")
			if payload, _ := cmd.Flags().GetString("payload"); payload != "" {
				var v any
				if err := json.Unmarshal([]byte(payload), &v); err != nil {
					return fmt.Errorf("payload is not valid JSON: %w", err)
				}
				opts.Payload = v
			}

			// Seed each destination's pending events first so the fold
			// below does not drop them.
			store := filestore.New(cfg.Paths.StateDir)
			events := eventstore.New(cfg)
			states := map[string]*statestore.State{}
			for _, dest := range cfg.AllDestinations() {
				state, err := store.Load(ctx, dest)
				if err != nil {
					continue
				}
				events.Seed(dest, state.EventsActive, state.EventsHistory)
				states[dest] = state
			}

			res, err := events.Throw(opts)
			if err != nil {
				return err
			}

			for _, dest := range res.Destinations {
				state, ok := states[dest]
				if !ok {
					continue
				}
				state.EventsActive = events.ActiveFor(dest)
				state.EventsHistory = events.HistoryFor(dest)
				if err := store.Save(ctx, dest, state); err != nil {
					logger.Warn(ctx, "Event persistence failed",
						tag.Destination(dest), tag.Error(err))
				}
			}

			logger.Info(ctx, "Event thrown",
				tag.Event(args[1]),
				tag.Scope(args[0]),
				tag.Count(len(res.Destinations)))
			return nil
		},
	}
	cmd.Flags().String("ttl", "", "time to live (bare integers are seconds)")
	cmd.Flags().String("delay", "", "activation delay")
	cmd.Flags().String("display-name", "", "human-readable event name")
	cmd.Flags().String("payload", "", "JSON payload")
	cmd.Flags().Bool("single-consumer", false, "first consumer purges fan-out peers")
	return cmd
}
