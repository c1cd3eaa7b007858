package handler

import (
	"context"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/eventstore"
)

func init() {
	Register(core.ActionUnload, handleUnload)
	Register(core.ActionTerminate, handleTerminate)
	Register(core.ActionLog, handleLog)
}

// handleUnload pops the top schedule unless it vetoes unloading. An
// immediate-mode unload against a prevent_unload schedule stops the runtime
// but keeps the stack, which the runtime detects through the stopping flag.
func handleUnload(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	if env.Schedule != nil && env.Schedule.PreventUnload {
		if in.Str("mode") == "immediate" {
			env.Context.Stopping = true
			env.Log("unload vetoed by schedule; stopping")
			return OutcomeContinue, nil
		}
		env.Log("unload vetoed by schedule")
		logger.Info(ctx, "Unload prevented by schedule", tag.Destination(env.Destination))
		return OutcomeContinue, nil
	}
	return OutcomeUnload, nil
}

// handleTerminate ends the schedule through the internal event pathway so
// the runtime's normal urgent-event path drives the follow-up instead of a
// recursive call into the loop.
//
// Modes: normal runs final_actions before unloading, immediate unloads
// without them, block only drops the rest of the current block. A false
// test field turns the instruction into a no-op.
func handleTerminate(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	if test, ok := in.Bool("test"); ok && !test {
		return OutcomeContinue, nil
	}

	// Synthesized follow-ups carry from_event so a terminate inside
	// final_actions cannot re-emit forever. The schedule's veto still
	// applies here; the immediate pathway never reaches this branch for a
	// prevent_unload schedule, it stops the runtime upstream instead.
	if fromEvent, ok := in.Bool("from_event"); ok && fromEvent {
		if env.Schedule != nil && env.Schedule.PreventUnload {
			env.Log("terminate vetoed by schedule")
			logger.Info(ctx, "Unload prevented by schedule", tag.Destination(env.Destination))
			return OutcomeContinue, nil
		}
		return OutcomeUnload, nil
	}

	mode := in.Str("mode")
	if mode == "" {
		mode = "normal"
	}

	var key string
	switch mode {
	case "normal":
		key = core.EventKeyTerminate
	case "immediate":
		key = core.EventKeyTerminateImmediate
	case "block":
		key = core.EventKeyExitBlock
	default:
		logger.Warn(ctx, "Unknown terminate mode", tag.Destination(env.Destination), tag.Action(mode))
		return OutcomeContinue, nil
	}

	_, err := env.Events.Throw(eventstore.ThrowOptions{
		Scope: env.Destination,
		Key:   key,
		TTL:   "60",
	})
	if err != nil {
		return OutcomeContinue, err
	}
	env.Log("terminate (%s)", mode)
	return OutcomeContinue, nil
}

func handleLog(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	msg := in.Str("message")
	env.Log("%s", msg)
	logger.Info(ctx, msg, tag.Destination(env.Destination))
	return OutcomeContinue, nil
}
