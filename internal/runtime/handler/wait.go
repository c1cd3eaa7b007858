package handler

import (
	"context"
	"time"

	"github.com/gjbm2/screen-machine/internal/cmn/duration"
	"github.com/gjbm2/screen-machine/internal/core"
)

func init() {
	Register(core.ActionWait, handleWait)
	Register(core.ActionSleep, handleSleep)
}

// waitLogInterval throttles the periodic "still waiting" log line.
const waitLogInterval = time.Minute

// handleWait starts or checks a non-blocking wait. Bare numbers mean
// minutes. The runtime uses the presence of wait_until to detect wait-state
// and apply preemption rules; the handler never sleeps.
func handleWait(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	return startOrCheckWait(env, in, time.Minute)
}

// handleSleep is wait with bare numbers meaning seconds.
func handleSleep(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	return startOrCheckWait(env, in, time.Second)
}

func startOrCheckWait(env *Env, in core.Instruction, defaultUnit time.Duration) (Outcome, error) {
	if env.Context.WaitUntil != nil {
		if !env.Now.Before(*env.Context.WaitUntil) {
			env.Context.ClearWait()
			env.Log("wait complete")
			return OutcomeContinue, nil
		}
		if env.Context.LastWaitLog == nil || env.Now.Sub(*env.Context.LastWaitLog) >= waitLogInterval {
			t := env.Now
			env.Context.LastWaitLog = &t
			env.Log("waiting until %s", env.Context.WaitUntil.Format(time.RFC3339))
		}
		return OutcomeContinue, nil
	}

	spec := in.Str("duration")
	if spec == "" {
		// The duration may arrive as a bare number.
		if v, ok := in.Get("duration"); ok {
			switch n := v.(type) {
			case float64:
				deadline := env.Now.Add(time.Duration(n * float64(defaultUnit)))
				env.Context.WaitUntil = &deadline
				env.Log("waiting until %s", deadline.Format(time.RFC3339))
				return OutcomeContinue, nil
			case int64:
				deadline := env.Now.Add(time.Duration(n) * defaultUnit)
				env.Context.WaitUntil = &deadline
				env.Log("waiting until %s", deadline.Format(time.RFC3339))
				return OutcomeContinue, nil
			}
		}
		return OutcomeContinue, nil
	}

	d, err := duration.Parse(spec, defaultUnit)
	if err != nil {
		return OutcomeContinue, err
	}
	deadline := env.Now.Add(d)
	env.Context.WaitUntil = &deadline
	env.Log("waiting until %s", deadline.Format(time.RFC3339))
	return OutcomeContinue, nil
}
