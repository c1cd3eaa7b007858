package handler

import (
	"context"
	"time"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/eventstore"
)

func init() {
	Register(core.ActionThrowEvent, handleThrowEvent)
}

// handleThrowEvent publishes an event into the store. The default scope is
// the throwing destination, so a bare throw loops back to the thrower's own
// triggers on a later tick.
func handleThrowEvent(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	key := in.Str("event")
	if key == "" {
		logger.Warn(ctx, "throw_event without an event key", tag.Destination(env.Destination))
		return OutcomeContinue, nil
	}

	scope := in.Str("scope")
	if scope == "" {
		scope = env.Destination
	}

	opts := eventstore.ThrowOptions{
		Scope:       scope,
		Key:         key,
		DisplayName: in.Str("display_name"),
		TTL:         in.Str("ttl"),
		Delay:       in.Str("delay"),
	}
	if payload, ok := in.Get("payload"); ok {
		opts.Payload = payload
	}
	if single, ok := in.Bool("single_consumer"); ok {
		opts.SingleConsumer = single
	}
	if ft := in.Str("future_time"); ft != "" {
		parsed, err := parseFutureTime(ft, env.Now)
		if err != nil {
			return OutcomeContinue, err
		}
		opts.FutureTime = &parsed
	}

	res, err := env.Events.Throw(opts)
	if err != nil {
		return OutcomeContinue, err
	}
	env.Log("threw %s to %s (%d destinations)", key, scope, len(res.Destinations))
	logger.Info(ctx, "Event thrown",
		tag.Destination(env.Destination),
		tag.Event(key),
		tag.Scope(scope),
		tag.Count(len(res.Destinations)))
	return OutcomeContinue, nil
}

// parseFutureTime accepts RFC 3339 or a bare HH:MM, which means the next
// occurrence of that clock time.
func parseFutureTime(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, err
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if candidate.Before(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate, nil
}
