package resolver

import (
	"time"

	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/core/spec"
)

// dueCandidate returns the most recent candidate execution time of the
// scheduled action that falls within the admission window ending at now.
// Candidates are T, T+every, T+2*every, ... up to the until bound (or end
// of day); cron-based actions take their candidates from the expression's
// in-day occurrences instead.
func dueCandidate(sa *core.ScheduledAction, now time.Time, applyGrace bool) (time.Time, bool) {
	window := exactWindow
	if applyGrace {
		window = GraceWindow
	}

	if sa.Cron != "" {
		return dueCronCandidate(sa.Cron, now, window)
	}

	baseMinutes, err := spec.ParseClock(sa.Time)
	if err != nil {
		return time.Time{}, false
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	base := dayStart.Add(time.Duration(baseMinutes) * time.Minute)
	if now.Before(base) {
		return time.Time{}, false
	}

	if sa.Repeat == nil {
		if now.Sub(base) <= window {
			return base, true
		}
		return time.Time{}, false
	}

	every := time.Duration(sa.Repeat.Every * float64(time.Minute))
	if every <= 0 {
		return time.Time{}, false
	}

	end := dayStart.Add(24 * time.Hour)
	if sa.Repeat.Until != "" {
		untilMinutes, err := spec.ParseClock(sa.Repeat.Until)
		if err != nil {
			return time.Time{}, false
		}
		end = dayStart.Add(time.Duration(untilMinutes) * time.Minute)
	}

	// Latest candidate at or before now.
	k := int64(now.Sub(base) / every)
	candidate := base.Add(time.Duration(k) * every)
	if candidate.After(end) {
		if end.Before(base) {
			return time.Time{}, false
		}
		// Snap back onto the last grid point inside the until bound.
		k = int64(end.Sub(base) / every)
		candidate = base.Add(time.Duration(k) * every)
	}

	if now.Sub(candidate) <= window {
		return candidate, true
	}
	return time.Time{}, false
}

// dueCronCandidate finds the expression's most recent occurrence today that
// falls within the window.
func dueCronCandidate(expr string, now time.Time, window time.Duration) (time.Time, bool) {
	sched, err := spec.ParseCron(expr)
	if err != nil {
		return time.Time{}, false
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var last time.Time
	for t := sched.Next(dayStart.Add(-time.Second)); !t.After(now); t = sched.Next(t) {
		last = t
	}
	if last.IsZero() {
		return time.Time{}, false
	}
	if now.Sub(last) <= window {
		return last, true
	}
	return time.Time{}, false
}
