// Package resolver evaluates a schedule against the current time, context,
// and event store, producing the instruction blocks that are due. It never
// blocks; consuming an event entry is its only side effect, and it only
// consumes entries whose block would pass wait-state admission. Marking
// fired candidates in the execution log is the caller's job, done once the
// block is actually admitted, so a dropped block stays eligible.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/core/spec"
)

// Block sources, in the order the resolver can produce them.
const (
	SourceInitial = "initial"
	SourceTrigger = "trigger"
	SourceEvent   = "event"
	SourceFinal   = "final"
)

// GraceWindow is how long after a candidate time a missed candidate still
// fires, applied only on the first tick after scheduler start.
const GraceWindow = 5 * time.Minute

// exactWindow is the lateness tolerated on normal ticks. It covers tick
// jitter only; anything older waits for the next candidate.
const exactWindow = 10 * time.Second

// EventSource consumes events. There is deliberately no peek.
type EventSource interface {
	PopNext(dest, key string, now time.Time) *core.Event
}

// ExecutionLog deduplicates candidate firings across ticks and restarts.
type ExecutionLog interface {
	Executed(key string) bool
	MarkExecuted(key string, at time.Time)
}

// Hit is one instruction block the resolver decided should run.
type Hit struct {
	Instructions []core.Instruction
	Urgent       bool
	Important    bool
	Source       string

	// Event carries the consumed entry for event hits so the runtime can
	// bind its payload to the context.
	Event *core.Event

	// Key is the execution-log dedup key of a trigger hit, with At the
	// candidate time behind it. The caller marks Key once the block is
	// admitted; both are zero for non-trigger hits.
	Key string
	At  time.Time
}

// Request carries everything one resolution pass needs.
type Request struct {
	Schedule    *core.Schedule
	Destination string
	Now         time.Time

	// IncludeInitial emits initial_actions, set on the first pass after
	// start (not on resume).
	IncludeInitial bool

	// ApplyGrace widens the candidate window to GraceWindow, set on the
	// first tick after scheduler start so missed work is caught up once.
	ApplyGrace bool

	// Pending holds hits held back by earlier passes, when admission
	// dropped a block whose trigger will not re-offer it. They are
	// returned ahead of everything else.
	Pending []Hit

	// InWait marks the context as inside a wait. Normal blocks would be
	// dropped by admission, so their events are not consumed and their
	// candidates stay unmarked.
	InWait bool

	Log    ExecutionLog
	Events EventSource
}

// Resolve produces the ordered list of due instruction blocks.
func Resolve(req Request) []Hit {
	var hits []Hit

	hits = append(hits, req.Pending...)

	sched := req.Schedule
	if sched == nil {
		return hits
	}

	if req.IncludeInitial && len(sched.InitialActions) > 0 {
		hits = append(hits, Hit{
			Instructions: sched.InitialActions,
			Source:       SourceInitial,
		})
	}

	triggered := false
	seen := map[string]struct{}{}
	for i := range sched.Triggers {
		tr := &sched.Triggers[i]
		switch tr.Type {
		case core.TriggerDate:
			if matchesDate(tr.Date, req.Now) {
				hits, triggered = appendScheduled(hits, triggered, tr, req, seen)
			}
		case core.TriggerDayOfWeek:
			// Evaluated independently of any date match.
			if matchesDay(tr.Days, req.Now) {
				hits, triggered = appendScheduled(hits, triggered, tr, req, seen)
			}
		case core.TriggerEvent:
			if req.Events == nil {
				continue
			}
			urgent, important := tr.TriggerActions.Flags(tr.Urgent, tr.Important)
			if req.InWait && !urgent && !important {
				// The entry stays queued until the wait ends.
				continue
			}
			entry := req.Events.PopNext(req.Destination, tr.Key, req.Now)
			if entry == nil {
				continue
			}
			hits = append(hits, Hit{
				Instructions: tr.TriggerActions.Instructions,
				Urgent:       urgent,
				Important:    important,
				Source:       SourceEvent,
				Event:        entry,
			})
			triggered = true
		}
	}

	// Schedules without triggers drain to their final actions once the
	// initial block has been offered; the runtime unloads after the final
	// block completes.
	if !triggered && !req.IncludeInitial && len(sched.Triggers) == 0 && len(sched.FinalActions) > 0 {
		hits = append(hits, Hit{
			Instructions: sched.FinalActions,
			Source:       SourceFinal,
		})
	}

	return hits
}

func appendScheduled(hits []Hit, triggered bool, tr *core.Trigger, req Request, seen map[string]struct{}) ([]Hit, bool) {
	scheduleHash := req.Schedule.Hash()
	for i := range tr.ScheduledActions {
		sa := &tr.ScheduledActions[i]
		candidate, ok := dueCandidate(sa, req.Now, req.ApplyGrace)
		if !ok {
			continue
		}
		urgent, important := sa.TriggerActions.Flags(tr.Urgent, tr.Important)
		if req.InWait && !urgent && !important {
			// Left unmarked so the candidate can still fire after the
			// wait ends.
			continue
		}
		key := executionKey(scheduleHash, candidate)
		if _, dup := seen[key]; dup {
			continue
		}
		if req.Log != nil && req.Log.Executed(key) {
			continue
		}
		seen[key] = struct{}{}
		hits = append(hits, Hit{
			Instructions: sa.TriggerActions.Instructions,
			Urgent:       urgent,
			Important:    important,
			Source:       SourceTrigger,
			Key:          key,
			At:           candidate,
		})
		triggered = true
	}
	return hits, triggered
}

// executionKey derives the stable dedup key for one candidate firing: the
// schedule content hash plus the candidate's absolute UTC timestamp.
func executionKey(scheduleHash string, candidate time.Time) string {
	sum := sha256.Sum256([]byte(scheduleHash + "|" + candidate.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:8])
}

func matchesDate(date string, now time.Time) bool {
	day, month, err := spec.ParseDayOfYear(date)
	if err != nil {
		return false
	}
	return now.Day() == day && now.Month() == month
}

func matchesDay(days []string, now time.Time) bool {
	for _, name := range days {
		day, err := spec.ParseWeekday(name)
		if err != nil {
			continue
		}
		if now.Weekday() == day {
			return true
		}
	}
	return false
}
