package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjbm2/screen-machine/internal/core"
)

type memLog map[string]time.Time

func (l memLog) Executed(key string) bool              { _, ok := l[key]; return ok }
func (l memLog) MarkExecuted(key string, at time.Time) { l[key] = at }

// admit marks every hit's candidate the way the runtime does after queue
// admission.
func admit(log memLog, hits []Hit) {
	for _, h := range hits {
		if h.Key != "" {
			log.MarkExecuted(h.Key, h.At)
		}
	}
}

type memEvents map[string][]*core.Event

func (m memEvents) PopNext(dest, key string, now time.Time) *core.Event {
	queue := m[dest+"/"+key]
	for i, e := range queue {
		if e.Visible(now) {
			m[dest+"/"+key] = append(queue[:i:i], queue[i+1:]...)
			return e
		}
	}
	return nil
}

func logInstr(msg string) core.Instruction {
	return core.NewInstruction(core.ActionLog, map[string]any{"message": msg})
}

func dailySchedule(at string, repeat *core.RepeatSchedule) *core.Schedule {
	return &core.Schedule{
		Name: "daily",
		Triggers: []core.Trigger{{
			Type: core.TriggerDayOfWeek,
			Days: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
			ScheduledActions: []core.ScheduledAction{{
				Time:           at,
				Repeat:         repeat,
				TriggerActions: core.ActionsBlock{Instructions: []core.Instruction{logInstr("fired")}},
			}},
		}},
	}
}

// 2026-03-02 is a Monday.
func monday(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, second, 0, time.UTC)
}

func TestResolve_InitialActions(t *testing.T) {
	t.Parallel()
	sched := &core.Schedule{
		InitialActions: []core.Instruction{logInstr("init")},
	}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 0), IncludeInitial: true})
	require.Len(t, hits, 1)
	assert.Equal(t, SourceInitial, hits[0].Source)

	// Without IncludeInitial nothing fires, and a trigger-less schedule
	// with no final actions stays silent.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 0)})
	assert.Empty(t, hits)
}

func TestResolve_FinalActionsWhenNoTriggers(t *testing.T) {
	t.Parallel()
	sched := &core.Schedule{
		InitialActions: []core.Instruction{logInstr("init")},
		FinalActions:   []core.Instruction{logInstr("fin")},
	}

	// The first pass offers initial actions only.
	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 0), IncludeInitial: true})
	require.Len(t, hits, 1)
	assert.Equal(t, SourceInitial, hits[0].Source)

	// Later passes drain to the final actions.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 5)})
	require.Len(t, hits, 1)
	assert.Equal(t, SourceFinal, hits[0].Source)
}

func TestResolve_ExactWindow(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", nil)

	tests := []struct {
		name string
		now  time.Time
		hit  bool
	}{
		{name: "OnTime", now: monday(12, 0, 0), hit: true},
		{name: "WithinJitter", now: monday(12, 0, 5), hit: true},
		{name: "TooLate", now: monday(12, 0, 15), hit: false},
		{name: "Early", now: monday(11, 59, 59), hit: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			hits := Resolve(Request{Schedule: sched, Destination: "d", Now: tc.now, Log: memLog{}})
			if tc.hit {
				require.Len(t, hits, 1)
				assert.Equal(t, SourceTrigger, hits[0].Source)
			} else {
				assert.Empty(t, hits)
			}
		})
	}
}

func TestResolve_GraceWindowOnFirstTick(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", nil)

	// Three minutes late is outside the exact window but inside grace.
	now := monday(12, 3, 0)
	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: now, ApplyGrace: true, Log: memLog{}})
	require.Len(t, hits, 1)

	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: now, Log: memLog{}})
	assert.Empty(t, hits)

	// Six minutes late is beyond grace too.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 6, 0), ApplyGrace: true, Log: memLog{}})
	assert.Empty(t, hits)
}

func TestResolve_DedupAcrossTicks(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", nil)
	log := memLog{}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 0, 2), Log: log})
	require.Len(t, hits, 1)
	assert.NotEmpty(t, hits[0].Key)
	admit(log, hits)

	// The same candidate seen on the next tick does not fire again.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 0, 4), Log: log})
	assert.Empty(t, hits)
}

func TestResolve_UnadmittedCandidateStaysEligible(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", nil)
	log := memLog{}

	// A hit the runtime drops (queue busy, wait state) is never marked, so
	// the next tick inside the window offers the same candidate again.
	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 0, 2), Log: log})
	require.Len(t, hits, 1)
	assert.Empty(t, log)

	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 0, 4), Log: log})
	require.Len(t, hits, 1)
}

func TestResolve_FractionalRepeat(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", &core.RepeatSchedule{Every: 0.5, Until: "12:02"})
	log := memLog{}

	// Candidates at 12:00:00, :30, 12:01:00, :30, 12:02:00.
	fired := 0
	for _, now := range []time.Time{
		monday(12, 0, 2), monday(12, 0, 32), monday(12, 1, 2),
		monday(12, 1, 32), monday(12, 2, 2), monday(12, 2, 32),
	} {
		hits := Resolve(Request{Schedule: sched, Destination: "d", Now: now, Log: log})
		admit(log, hits)
		fired += len(hits)
	}
	assert.Equal(t, 5, fired)
}

func TestResolve_GraceFiresLatestCandidateOnly(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", &core.RepeatSchedule{Every: 1})
	log := memLog{}

	// Restarting at 12:04 after missing four candidates catches up with
	// the latest one, not the whole backlog.
	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 4, 1), ApplyGrace: true, Log: log})
	require.Len(t, hits, 1)
	assert.Equal(t, monday(12, 4, 0), hits[0].At)
}

func TestResolve_DateTrigger(t *testing.T) {
	t.Parallel()
	sched := &core.Schedule{
		Triggers: []core.Trigger{{
			Type: core.TriggerDate,
			Date: "2-Mar",
			ScheduledActions: []core.ScheduledAction{{
				Time:           "09:00",
				TriggerActions: core.ActionsBlock{Instructions: []core.Instruction{logInstr("x")}},
			}},
		}},
	}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 1), Log: memLog{}})
	assert.Len(t, hits, 1)

	// Wrong day of year.
	other := time.Date(2026, 3, 3, 9, 0, 1, 0, time.UTC)
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: other, Log: memLog{}})
	assert.Empty(t, hits)
}

func TestResolve_DayOfWeekFilter(t *testing.T) {
	t.Parallel()
	sched := &core.Schedule{
		Triggers: []core.Trigger{{
			Type: core.TriggerDayOfWeek,
			Days: []string{"Tue"},
			ScheduledActions: []core.ScheduledAction{{
				Time:           "09:00",
				TriggerActions: core.ActionsBlock{Instructions: []core.Instruction{logInstr("x")}},
			}},
		}},
	}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 1), Log: memLog{}})
	assert.Empty(t, hits)

	tuesday := time.Date(2026, 3, 3, 9, 0, 1, 0, time.UTC)
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: tuesday, Log: memLog{}})
	assert.Len(t, hits, 1)
}

func TestResolve_EventTrigger(t *testing.T) {
	t.Parallel()
	urgent := true
	sched := &core.Schedule{
		Triggers: []core.Trigger{{
			Type: core.TriggerEvent,
			Key:  "user_arrived",
			TriggerActions: &core.ActionsBlock{
				Instructions: []core.Instruction{logInstr("hello")},
				Urgent:       &urgent,
			},
		}},
		FinalActions: []core.Instruction{logInstr("fin")},
	}

	now := monday(10, 0, 0)
	events := memEvents{
		"d/user_arrived": {{
			Key:        "user_arrived",
			ActiveFrom: now.Add(-time.Second),
			Expires:    now.Add(time.Hour),
			Status:     core.EventActive,
			Payload:    map[string]any{"who": "guest"},
		}},
	}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: now, Log: memLog{}, Events: events})
	require.Len(t, hits, 1)
	assert.Equal(t, SourceEvent, hits[0].Source)
	assert.True(t, hits[0].Urgent)
	require.NotNil(t, hits[0].Event)

	// Schedules with triggers never drain to final actions; a later quiet
	// pass produces nothing.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: now.Add(time.Minute), Log: memLog{}, Events: events})
	assert.Empty(t, hits)
}

func TestResolve_WaitStateLeavesNormalEventQueued(t *testing.T) {
	t.Parallel()
	sched := &core.Schedule{
		Triggers: []core.Trigger{{
			Type: core.TriggerEvent,
			Key:  "poke",
			TriggerActions: &core.ActionsBlock{
				Instructions: []core.Instruction{logInstr("poked")},
			},
		}},
	}

	now := monday(10, 0, 0)
	events := memEvents{
		"d/poke": {{
			Key:        "poke",
			ActiveFrom: now.Add(-time.Second),
			Expires:    now.Add(time.Hour),
			Status:     core.EventActive,
		}},
	}

	// A normal event block would be dropped during the wait, so the entry
	// is not consumed.
	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: now, InWait: true, Log: memLog{}, Events: events})
	assert.Empty(t, hits)
	require.Len(t, events["d/poke"], 1)

	// Once the wait ends it is consumed and offered.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: now.Add(time.Minute), Log: memLog{}, Events: events})
	require.Len(t, hits, 1)
	assert.Equal(t, SourceEvent, hits[0].Source)
	assert.Empty(t, events["d/poke"])
}

func TestResolve_WaitStateStillConsumesUrgentEvent(t *testing.T) {
	t.Parallel()
	urgent := true
	sched := &core.Schedule{
		Triggers: []core.Trigger{{
			Type: core.TriggerEvent,
			Key:  "alarm",
			TriggerActions: &core.ActionsBlock{
				Instructions: []core.Instruction{logInstr("alarm")},
				Urgent:       &urgent,
			},
		}},
	}

	now := monday(10, 0, 0)
	events := memEvents{
		"d/alarm": {{
			Key:        "alarm",
			ActiveFrom: now.Add(-time.Second),
			Expires:    now.Add(time.Hour),
			Status:     core.EventActive,
		}},
	}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: now, InWait: true, Log: memLog{}, Events: events})
	require.Len(t, hits, 1)
	assert.True(t, hits[0].Urgent)
}

func TestResolve_WaitStateSkipsNormalTriggerUnmarked(t *testing.T) {
	t.Parallel()
	sched := dailySchedule("12:00", nil)
	log := memLog{}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 0, 2), InWait: true, Log: log})
	assert.Empty(t, hits)
	assert.Empty(t, log)

	// The widened window after the wait catches the candidate up.
	hits = Resolve(Request{Schedule: sched, Destination: "d", Now: monday(12, 2, 0), ApplyGrace: true, Log: log})
	require.Len(t, hits, 1)
	assert.Equal(t, monday(12, 0, 0), hits[0].At)
}

func TestResolve_BlockFlagOverride(t *testing.T) {
	t.Parallel()
	noUrgent := false
	sched := &core.Schedule{
		Triggers: []core.Trigger{{
			Type:   core.TriggerDayOfWeek,
			Days:   []string{"Mon"},
			Urgent: true,
			ScheduledActions: []core.ScheduledAction{{
				Time: "09:00",
				TriggerActions: core.ActionsBlock{
					Instructions: []core.Instruction{logInstr("x")},
					Urgent:       &noUrgent,
				},
			}},
		}},
	}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 1), Log: memLog{}})
	require.Len(t, hits, 1)
	// The block's explicit flag wins over the trigger's.
	assert.False(t, hits[0].Urgent)
}

func TestResolve_PendingReturnedFirst(t *testing.T) {
	t.Parallel()
	pending := []Hit{{Instructions: []core.Instruction{logInstr("held")}, Important: true, Source: SourceTrigger}}
	sched := &core.Schedule{InitialActions: []core.Instruction{logInstr("init")}}

	hits := Resolve(Request{Schedule: sched, Destination: "d", Now: monday(9, 0, 0), IncludeInitial: true, Pending: pending})
	require.Len(t, hits, 2)
	assert.Equal(t, "held", hits[0].Instructions[0].Str("message"))
}
