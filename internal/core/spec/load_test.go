package spec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjbm2/screen-machine/internal/core"
)

const validDoc = `
name: evening
prevent_unload: true
initial_actions:
  - action: set_var
    var: mode
    value: evening
triggers:
  - type: day_of_week
    days: [Mon, Tue, Wed, Thu, Fri]
    scheduled_actions:
      - time: "18:30"
        repeat_schedule:
          every: "0.5"
          until: "23:00"
        trigger_actions:
          instructions_block:
            - action: generate
              prompt: "a calm {{ .mode }} scene"
  - type: event
    key: user_arrived
    urgent: true
    trigger_actions:
      instructions_block:
        - action: display
          source: welcome.png
final_actions:
  - action: device_sleep
`

func TestLoad_ValidDocument(t *testing.T) {
	t.Parallel()

	sched, err := Load([]byte(validDoc))
	require.NoError(t, err)

	assert.Equal(t, "evening", sched.Name)
	assert.True(t, sched.PreventUnload)
	require.Len(t, sched.InitialActions, 1)
	assert.Equal(t, core.ActionSetVar, sched.InitialActions[0].Action)
	require.Len(t, sched.Triggers, 2)

	weekly := sched.Triggers[0]
	assert.Equal(t, core.TriggerDayOfWeek, weekly.Type)
	require.Len(t, weekly.ScheduledActions, 1)
	sa := weekly.ScheduledActions[0]
	assert.Equal(t, "18:30", sa.Time)
	require.NotNil(t, sa.Repeat)
	// Quoted intervals parse as numbers.
	assert.InDelta(t, 0.5, sa.Repeat.Every, 1e-9)
	assert.Equal(t, "23:00", sa.Repeat.Until)

	event := sched.Triggers[1]
	assert.Equal(t, core.TriggerEvent, event.Type)
	assert.Equal(t, "user_arrived", event.Key)
	assert.True(t, event.Urgent)
	require.NotNil(t, event.TriggerActions)
	require.Len(t, event.TriggerActions.Instructions, 1)

	require.Len(t, sched.FinalActions, 1)
	assert.Equal(t, core.ActionDeviceSleep, sched.FinalActions[0].Action)
}

func TestLoad_AcceptsJSON(t *testing.T) {
	t.Parallel()

	doc := `{"name":"j","initial_actions":[{"action":"log","message":"hi"}]}`
	sched, err := Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "j", sched.Name)
	assert.Equal(t, "hi", sched.InitialActions[0].Str("message"))
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "NotYAML", doc: "{ not: [valid"},
		{name: "UnknownTopLevelKey", doc: "name: x\nbogus_key: 1"},
		{name: "UnknownAction", doc: "initial_actions:\n  - action: explode"},
		{name: "MissingAction", doc: "initial_actions:\n  - var: x"},
		{
			name: "BadTime",
			doc: `triggers:
  - type: day_of_week
    days: [Mon]
    scheduled_actions:
      - time: "25:99"
        trigger_actions:
          instructions_block: []
`,
		},
		{
			name: "BadWeekday",
			doc: `triggers:
  - type: day_of_week
    days: [Moonday]
    scheduled_actions:
      - time: "10:00"
        trigger_actions:
          instructions_block: []
`,
		},
		{
			name: "BadDate",
			doc: `triggers:
  - type: date
    date: "32-Dec"
    scheduled_actions:
      - time: "10:00"
        trigger_actions:
          instructions_block: []
`,
		},
		{
			name: "EventWithoutKey",
			doc: `triggers:
  - type: event
    trigger_actions:
      instructions_block: []
`,
		},
		{
			name: "EventWithoutActions",
			doc: `triggers:
  - type: event
    key: evt
`,
		},
		{
			name: "NonPositiveRepeat",
			doc: `triggers:
  - type: day_of_week
    days: [Mon]
    scheduled_actions:
      - time: "10:00"
        repeat_schedule:
          every: 0
        trigger_actions:
          instructions_block: []
`,
		},
		{
			name: "CronWithTime",
			doc: `triggers:
  - type: day_of_week
    days: [Mon]
    scheduled_actions:
      - time: "10:00"
        cron: "*/5 * * * *"
        trigger_actions:
          instructions_block: []
`,
		},
		{
			name: "ScheduledWithoutTimeOrCron",
			doc: `triggers:
  - type: day_of_week
    days: [Mon]
    scheduled_actions:
      - trigger_actions:
          instructions_block: []
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load([]byte(tc.doc))
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestLoad_CronScheduledAction(t *testing.T) {
	t.Parallel()

	doc := `
triggers:
  - type: day_of_week
    days: [Sat, Sun]
    scheduled_actions:
      - cron: "*/15 9-17 * * *"
        trigger_actions:
          instructions_block:
            - action: publish
              source: rotation
`
	sched, err := Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "*/15 9-17 * * *", sched.Triggers[0].ScheduledActions[0].Cron)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	sched, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "evening", sched.Name)

	// A second load is served from the document cache.
	again, err := LoadFile(path)
	require.NoError(t, err)
	assert.Same(t, sched, again)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	t.Run("Weekday", func(t *testing.T) {
		t.Parallel()
		d, err := ParseWeekday("Wednesday")
		require.NoError(t, err)
		assert.Equal(t, time.Wednesday, d)

		d, err = ParseWeekday("sun")
		require.NoError(t, err)
		assert.Equal(t, time.Sunday, d)

		_, err = ParseWeekday("Mo")
		require.Error(t, err)
	})

	t.Run("DayOfYear", func(t *testing.T) {
		t.Parallel()
		day, month, err := ParseDayOfYear("25-Dec")
		require.NoError(t, err)
		assert.Equal(t, 25, day)
		assert.Equal(t, time.December, month)

		_, _, err = ParseDayOfYear("Dec-25")
		require.Error(t, err)
	})

	t.Run("Clock", func(t *testing.T) {
		t.Parallel()
		minutes, err := ParseClock("18:30")
		require.NoError(t, err)
		assert.Equal(t, 18*60+30, minutes)

		_, err = ParseClock("6pm")
		require.Error(t, err)
	})
}
