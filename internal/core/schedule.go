package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Schedule is a declarative document of triggers and actions. Schedules form
// a stack per destination; only the top of the stack is active.
type Schedule struct {
	Name           string        `json:"name,omitempty"`
	InitialActions []Instruction `json:"initial_actions,omitempty"`
	Triggers       []Trigger     `json:"triggers,omitempty"`
	FinalActions   []Instruction `json:"final_actions,omitempty"`
	PreventUnload  bool          `json:"prevent_unload,omitempty"`
}

// Hash returns a stable content hash of the schedule. It keys the
// trigger-execution log so that restarts never replay a fired interval.
func (s *Schedule) Hash() string {
	data, err := json.Marshal(s)
	if err != nil {
		// Schedules are built from decoded JSON/YAML, so this cannot
		// fail for any schedule that was loadable in the first place.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// TriggerType is the kind of a trigger.
type TriggerType string

const (
	TriggerDate      TriggerType = "date"
	TriggerDayOfWeek TriggerType = "day_of_week"
	TriggerEvent     TriggerType = "event"
)

// Trigger is a rule that can produce an instruction block. Date and
// day-of-week triggers carry scheduled sub-actions; event triggers carry a
// single action block bound to an event key.
type Trigger struct {
	Type TriggerType `json:"type"`

	// Date is a literal day-of-year such as "25-Dec" (date triggers).
	Date string `json:"date,omitempty"`

	// Days holds weekday names (day_of_week triggers).
	Days []string `json:"days,omitempty"`

	// Key is the event key (event triggers).
	Key string `json:"key,omitempty"`

	ScheduledActions []ScheduledAction `json:"scheduled_actions,omitempty"`
	TriggerActions   *ActionsBlock     `json:"trigger_actions,omitempty"`

	Urgent    bool `json:"urgent,omitempty"`
	Important bool `json:"important,omitempty"`
}

// ScheduledAction is a time-of-day entry under a date or day-of-week
// trigger, optionally repeating on a fractional-minute interval.
type ScheduledAction struct {
	// Time is the base time in HH:MM.
	Time string `json:"time,omitempty"`

	// Cron optionally replaces Time/Repeat with a cron expression whose
	// in-day occurrences become the candidate times.
	Cron string `json:"cron,omitempty"`

	Repeat         *RepeatSchedule `json:"repeat_schedule,omitempty"`
	TriggerActions ActionsBlock    `json:"trigger_actions"`
}

// RepeatSchedule repeats a scheduled action every Every minutes (fractional
// allowed) until Until (HH:MM) or end of day.
type RepeatSchedule struct {
	Every float64 `json:"every"`
	Until string  `json:"until,omitempty"`
}

// UnmarshalJSON accepts the interval either as a number or as a numeric
// string, which is how hand-written documents commonly spell it.
func (r *RepeatSchedule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Every json.Number `json:"every"`
		Until string      `json:"until,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		// Retry with the interval quoted as a string.
		var alt struct {
			Every string `json:"every"`
			Until string `json:"until,omitempty"`
		}
		if err2 := json.Unmarshal(data, &alt); err2 != nil {
			return err
		}
		raw.Every = json.Number(alt.Every)
		raw.Until = alt.Until
	}
	every, err := raw.Every.Float64()
	if err != nil {
		return fmt.Errorf("invalid repeat interval %q: %w", raw.Every, err)
	}
	r.Every = every
	r.Until = raw.Until
	return nil
}

// ActionsBlock is an ordered list of instructions with urgency flags.
// Nil flags inherit from the enclosing trigger.
type ActionsBlock struct {
	Instructions []Instruction `json:"instructions_block"`
	Urgent       *bool         `json:"urgent,omitempty"`
	Important    *bool         `json:"important,omitempty"`
}

// Flags resolves the block's urgent/important flags, falling back to the
// enclosing trigger's flags where the block does not set its own.
func (b *ActionsBlock) Flags(triggerUrgent, triggerImportant bool) (urgent, important bool) {
	urgent, important = triggerUrgent, triggerImportant
	if b == nil {
		return urgent, important
	}
	if b.Urgent != nil {
		urgent = *b.Urgent
	}
	if b.Important != nil {
		important = *b.Important
	}
	return urgent, important
}
