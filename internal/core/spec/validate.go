package spec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gjbm2/screen-machine/internal/core"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses a weekday name (case-insensitive, full or three-letter
// abbreviation).
func ParseWeekday(name string) (time.Weekday, error) {
	lower := strings.ToLower(name)
	if d, ok := weekdays[lower]; ok {
		return d, nil
	}
	if len(lower) == 3 {
		for full, d := range weekdays {
			if strings.HasPrefix(full, lower) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// ParseDayOfYear parses a literal day-of-year such as "25-Dec".
func ParseDayOfYear(s string) (day int, month time.Month, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid date %q, want DD-Mon", s)
	}
	day, err = strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("invalid day in date %q", s)
	}
	t, err := time.Parse("Jan", parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month in date %q", s)
	}
	return day, t.Month(), nil
}

// ParseClock parses an HH:MM time of day into minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// validate performs the semantic checks the JSON schema cannot express.
func validate(s *core.Schedule) error {
	for i, instr := range s.InitialActions {
		if !core.KnownAction(instr.Action) {
			return validationErr(fmt.Sprintf("initial_actions[%d]", i), "unknown action %q", instr.Action)
		}
	}
	for i, instr := range s.FinalActions {
		if !core.KnownAction(instr.Action) {
			return validationErr(fmt.Sprintf("final_actions[%d]", i), "unknown action %q", instr.Action)
		}
	}
	for i := range s.Triggers {
		if err := validateTrigger(&s.Triggers[i], fmt.Sprintf("triggers[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateTrigger(tr *core.Trigger, field string) error {
	switch tr.Type {
	case core.TriggerDate:
		if _, _, err := ParseDayOfYear(tr.Date); err != nil {
			return validationErr(field, "%v", err)
		}
	case core.TriggerDayOfWeek:
		if len(tr.Days) == 0 {
			return validationErr(field, "day_of_week trigger has no days")
		}
		for _, day := range tr.Days {
			if _, err := ParseWeekday(day); err != nil {
				return validationErr(field, "%v", err)
			}
		}
	case core.TriggerEvent:
		if tr.Key == "" {
			return validationErr(field, "event trigger has no key")
		}
		if tr.TriggerActions == nil {
			return validationErr(field, "event trigger has no trigger_actions")
		}
	default:
		return validationErr(field, "unknown trigger type %q", tr.Type)
	}

	if tr.TriggerActions != nil {
		if err := validateBlock(tr.TriggerActions, field+".trigger_actions"); err != nil {
			return err
		}
	}
	for i := range tr.ScheduledActions {
		if err := validateScheduled(&tr.ScheduledActions[i], fmt.Sprintf("%s.scheduled_actions[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateScheduled(sa *core.ScheduledAction, field string) error {
	switch {
	case sa.Cron != "":
		if sa.Time != "" || sa.Repeat != nil {
			return validationErr(field, "cron excludes time and repeat_schedule")
		}
		if _, err := ParseCron(sa.Cron); err != nil {
			return validationErr(field, "invalid cron expression %q: %v", sa.Cron, err)
		}
	case sa.Time != "":
		if _, err := ParseClock(sa.Time); err != nil {
			return validationErr(field, "%v", err)
		}
	default:
		return validationErr(field, "scheduled action needs a time or a cron expression")
	}

	if sa.Repeat != nil {
		if sa.Repeat.Every <= 0 {
			return validationErr(field, "repeat interval must be positive")
		}
		if sa.Repeat.Until != "" {
			if _, err := ParseClock(sa.Repeat.Until); err != nil {
				return validationErr(field, "%v", err)
			}
		}
	}
	return validateBlock(&sa.TriggerActions, field+".trigger_actions")
}

func validateBlock(b *core.ActionsBlock, field string) error {
	for i, instr := range b.Instructions {
		if !core.KnownAction(instr.Action) {
			return validationErr(fmt.Sprintf("%s[%d]", field, i), "unknown action %q", instr.Action)
		}
	}
	return nil
}
