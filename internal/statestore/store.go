// Package statestore persists per-destination scheduler state. Each
// destination owns an independent durable snapshot; cross-destination
// operations never share a file.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/gjbm2/screen-machine/internal/core"
)

// ErrNotFound is returned when a destination has no persisted state.
var ErrNotFound = errors.New("no state for destination")

// State is the durable per-destination snapshot. The schedule stack and the
// context stack always have equal depth.
type State struct {
	ScheduleStack []*core.Schedule          `json:"schedule_stack"`
	ContextStack  []*core.Context           `json:"context_stack"`
	Status        core.SchedulerStatus      `json:"state"`
	LastUpdated   time.Time                 `json:"last_updated"`
	TriggerLog    map[string]time.Time      `json:"last_trigger_executions"`
	EventsActive  map[string][]*core.Event  `json:"events_active"`
	EventsHistory []*core.Event             `json:"events_history"`
}

// NewState returns an empty stopped state.
func NewState() *State {
	return &State{
		Status:       core.StatusStopped,
		TriggerLog:   map[string]time.Time{},
		EventsActive: map[string][]*core.Event{},
	}
}

// Depth returns the schedule stack depth.
func (s *State) Depth() int { return len(s.ScheduleStack) }

// Top returns the active schedule and its context, or nils when the stack
// is empty.
func (s *State) Top() (*core.Schedule, *core.Context) {
	if len(s.ScheduleStack) == 0 {
		return nil, nil
	}
	return s.ScheduleStack[len(s.ScheduleStack)-1], s.ContextStack[len(s.ContextStack)-1]
}

// Push places a schedule and a fresh context on top of the stacks.
func (s *State) Push(sched *core.Schedule, ctx *core.Context) {
	s.ScheduleStack = append(s.ScheduleStack, sched)
	s.ContextStack = append(s.ContextStack, ctx)
}

// Pop removes the top schedule and its context. It returns false when the
// stack is already empty.
func (s *State) Pop() bool {
	if len(s.ScheduleStack) == 0 {
		return false
	}
	s.ScheduleStack = s.ScheduleStack[:len(s.ScheduleStack)-1]
	s.ContextStack = s.ContextStack[:len(s.ContextStack)-1]
	return true
}

// PruneTriggerLog drops execution-log entries older than cutoff, returning
// how many were removed. Candidates outside the firing window can never be
// offered again, so their dedup entries are dead weight.
func (s *State) PruneTriggerLog(cutoff time.Time) int {
	removed := 0
	for k, at := range s.TriggerLog {
		if at.Before(cutoff) {
			delete(s.TriggerLog, k)
			removed++
		}
	}
	return removed
}

// Normalize canonicalizes timestamps to UTC prior to serialization.
func (s *State) Normalize() {
	s.LastUpdated = s.LastUpdated.UTC()
	for k, t := range s.TriggerLog {
		s.TriggerLog[k] = t.UTC()
	}
	for _, entries := range s.EventsActive {
		for _, e := range entries {
			normalizeEvent(e)
		}
	}
	for _, e := range s.EventsHistory {
		normalizeEvent(e)
	}
	for _, c := range s.ContextStack {
		if c.WaitUntil != nil {
			t := c.WaitUntil.UTC()
			c.WaitUntil = &t
		}
		if c.LastWaitLog != nil {
			t := c.LastWaitLog.UTC()
			c.LastWaitLog = &t
		}
	}
}

func normalizeEvent(e *core.Event) {
	e.ActiveFrom = e.ActiveFrom.UTC()
	e.Expires = e.Expires.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if e.ConsumedAt != nil {
		t := e.ConsumedAt.UTC()
		e.ConsumedAt = &t
	}
}

// Store loads and saves per-destination state.
type Store interface {
	// Load returns the persisted state for a destination, or ErrNotFound.
	Load(ctx context.Context, dest string) (*State, error)

	// Save atomically writes the full snapshot. It always writes, even
	// when nothing changed, so last_updated is touched for external
	// watchers.
	Save(ctx context.Context, dest string, state *State) error

	// Update merges the non-zero fields of patch into the persisted
	// state and saves the result. Omitted fields keep their current
	// values.
	Update(ctx context.Context, dest string, patch *State) (*State, error)

	// List returns the destinations that have persisted state.
	List(ctx context.Context) ([]string, error)

	// Remove deletes a destination's persisted state.
	Remove(ctx context.Context, dest string) error
}
