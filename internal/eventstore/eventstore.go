// Package eventstore holds the per-destination queues of pending events and
// a bounded history of consumed and expired ones. It is a process-wide
// store; destination loops coordinate through it under a single mutex.
package eventstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gjbm2/screen-machine/internal/cmn/duration"
	"github.com/gjbm2/screen-machine/internal/core"
)

// MaxEventHistory bounds the per-destination history ring.
const MaxEventHistory = 50

// ErrUnknownScope is returned when a throw scope matches no destination.
var ErrUnknownScope = errors.New("scope matches no destination")

// GroupResolver resolves event scopes to destinations. Group membership is
// read-only configuration.
type GroupResolver interface {
	DestinationsOf(group string) []string
	AllDestinations() []string
}

// ThrowOptions describes one throw operation.
type ThrowOptions struct {
	// Scope is a destination ID, a group name, or "global".
	Scope string

	Key         string
	DisplayName string
	Payload     any

	// TTL is a duration string; bare integers mean seconds.
	TTL string

	// Delay postpones activation by a duration; FutureTime sets an
	// absolute activation time. Delay wins if both are given.
	Delay      string
	FutureTime *time.Time

	SingleConsumer bool
}

// ThrowResult reports where the event landed.
type ThrowResult struct {
	Destinations []string
	UniqueID     string
	ActiveFrom   time.Time
}

// Store is the process-wide event store. One mutex guards all queues;
// critical sections are small and contention across destination loops is
// low.
type Store struct {
	mu         sync.Mutex
	groups     GroupResolver
	clock      func() time.Time
	maxHistory int

	active  map[string]map[string][]*core.Event
	history map[string][]*core.Event
}

// Option defines functional options for the store.
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithMaxHistory overrides the history bound.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		s.maxHistory = n
	}
}

// New creates an event store resolving scopes through groups.
func New(groups GroupResolver, opts ...Option) *Store {
	s := &Store{
		groups:     groups,
		clock:      time.Now,
		maxHistory: MaxEventHistory,
		active:     map[string]map[string][]*core.Event{},
		history:    map[string][]*core.Event{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Throw creates one event entry per destination in the scope. Fan-out
// entries each get their own unique ID but share a family ID so that
// single-consumer consumption can purge peers.
func (s *Store) Throw(opts ThrowOptions) (ThrowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Key == "" {
		return ThrowResult{}, errors.New("event key is empty")
	}

	dests, err := s.resolveScope(opts.Scope)
	if err != nil {
		return ThrowResult{}, err
	}

	now := s.clock()
	activeFrom := now
	switch {
	case opts.Delay != "":
		d, err := duration.ParseSeconds(opts.Delay)
		if err != nil {
			return ThrowResult{}, fmt.Errorf("invalid delay: %w", err)
		}
		activeFrom = now.Add(d)
	case opts.FutureTime != nil:
		activeFrom = *opts.FutureTime
	}
	if activeFrom.Before(now) {
		activeFrom = now
	}

	ttl := opts.TTL
	if ttl == "" {
		ttl = "60"
	}
	d, err := duration.ParseSeconds(ttl)
	if err != nil {
		return ThrowResult{}, fmt.Errorf("invalid ttl: %w", err)
	}
	expires := activeFrom.Add(d)

	familyID := uuid.NewString()
	for _, dest := range dests {
		entry := &core.Event{
			Key:            opts.Key,
			DisplayName:    opts.DisplayName,
			Payload:        opts.Payload,
			ActiveFrom:     activeFrom,
			Expires:        expires,
			CreatedAt:      now,
			UniqueID:       uuid.NewString(),
			FamilyID:       familyID,
			SingleConsumer: opts.SingleConsumer,
			Status:         core.EventActive,
		}
		s.insert(dest, entry)
	}

	return ThrowResult{Destinations: dests, UniqueID: familyID, ActiveFrom: activeFrom}, nil
}

func (s *Store) resolveScope(scope string) ([]string, error) {
	switch {
	case scope == core.ScopeGlobal:
		dests := s.groups.AllDestinations()
		if len(dests) == 0 {
			return nil, ErrUnknownScope
		}
		return dests, nil
	default:
		if members := s.groups.DestinationsOf(scope); len(members) > 0 {
			return members, nil
		}
		// Not a group; treat the scope as a single destination ID.
		return []string{scope}, nil
	}
}

// insert keeps the per-key queue FIFO-ordered by activation time then
// creation time.
func (s *Store) insert(dest string, entry *core.Event) {
	byKey := s.active[dest]
	if byKey == nil {
		byKey = map[string][]*core.Event{}
		s.active[dest] = byKey
	}
	queue := append(byKey[entry.Key], entry)
	sort.SliceStable(queue, func(i, j int) bool {
		if !queue[i].ActiveFrom.Equal(queue[j].ActiveFrom) {
			return queue[i].ActiveFrom.Before(queue[j].ActiveFrom)
		}
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	byKey[entry.Key] = queue
}

// PopNext consumes the earliest visible entry for the key. Expired entries
// encountered on the way are moved to history. There is no non-consuming
// peek by design; reading an event is consuming it.
func (s *Store) PopNext(dest, key string, now time.Time) *core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.active[dest]
	if byKey == nil {
		return nil
	}
	queue := byKey[key]

	var remaining []*core.Event
	var consumed *core.Event
	for _, entry := range queue {
		switch {
		case consumed == nil && entry.IsExpired(now):
			entry.Status = core.EventExpired
			s.appendHistory(dest, entry)
		case consumed == nil && entry.Visible(now):
			consumed = entry
		default:
			remaining = append(remaining, entry)
		}
	}

	if len(remaining) == 0 {
		delete(byKey, key)
	} else {
		byKey[key] = remaining
	}

	if consumed == nil {
		return nil
	}

	consumedAt := now
	consumed.Status = core.EventConsumed
	consumed.ConsumedBy = dest
	consumed.ConsumedAt = &consumedAt
	s.appendHistory(dest, consumed)

	if consumed.SingleConsumer {
		s.purgeFamily(consumed.FamilyID, dest)
	}
	return consumed
}

// purgeFamily removes the remaining entries of a fan-out family from every
// peer destination once one of them has consumed it.
func (s *Store) purgeFamily(familyID, consumer string) {
	for dest, byKey := range s.active {
		if dest == consumer {
			continue
		}
		for key, queue := range byKey {
			var kept []*core.Event
			for _, entry := range queue {
				if entry.FamilyID != familyID {
					kept = append(kept, entry)
				}
			}
			if len(kept) == 0 {
				delete(byKey, key)
			} else {
				byKey[key] = kept
			}
		}
	}
}

// Clear removes active entries for a destination; with a key it only clears
// that queue.
func (s *Store) Clear(dest, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.active[dest]
	if byKey == nil {
		return
	}
	if key == "" {
		delete(s.active, dest)
		return
	}
	delete(byKey, key)
}

// ExpireAll sweeps every destination's queues, moving expired entries to
// history. It returns the number of entries expired.
func (s *Store) ExpireAll(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for dest, byKey := range s.active {
		for key, queue := range byKey {
			var kept []*core.Event
			for _, entry := range queue {
				if entry.IsExpired(now) {
					entry.Status = core.EventExpired
					s.appendHistory(dest, entry)
					expired++
				} else {
					kept = append(kept, entry)
				}
			}
			if len(kept) == 0 {
				delete(byKey, key)
			} else {
				byKey[key] = kept
			}
		}
	}
	return expired
}

func (s *Store) appendHistory(dest string, entry *core.Event) {
	hist := append(s.history[dest], entry)
	if len(hist) > s.maxHistory {
		hist = hist[len(hist)-s.maxHistory:]
	}
	s.history[dest] = hist
}

// ActiveFor snapshots a destination's active queues for persistence.
func (s *Store) ActiveFor(dest string) map[string][]*core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.active[dest]
	out := make(map[string][]*core.Event, len(byKey))
	for key, queue := range byKey {
		entries := make([]*core.Event, len(queue))
		copy(entries, queue)
		out[key] = entries
	}
	return out
}

// HistoryFor snapshots a destination's event history for persistence.
func (s *Store) HistoryFor(dest string) []*core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.history[dest]
	out := make([]*core.Event, len(hist))
	copy(out, hist)
	return out
}

// Seed restores a destination's queues and history from a persisted
// snapshot during recovery.
func (s *Store) Seed(dest string, active map[string][]*core.Event, history []*core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := map[string][]*core.Event{}
	for key, queue := range active {
		for _, entry := range queue {
			if entry.Status == core.EventActive {
				byKey[key] = append(byKey[key], entry)
			}
		}
	}
	if len(byKey) > 0 {
		s.active[dest] = byKey
	} else {
		delete(s.active, dest)
	}
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	s.history[dest] = history
}
