package eventstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjbm2/screen-machine/internal/core"
)

type staticGroups struct {
	groups map[string][]string
	all    []string
}

func (g staticGroups) DestinationsOf(name string) []string { return g.groups[name] }
func (g staticGroups) AllDestinations() []string           { return g.all }

func testGroups() staticGroups {
	return staticGroups{
		groups: map[string][]string{"lounge": {"north", "south"}},
		all:    []string{"north", "south", "kitchen"},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_ThrowAndPop(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	res, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "user_arrived"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen"}, res.Destinations)
	assert.Equal(t, now, res.ActiveFrom)

	e := s.PopNext("kitchen", "user_arrived", now)
	require.NotNil(t, e)
	assert.Equal(t, "user_arrived", e.Key)
	assert.Equal(t, core.EventConsumed, e.Status)
	assert.Equal(t, "kitchen", e.ConsumedBy)

	// Consuming is destructive; a second pop finds nothing.
	assert.Nil(t, s.PopNext("kitchen", "user_arrived", now))
}

func TestStore_ThrowRequiresKey(t *testing.T) {
	t.Parallel()
	s := New(testGroups())
	_, err := s.Throw(ThrowOptions{Scope: "kitchen"})
	require.Error(t, err)
}

func TestStore_ScopeResolution(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Group", func(t *testing.T) {
		t.Parallel()
		s := New(testGroups(), WithClock(fixedClock(now)))
		res, err := s.Throw(ThrowOptions{Scope: "lounge", Key: "evt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"north", "south"}, res.Destinations)
	})

	t.Run("Global", func(t *testing.T) {
		t.Parallel()
		s := New(testGroups(), WithClock(fixedClock(now)))
		res, err := s.Throw(ThrowOptions{Scope: core.ScopeGlobal, Key: "evt"})
		require.NoError(t, err)
		assert.Len(t, res.Destinations, 3)
	})

	t.Run("GlobalWithNoDestinations", func(t *testing.T) {
		t.Parallel()
		s := New(staticGroups{}, WithClock(fixedClock(now)))
		_, err := s.Throw(ThrowOptions{Scope: core.ScopeGlobal, Key: "evt"})
		assert.ErrorIs(t, err, ErrUnknownScope)
	})

	t.Run("UnknownNameIsSingleDestination", func(t *testing.T) {
		t.Parallel()
		s := New(testGroups(), WithClock(fixedClock(now)))
		res, err := s.Throw(ThrowOptions{Scope: "attic", Key: "evt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"attic"}, res.Destinations)
	})
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	_, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt", TTL: "30"})
	require.NoError(t, err)

	// Bare TTL integers are seconds.
	assert.Nil(t, s.PopNext("kitchen", "evt", now.Add(31*time.Second)))

	hist := s.HistoryFor("kitchen")
	require.Len(t, hist, 1)
	assert.Equal(t, core.EventExpired, hist[0].Status)
}

func TestStore_DelayedActivation(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	res, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt", Delay: "2m", TTL: "60"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Minute), res.ActiveFrom)

	// Invisible until activation; the TTL runs from activation, not throw.
	assert.Nil(t, s.PopNext("kitchen", "evt", now))
	assert.Nil(t, s.PopNext("kitchen", "evt", now.Add(time.Minute)))
	assert.NotNil(t, s.PopNext("kitchen", "evt", now.Add(2*time.Minute)))
}

func TestStore_FutureTime(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	future := now.Add(time.Hour)
	res, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt", FutureTime: &future})
	require.NoError(t, err)
	assert.Equal(t, future, res.ActiveFrom)

	// A past future_time clamps to now instead of creating an event that
	// was born expired.
	past := now.Add(-time.Hour)
	res, err = s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt2", FutureTime: &past})
	require.NoError(t, err)
	assert.Equal(t, now, res.ActiveFrom)
}

func TestStore_FIFOWithinKey(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	// Thrown second but active first.
	_, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt", Delay: "10m", TTL: "1h", DisplayName: "late"})
	require.NoError(t, err)
	_, err = s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt", TTL: "1h", DisplayName: "early"})
	require.NoError(t, err)

	at := now.Add(15 * time.Minute)
	first := s.PopNext("kitchen", "evt", at)
	require.NotNil(t, first)
	assert.Equal(t, "early", first.DisplayName)

	second := s.PopNext("kitchen", "evt", at)
	require.NotNil(t, second)
	assert.Equal(t, "late", second.DisplayName)
}

func TestStore_SingleConsumerPurgesPeers(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	_, err := s.Throw(ThrowOptions{Scope: "lounge", Key: "evt", SingleConsumer: true, TTL: "1h"})
	require.NoError(t, err)

	require.NotNil(t, s.PopNext("north", "evt", now))
	assert.Nil(t, s.PopNext("south", "evt", now))
}

func TestStore_FanOutWithoutSingleConsumer(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	_, err := s.Throw(ThrowOptions{Scope: "lounge", Key: "evt", TTL: "1h"})
	require.NoError(t, err)

	require.NotNil(t, s.PopNext("north", "evt", now))
	require.NotNil(t, s.PopNext("south", "evt", now))
}

func TestStore_HistoryBound(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)), WithMaxHistory(5))

	for i := 0; i < 8; i++ {
		_, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: fmt.Sprintf("evt%d", i), TTL: "1h"})
		require.NoError(t, err)
		require.NotNil(t, s.PopNext("kitchen", fmt.Sprintf("evt%d", i), now))
	}

	hist := s.HistoryFor("kitchen")
	require.Len(t, hist, 5)
	assert.Equal(t, "evt3", hist[0].Key)
	assert.Equal(t, "evt7", hist[4].Key)
}

func TestStore_ExpireAll(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	_, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "short", TTL: "10"})
	require.NoError(t, err)
	_, err = s.Throw(ThrowOptions{Scope: "kitchen", Key: "long", TTL: "1h"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.ExpireAll(now.Add(time.Minute)))
	assert.NotNil(t, s.PopNext("kitchen", "long", now.Add(time.Minute)))
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	_, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "a", TTL: "1h"})
	require.NoError(t, err)
	_, err = s.Throw(ThrowOptions{Scope: "kitchen", Key: "b", TTL: "1h"})
	require.NoError(t, err)

	s.Clear("kitchen", "a")
	assert.Nil(t, s.PopNext("kitchen", "a", now))
	assert.NotNil(t, s.PopNext("kitchen", "b", now))
}

func TestStore_SeedRestoresActive(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testGroups(), WithClock(fixedClock(now)))

	_, err := s.Throw(ThrowOptions{Scope: "kitchen", Key: "evt", TTL: "1h"})
	require.NoError(t, err)

	active := s.ActiveFor("kitchen")
	history := s.HistoryFor("kitchen")

	restored := New(testGroups(), WithClock(fixedClock(now)))
	restored.Seed("kitchen", active, history)
	assert.NotNil(t, restored.PopNext("kitchen", "evt", now))
}
