package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Hash(t *testing.T) {
	t.Parallel()

	a := &Schedule{Name: "x", InitialActions: []Instruction{
		NewInstruction(ActionLog, map[string]any{"message": "hi"}),
	}}
	b := &Schedule{Name: "x", InitialActions: []Instruction{
		NewInstruction(ActionLog, map[string]any{"message": "hi"}),
	}}
	c := &Schedule{Name: "y"}

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Len(t, a.Hash(), 16)
}

func TestRepeatSchedule_Unmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      string
		wantEvery float64
		wantUntil string
		wantErr   bool
	}{
		{name: "Number", data: `{"every": 5}`, wantEvery: 5},
		{name: "Fractional", data: `{"every": 0.5, "until": "23:00"}`, wantEvery: 0.5, wantUntil: "23:00"},
		{name: "QuotedNumber", data: `{"every": "1.5"}`, wantEvery: 1.5},
		{name: "Garbage", data: `{"every": "soon"}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var r RepeatSchedule
			err := json.Unmarshal([]byte(tc.data), &r)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.wantEvery, r.Every, 1e-9)
			assert.Equal(t, tc.wantUntil, r.Until)
		})
	}
}

func TestActionsBlock_Flags(t *testing.T) {
	t.Parallel()

	yes, no := true, false

	tests := []struct {
		name          string
		block         *ActionsBlock
		trigU, trigI  bool
		wantU, wantI  bool
	}{
		{name: "NilInherits", block: nil, trigU: true, trigI: false, wantU: true, wantI: false},
		{name: "UnsetInherits", block: &ActionsBlock{}, trigU: false, trigI: true, wantU: false, wantI: true},
		{name: "OverrideUrgent", block: &ActionsBlock{Urgent: &no}, trigU: true, wantU: false},
		{name: "OverrideBoth", block: &ActionsBlock{Urgent: &yes, Important: &yes}, wantU: true, wantI: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u, i := tc.block.Flags(tc.trigU, tc.trigI)
			assert.Equal(t, tc.wantU, u)
			assert.Equal(t, tc.wantI, i)
		})
	}
}

func TestInstruction_JSONRoundtrip(t *testing.T) {
	t.Parallel()

	in := NewInstruction(ActionSetVar, map[string]any{"var": "mode", "value": "night"})
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Instruction
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, ActionSetVar, out.Action)
	assert.Equal(t, "mode", out.Str("var"))

	// The action tag never leaks into the fields.
	assert.False(t, out.Has("action"))
}

func TestInstruction_UnmarshalRequiresAction(t *testing.T) {
	t.Parallel()

	var in Instruction
	err := json.Unmarshal([]byte(`{"var": "x"}`), &in)
	require.Error(t, err)
}

func TestEvent_Visibility(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Event{
		Key:        "evt",
		ActiveFrom: base,
		Expires:    base.Add(time.Minute),
		Status:     EventActive,
	}

	assert.False(t, e.Visible(base.Add(-time.Second)))
	assert.True(t, e.Visible(base))
	assert.True(t, e.Visible(base.Add(59*time.Second)))
	assert.False(t, e.Visible(base.Add(time.Minute)))
	assert.True(t, e.IsExpired(base.Add(time.Minute)))

	e.Status = EventConsumed
	assert.False(t, e.Visible(base))
}
