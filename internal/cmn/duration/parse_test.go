package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		defaultUnit time.Duration
		want        time.Duration
		wantErr     bool
	}{
		{name: "Seconds", input: "30s", defaultUnit: time.Minute, want: 30 * time.Second},
		{name: "Minutes", input: "5m", defaultUnit: time.Second, want: 5 * time.Minute},
		{name: "Hours", input: "2h", defaultUnit: time.Second, want: 2 * time.Hour},
		{name: "Days", input: "1d", defaultUnit: time.Second, want: 24 * time.Hour},
		{name: "BareDefaultsToSeconds", input: "60", defaultUnit: time.Second, want: time.Minute},
		{name: "BareDefaultsToMinutes", input: "60", defaultUnit: time.Minute, want: time.Hour},
		{name: "Fractional", input: "0.5m", defaultUnit: time.Second, want: 30 * time.Second},
		{name: "FractionalBare", input: "1.5", defaultUnit: time.Minute, want: 90 * time.Second},
		{name: "Empty", input: "", defaultUnit: time.Second, wantErr: true},
		{name: "UnknownUnit", input: "5w", defaultUnit: time.Second, wantErr: true},
		{name: "Negative", input: "-5s", defaultUnit: time.Second, wantErr: true},
		{name: "Garbage", input: "soon", defaultUnit: time.Second, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.input, tc.defaultUnit)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	got, err := ParseSeconds("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, got)

	got, err = ParseMinutes("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, got)
}
