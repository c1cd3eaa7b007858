// Package duration parses the compact duration strings used by schedule
// documents: an integer (or decimal) count with a unit suffix s, m, h, or d.
// Bare numbers take a caller-supplied default unit, since event TTLs default
// to seconds while waits default to minutes.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var pattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)([smhd]?)$`)

// Unit multipliers for the supported suffixes.
var units = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Parse parses a duration string such as "30s", "5m", "2h", or "1d".
// A bare number is interpreted in defaultUnit.
func Parse(s string, defaultUnit time.Duration) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	unit := defaultUnit
	if m[2] != "" {
		unit = units[m[2]]
	}

	return time.Duration(n * float64(unit)), nil
}

// ParseSeconds parses a duration string with bare numbers meaning seconds.
func ParseSeconds(s string) (time.Duration, error) {
	return Parse(s, time.Second)
}

// ParseMinutes parses a duration string with bare numbers meaning minutes.
func ParseMinutes(s string) (time.Duration, error) {
	return Parse(s, time.Minute)
}
