// Package tag provides standardized attribute constructors for structured
// logging. Use these instead of raw key strings so that log output stays
// consistent across the codebase.
package tag

import (
	"log/slog"
	"time"
)

// Error is the standard tag for error objects.
func Error(err error) slog.Attr { return slog.Any("err", err) }

// Destination identifies a destination by ID.
func Destination(id string) slog.Attr { return slog.String("destination", id) }

// Group identifies a destination group by name.
func Group(name string) slog.Attr { return slog.String("group", name) }

// Event identifies an event by key.
func Event(key string) slog.Attr { return slog.String("event", key) }

// EventID identifies a specific event entry.
func EventID(id string) slog.Attr { return slog.String("event-id", id) }

// Scope identifies an event scope (destination, group, or global).
func Scope(scope string) slog.Attr { return slog.String("scope", scope) }

// Action identifies an instruction kind.
func Action(action string) slog.Attr { return slog.String("action", action) }

// Var identifies a context variable by name.
func Var(name string) slog.Attr { return slog.String("var", name) }

// Source identifies the origin of an instruction block
// (initial, trigger, event, final).
func Source(source string) slog.Attr { return slog.String("source", source) }

// Status identifies a scheduler or event status value.
func Status(status string) slog.Attr { return slog.String("status", status) }

// File is the tag for file paths.
func File(path string) slog.Attr { return slog.String("file", path) }

// Dir is the tag for directory paths.
func Dir(path string) slog.Attr { return slog.String("dir", path) }

// Count tags a generic item count.
func Count(n int) slog.Attr { return slog.Int("count", n) }

// Interval tags a duration value.
func Interval(d time.Duration) slog.Attr { return slog.Duration("interval", d) }

// Time tags an absolute timestamp.
func Time(t time.Time) slog.Attr { return slog.Time("time", t) }

// Urgent tags the urgent flag of a block.
func Urgent(v bool) slog.Attr { return slog.Bool("urgent", v) }

// Important tags the important flag of a block.
func Important(v bool) slog.Attr { return slog.Bool("important", v) }
