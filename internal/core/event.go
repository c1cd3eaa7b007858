package core

import "time"

// EventStatus is the lifecycle state of an event entry.
type EventStatus string

const (
	EventActive   EventStatus = "ACTIVE"
	EventConsumed EventStatus = "CONSUMED"
	EventExpired  EventStatus = "EXPIRED"
)

// ScopeGlobal fans an event out to every known destination.
const ScopeGlobal = "global"

// Internal event keys used by the terminate pathway. They re-enter the
// runtime through the normal urgent-event path instead of calling back into
// the loop directly.
const (
	EventKeyTerminate          = "__terminate__"
	EventKeyTerminateImmediate = "__terminate_immediate__"
	EventKeyExitBlock          = "__exit_block__"
)

// Event is a named, possibly-delayed, TTL-bounded signal routed to one or
// more destinations. Entries fanned out from a single throw share a family
// ID so that single-consumer semantics can purge peers.
type Event struct {
	Key            string      `json:"key"`
	DisplayName    string      `json:"display_name,omitempty"`
	Payload        any         `json:"payload,omitempty"`
	ActiveFrom     time.Time   `json:"active_from"`
	Expires        time.Time   `json:"expires"`
	CreatedAt      time.Time   `json:"created_at"`
	UniqueID       string      `json:"unique_id"`
	FamilyID       string      `json:"family_id"`
	SingleConsumer bool        `json:"single_consumer,omitempty"`
	Status         EventStatus `json:"status"`
	ConsumedBy     string      `json:"consumed_by,omitempty"`
	ConsumedAt     *time.Time  `json:"consumed_at,omitempty"`
}

// Visible reports whether the entry is consumable at the given time.
func (e *Event) Visible(now time.Time) bool {
	return e.Status == EventActive && !e.ActiveFrom.After(now) && e.Expires.After(now)
}

// IsExpired reports whether the entry's TTL has elapsed.
func (e *Event) IsExpired(now time.Time) bool {
	return !e.Expires.After(now)
}
