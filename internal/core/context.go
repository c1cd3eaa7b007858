package core

import "time"

// EventVar is the context variable name the consumed event payload is bound
// to while an event trigger's block executes.
const EventVar = "_event"

// Context holds the per-destination variable map plus transient scheduler
// fields. Contexts form a stack parallel to the schedule stack.
type Context struct {
	Vars               map[string]any `json:"vars"`
	WaitUntil          *time.Time     `json:"wait_until,omitempty"`
	LastWaitLog        *time.Time     `json:"last_wait_log,omitempty"`
	PublishDestination string         `json:"publish_destination"`
	Stopping           bool           `json:"stopping,omitempty"`
}

// NewContext returns an empty context for the given destination.
func NewContext(dest string) *Context {
	return &Context{
		Vars:               map[string]any{},
		PublishDestination: dest,
	}
}

// InWait reports whether the context has an unreached wait deadline.
func (c *Context) InWait(now time.Time) bool {
	return c.WaitUntil != nil && now.Before(*c.WaitUntil)
}

// ClearWait removes any wait deadline.
func (c *Context) ClearWait() {
	c.WaitUntil = nil
	c.LastWaitLog = nil
}

// SetVar assigns a variable, allocating the map if needed.
func (c *Context) SetVar(name string, value any) {
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
	c.Vars[name] = value
}

// ClearVars empties the variable map.
func (c *Context) ClearVars() {
	c.Vars = map[string]any{}
}
