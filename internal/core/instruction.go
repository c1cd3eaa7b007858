package core

import (
	"encoding/json"
	"fmt"
)

// Action identifies an instruction kind. The set of kinds is closed;
// dispatch happens through the handler registry keyed by Action.
type Action string

const (
	ActionSetVar        Action = "set_var"
	ActionRandomChoice  Action = "random_choice"
	ActionWait          Action = "wait"
	ActionSleep         Action = "sleep"
	ActionUnload        Action = "unload"
	ActionTerminate     Action = "terminate"
	ActionLog           Action = "log"
	ActionThrowEvent    Action = "throw_event"
	ActionImportVar     Action = "import_var"
	ActionExportVar     Action = "export_var"
	ActionGenerate      Action = "generate"
	ActionAnimate       Action = "animate"
	ActionDisplay       Action = "display"
	ActionPublish       Action = "publish"
	ActionPurge         Action = "purge"
	ActionReason        Action = "reason"
	ActionDeviceWake    Action = "device_wake"
	ActionDeviceSleep   Action = "device_sleep"
	ActionDeviceStandby Action = "device_standby"
	ActionDeviceSync    Action = "device_media_sync"
)

// actions is the closed set of known instruction kinds.
var actions = map[Action]struct{}{
	ActionSetVar: {}, ActionRandomChoice: {}, ActionWait: {}, ActionSleep: {},
	ActionUnload: {}, ActionTerminate: {}, ActionLog: {}, ActionThrowEvent: {},
	ActionImportVar: {}, ActionExportVar: {}, ActionGenerate: {}, ActionAnimate: {},
	ActionDisplay: {}, ActionPublish: {}, ActionPurge: {}, ActionReason: {},
	ActionDeviceWake: {}, ActionDeviceSleep: {}, ActionDeviceStandby: {}, ActionDeviceSync: {},
}

// KnownAction reports whether a is a recognized instruction kind.
func KnownAction(a Action) bool {
	_, ok := actions[a]
	return ok
}

// Instruction is a single schedulable operation. Beyond the action tag the
// fields are schema-validated but dynamically typed, because event payloads
// and template strings flow through them untouched until execution time.
type Instruction struct {
	Action Action
	Fields map[string]any
}

// NewInstruction constructs an instruction from an action and its fields.
func NewInstruction(action Action, fields map[string]any) Instruction {
	if fields == nil {
		fields = map[string]any{}
	}
	return Instruction{Action: action, Fields: fields}
}

// Str returns the named field as a string. Missing or non-string fields
// yield the empty string.
func (in Instruction) Str(key string) string {
	if v, ok := in.Fields[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the named field as a bool, with ok reporting presence.
func (in Instruction) Bool(key string) (bool, bool) {
	v, ok := in.Fields[key].(bool)
	return v, ok
}

// Get returns the raw value of the named field.
func (in Instruction) Get(key string) (any, bool) {
	v, ok := in.Fields[key]
	return v, ok
}

// Has reports whether the named field is present, even if null.
func (in Instruction) Has(key string) bool {
	_, ok := in.Fields[key]
	return ok
}

// List returns the named field as a slice.
func (in Instruction) List(key string) []any {
	if v, ok := in.Fields[key].([]any); ok {
		return v
	}
	return nil
}

// MarshalJSON flattens the action tag and the fields into one object.
func (in Instruction) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(in.Fields)+1)
	for k, v := range in.Fields {
		m[k] = v
	}
	m["action"] = string(in.Action)
	return json.Marshal(m)
}

// UnmarshalJSON splits the action tag from the remaining fields.
func (in *Instruction) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	action, ok := m["action"].(string)
	if !ok {
		return fmt.Errorf("instruction is missing an action tag")
	}
	delete(m, "action")
	in.Action = Action(action)
	in.Fields = m
	return nil
}
