package template

import (
	"fmt"

	"github.com/gjbm2/screen-machine/internal/core"
)

// ResolveInstruction returns a copy of the instruction with every string
// field (including strings nested in lists and maps) rendered against vars.
func ResolveInstruction(e Engine, in core.Instruction, vars map[string]any) (core.Instruction, error) {
	fields := make(map[string]any, len(in.Fields))
	for k, v := range in.Fields {
		resolved, err := resolveValue(e, v, vars)
		if err != nil {
			return in, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = resolved
	}
	return core.Instruction{Action: in.Action, Fields: fields}, nil
}

func resolveValue(e Engine, v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return e.Render(t, vars)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			resolved, err := resolveValue(e, item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			resolved, err := resolveValue(e, item, vars)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}
