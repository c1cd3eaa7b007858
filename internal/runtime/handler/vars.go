package handler

import (
	"context"
	"math/rand"
	"strconv"
	"strings"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/registry"
)

func init() {
	Register(core.ActionSetVar, handleSetVar)
	Register(core.ActionRandomChoice, handleRandomChoice)
	Register(core.ActionImportVar, handleImportVar)
	Register(core.ActionExportVar, handleExportVar)
}

// handleSetVar assigns a context variable. A null var clears the whole
// variable map; a null value for a previously exported variable also tears
// the export down.
func handleSetVar(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	raw, ok := in.Get("var")
	if ok && raw == nil {
		env.Context.ClearVars()
		env.Log("cleared all variables")
		return OutcomeContinue, nil
	}

	name := in.Str("var")
	if name == "" {
		logger.Warn(ctx, "set_var without a variable name", tag.Destination(env.Destination))
		return OutcomeContinue, nil
	}

	value, _ := in.Get("value")
	if s, isStr := value.(string); isStr {
		value = coerceScalar(s)
	}

	if value == nil {
		delete(env.Context.Vars, name)
		if env.Registry != nil && env.Registry.IsExportedBy(name, env.Destination) && env.Vars != nil {
			env.Vars.DropExport(ctx, name, env.Destination)
			env.Log("removed export of %s", name)
		}
		return OutcomeContinue, nil
	}

	env.Context.SetVar(name, value)
	env.Log("set %s", name)

	// Propagation is not gated on an export: destination-scoped imports of
	// plain variables track changes too. The host filters by binding, so
	// this is a no-op without importers.
	if env.Vars != nil {
		env.Vars.Propagate(ctx, name, value, env.Destination)
	}
	return OutcomeContinue, nil
}

// coerceScalar converts strings that parse cleanly as integer, float, or
// boolean into their typed values.
func coerceScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func handleRandomChoice(_ context.Context, env *Env, in core.Instruction) (Outcome, error) {
	name := in.Str("var")
	choices := in.List("choices")
	if name == "" || len(choices) == 0 {
		return OutcomeContinue, nil
	}
	pick := choices[rand.Intn(len(choices))] //nolint:gosec
	env.Context.SetVar(name, pick)
	env.Log("chose %v for %s", pick, name)
	return OutcomeContinue, nil
}

// handleImportVar wires a variable from another destination, a group, or
// global scope into this context under a local alias, and reads its current
// value immediately.
func handleImportVar(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	name := in.Str("var")
	if name == "" {
		return OutcomeContinue, nil
	}
	alias := in.Str("as")
	if alias == "" {
		alias = name
	}
	source := in.Str("from")
	if source == "" {
		source = "global"
	}

	sourceType := registry.SourceDestination
	var owner string
	switch {
	case source == "global":
		sourceType = registry.SourceScope
		if info, ok := env.Registry.ExportOf("global", name); ok {
			owner = info.Owner
		}
	case env.Groups != nil && len(env.Groups.DestinationsOf(source)) > 0:
		sourceType = registry.SourceGroup
		if info, ok := env.Registry.ExportOf(source, name); ok {
			owner = info.Owner
		}
	default:
		owner = source
	}

	if err := env.Registry.RegisterImport(name, env.Destination, alias, sourceType, source); err != nil {
		return OutcomeContinue, err
	}

	if owner != "" && env.Vars != nil {
		if value, ok := env.Vars.ReadVar(ctx, owner, name); ok {
			env.Context.SetVar(alias, value)
		}
	}
	env.Log("imported %s from %s as %s", name, source, alias)
	return OutcomeContinue, nil
}

// handleExportVar publishes a context variable to global scope or a group
// and pushes its current value to any existing importers.
func handleExportVar(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	name := in.Str("var")
	if name == "" {
		return OutcomeContinue, nil
	}
	scope := in.Str("scope")
	if scope == "" {
		scope = "global"
	}

	if err := env.Registry.RegisterExport(scope, name, env.Destination, in.Str("friendly_name")); err != nil {
		return OutcomeContinue, err
	}
	env.Log("exported %s to %s", name, scope)

	if value, ok := env.Context.Vars[name]; ok && env.Vars != nil {
		env.Vars.Propagate(ctx, name, value, env.Destination)
	}
	return OutcomeContinue, nil
}
