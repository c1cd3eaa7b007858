// Package handler implements one handler per instruction kind. Handlers are
// a tag-to-function table; instruction kinds are a closed sum, so an
// unregistered action is a validation bug, not an extension point.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gjbm2/screen-machine/internal/collab"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/eventstore"
	"github.com/gjbm2/screen-machine/internal/registry"
	"github.com/gjbm2/screen-machine/internal/template"
)

// Outcome tells the runtime what to do after an instruction.
type Outcome int

const (
	// OutcomeContinue stays in the schedule.
	OutcomeContinue Outcome = iota

	// OutcomeExitBlock drops the remaining non-important entries of the
	// current block.
	OutcomeExitBlock

	// OutcomeUnload pops the top schedule.
	OutcomeUnload
)

// VarHost gives handlers access to cross-destination variable wiring. It is
// implemented by the runtime manager, which owns the live contexts.
type VarHost interface {
	// Propagate writes a changed exported value into every importer's
	// top context under its local alias.
	Propagate(ctx context.Context, varName string, value any, owner string)

	// DropExport removes the export entry for varName and clears the
	// aliases of its importers.
	DropExport(ctx context.Context, varName, owner string)

	// ReadVar reads a variable from another destination's top context.
	ReadVar(ctx context.Context, dest, varName string) (any, bool)
}

// Env is the execution environment one instruction runs in.
type Env struct {
	Destination string
	Schedule    *core.Schedule
	Context     *core.Context
	Now         time.Time

	Engine   template.Engine
	Collab   collab.Set
	Events   *eventstore.Store
	Groups   eventstore.GroupResolver
	Registry *registry.Registry
	Vars     VarHost

	// LogSink appends one line to the per-destination log ring.
	LogSink func(string)

	// Suspend releases the runtime lock for the duration of a blocking
	// collaborator call; the returned func re-acquires it. Nil when the
	// caller holds no lock.
	Suspend func() func()
}

// Log writes to the destination's log ring, if one is attached.
func (e *Env) Log(format string, args ...any) {
	if e.LogSink != nil {
		e.LogSink(fmt.Sprintf(format, args...))
	}
}

// Blocking runs fn with the runtime lock released, so a slow collaborator
// never stalls the other destinations' loops. State must not be touched
// inside fn.
func (e *Env) Blocking(fn func() error) error {
	if e.Suspend != nil {
		resume := e.Suspend()
		defer resume()
	}
	return fn()
}

// Func executes one instruction. The instruction's string fields have
// already been template-resolved against the current context.
type Func func(ctx context.Context, env *Env, in core.Instruction) (Outcome, error)

var handlerRegistry = make(map[core.Action]Func)

// Register registers the handler for an instruction kind.
func Register(action core.Action, fn Func) {
	handlerRegistry[action] = fn
}

// Dispatch resolves the instruction's templates against the current context
// and runs its handler.
func Dispatch(ctx context.Context, env *Env, in core.Instruction) (Outcome, error) {
	fn, ok := handlerRegistry[in.Action]
	if !ok {
		return OutcomeContinue, fmt.Errorf("action %q is not registered", in.Action)
	}

	resolved, err := template.ResolveInstruction(env.Engine, in, env.Context.Vars)
	if err != nil {
		return OutcomeContinue, fmt.Errorf("template resolution failed: %w", err)
	}

	return fn(ctx, env, resolved)
}
