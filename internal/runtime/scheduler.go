// Package runtime runs one cooperative scheduler loop per destination and
// the manager that owns them. Loops never share mutable state directly;
// coordination goes through the event store, the variable registry, and the
// persistence layer.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/queue"
	"github.com/gjbm2/screen-machine/internal/resolver"
	"github.com/gjbm2/screen-machine/internal/runtime/handler"
	"github.com/gjbm2/screen-machine/internal/statestore"
)

const (
	// TickInterval is the default trigger evaluation cadence.
	TickInterval = 2 * time.Second

	// EventSweepInterval is the default cadence of the expired-event sweep.
	EventSweepInterval = 30 * time.Second

	// yieldWait and yieldNormal are the end-of-pass sleeps. The shorter
	// wait-state yield keeps urgent interruption latency low.
	yieldWait   = 50 * time.Millisecond
	yieldNormal = 100 * time.Millisecond

	// pausedYield is the sleep between passes while paused.
	pausedYield = 500 * time.Millisecond

	// maxLogRing bounds the per-destination log ring.
	maxLogRing = 200
)

// loop is one destination's cooperative scheduler. All state access happens
// on the loop goroutine except the log ring and the variable map writes the
// manager performs under mu on behalf of other destinations.
type loop struct {
	dest string
	mgr  *Manager

	state *statestore.State
	queue *queue.Queue

	cancel context.CancelFunc
	done   chan struct{}

	// includeInitial marks the first resolver pass after a fresh start.
	// Resume after a process restart leaves it false.
	includeInitial bool

	// firstTick widens the trigger window to the grace window exactly
	// once, so work missed while the process was down is caught up.
	firstTick bool

	lastTick  time.Time
	lastSweep time.Time

	// eventBlocks tracks the queued blocks that were admitted from an
	// event trigger; _event is removed once all of them have drained.
	eventBlocks map[string]struct{}

	// pending holds hits that failed admission and would not be re-offered
	// by their trigger, such as a consumed event block dropped while the
	// queue was busy. They are re-offered on later passes.
	pending []resolver.Hit

	// finalsSpent stops the trigger-less drain from re-running final
	// actions when the follow-up terminate was vetoed by the schedule.
	finalsSpent bool

	logRing []string
	dirty   bool
}

// run is the loop goroutine. One pass per iteration; at most one instruction
// executes per pass.
func (l *loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.persist(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		l.mgr.mu.Lock()
		status := l.state.Status
		l.mgr.mu.Unlock()

		if status == core.StatusPaused {
			if !sleepCtx(ctx, pausedYield) {
				return
			}
			continue
		}
		if status == core.StatusStopped {
			return
		}

		now := l.mgr.clock()
		l.pass(ctx, now)

		l.mgr.mu.Lock()
		inWait := false
		if _, c := l.state.Top(); c != nil {
			inWait = c.InWait(now)
		}
		stopped := l.state.Status == core.StatusStopped
		l.mgr.mu.Unlock()

		if stopped {
			return
		}

		yield := yieldNormal
		if inWait {
			yield = yieldWait
		}
		if !sleepCtx(ctx, yield) {
			return
		}
	}
}

// pass is one scheduler iteration: sweep, resolve, internal events, execute.
func (l *loop) pass(ctx context.Context, now time.Time) {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.mgr.sweepInterval {
		l.lastSweep = now
		if n := l.mgr.events.ExpireAll(now); n > 0 {
			logger.Debug(ctx, "Expired events swept", tag.Count(n))
			l.dirty = true
		}
		// Entries past the grace window can never dedup anything again.
		if n := l.state.PruneTriggerLog(now.Add(-resolver.GraceWindow)); n > 0 {
			l.dirty = true
		}
	}

	sched, sctx := l.state.Top()
	if sched == nil {
		l.state.Status = core.StatusStopped
		l.dirty = true
		l.persistLocked(ctx)
		return
	}

	// A reached wait deadline is cleared here rather than by re-running
	// the wait instruction. The widened window on the next resolve catches
	// up candidates that fell due while the wait suppressed them.
	if sctx.WaitUntil != nil && !sctx.InWait(now) {
		sctx.ClearWait()
		l.firstTick = true
		l.log("wait complete")
		l.dirty = true
	}

	if now.Sub(l.lastTick) >= l.mgr.tickInterval {
		l.lastTick = now
		l.resolveAndAdmit(ctx, sched, sctx, now)
	}

	l.pollInternalEvents(ctx, sched, sctx, now)

	l.executeOne(ctx, sched, sctx, now)

	l.cleanupEventVar(sctx)

	if l.dirty {
		l.persistLocked(ctx)
	}
}

// resolveAndAdmit evaluates the schedule's triggers and pushes the due
// blocks through the wait-state admission rules.
func (l *loop) resolveAndAdmit(ctx context.Context, sched *core.Schedule, sctx *core.Context, now time.Time) {
	log := triggerLog{l.state}
	pending := l.pending
	l.pending = nil
	hits := resolver.Resolve(resolver.Request{
		Schedule:       sched,
		Destination:    l.dest,
		Now:            now,
		IncludeInitial: l.includeInitial,
		ApplyGrace:     l.firstTick,
		InWait:         sctx.InWait(now),
		Pending:        pending,
		Log:            log,
		Events:         l.mgr.events,
	})
	l.includeInitial = false
	l.firstTick = false

	for _, hit := range hits {
		if hit.Key != "" && log.Executed(hit.Key) {
			continue
		}
		inWait := sctx.InWait(now)
		if inWait && !hit.Urgent && !hit.Important {
			// Held for after the wait. Blocks a trigger re-offers on
			// its own are simply dropped.
			l.holdPending(hit)
			continue
		}
		if hit.Source == resolver.SourceFinal && l.finalsSpent {
			continue
		}

		blockID := uuid.NewString()
		instrs := hit.Instructions
		if hit.Source == resolver.SourceFinal {
			// A drained schedule unloads once its final block completes.
			instrs = make([]core.Instruction, 0, len(hit.Instructions)+1)
			for _, in := range hit.Instructions {
				instrs = append(instrs, stampFromEvent(in))
			}
			instrs = append(instrs, core.NewInstruction(core.ActionTerminate, map[string]any{
				"from_event": true,
			}))
		}

		if !l.queue.PushBlock(instrs, hit.Urgent, hit.Important, blockID, hit.Source) {
			l.holdPending(hit)
			continue
		}
		if hit.Key != "" {
			log.MarkExecuted(hit.Key, hit.At)
		}
		if hit.Event != nil {
			sctx.SetVar(core.EventVar, eventVarValue(hit.Event))
			l.eventBlocks[blockID] = struct{}{}
		}
		if hit.Source == resolver.SourceFinal {
			l.finalsSpent = true
		}
		l.dirty = true

		if hit.Urgent && inWait {
			// Urgent work interrupts the wait immediately; the next
			// resolve catches up what the wait suppressed.
			sctx.ClearWait()
			l.firstTick = true
			l.log("wait interrupted by urgent block")
		}

		logger.Debug(ctx, "Block admitted",
			tag.Destination(l.dest),
			tag.Source(hit.Source),
			tag.Urgent(hit.Urgent),
			tag.Important(hit.Important),
			tag.Count(len(hit.Instructions)))
	}
}

// holdPending records a hit to re-offer on a later pass. Final drain hits
// re-emit on their own, and duplicates of one candidate collapse.
func (l *loop) holdPending(hit resolver.Hit) {
	if hit.Source == resolver.SourceFinal {
		return
	}
	for _, p := range l.pending {
		if hit.Key != "" && p.Key == hit.Key {
			return
		}
	}
	l.pending = append(l.pending, hit)
}

// pollInternalEvents drains the terminate pathway's internal events and
// applies them. They bypass trigger matching so every schedule can be
// terminated, with or without event triggers of its own.
func (l *loop) pollInternalEvents(ctx context.Context, sched *core.Schedule, sctx *core.Context, now time.Time) {
	if e := l.mgr.events.PopNext(l.dest, core.EventKeyTerminate, now); e != nil {
		l.admitTerminate(sched, sctx, now)
	}
	if e := l.mgr.events.PopNext(l.dest, core.EventKeyTerminateImmediate, now); e != nil {
		if sched.PreventUnload {
			sctx.Stopping = true
			l.log("immediate terminate blocked by schedule; stopping")
		} else {
			l.admitImmediateTerminate(sctx, now)
		}
		l.dirty = true
	}
	if e := l.mgr.events.PopNext(l.dest, core.EventKeyExitBlock, now); e != nil {
		l.queue.RemoveNonImportant()
		l.log("exit_block: dropped queued non-important work")
		l.dirty = true
	}
}

// admitTerminate pushes final_actions plus an unloading follow-up as one
// urgent block. Terminate instructions inside final_actions are stamped
// from_event so they cannot re-emit.
func (l *loop) admitTerminate(sched *core.Schedule, sctx *core.Context, now time.Time) {
	instrs := make([]core.Instruction, 0, len(sched.FinalActions)+1)
	for _, in := range sched.FinalActions {
		instrs = append(instrs, stampFromEvent(in))
	}
	instrs = append(instrs, core.NewInstruction(core.ActionTerminate, map[string]any{
		"from_event": true,
	}))

	if sctx.InWait(now) {
		sctx.ClearWait()
	}
	l.queue.PushBlock(instrs, true, false, uuid.NewString(), resolver.SourceFinal)
	l.log("terminating: final actions queued")
	l.dirty = true
}

// admitImmediateTerminate unloads without running final_actions.
func (l *loop) admitImmediateTerminate(sctx *core.Context, now time.Time) {
	if sctx.InWait(now) {
		sctx.ClearWait()
	}
	instrs := []core.Instruction{
		core.NewInstruction(core.ActionTerminate, map[string]any{"from_event": true}),
	}
	l.queue.PushBlock(instrs, true, false, uuid.NewString(), resolver.SourceFinal)
	l.log("terminating immediately")
}

func stampFromEvent(in core.Instruction) core.Instruction {
	if in.Action != core.ActionTerminate {
		return in
	}
	fields := make(map[string]any, len(in.Fields)+1)
	for k, v := range in.Fields {
		fields[k] = v
	}
	fields["from_event"] = true
	return core.NewInstruction(in.Action, fields)
}

// executeOne pops and executes at most one instruction. During a wait only
// urgent entries are eligible.
func (l *loop) executeOne(ctx context.Context, sched *core.Schedule, sctx *core.Context, now time.Time) {
	entry := l.queue.PopNext(sctx.InWait(now))
	if entry == nil {
		l.logWaitProgress(sctx, now)
		return
	}
	l.dirty = true

	env := &handler.Env{
		Destination: l.dest,
		Schedule:    sched,
		Context:     sctx,
		Now:         now,
		Engine:      l.mgr.engine,
		Collab:      l.mgr.collab,
		Events:      l.mgr.events,
		Groups:      l.mgr.groups,
		Registry:    l.mgr.registry,
		Vars:        l.mgr,
		LogSink:     func(line string) { l.log("%s", line) },
		Suspend:     l.suspend,
	}

	outcome, err := handler.Dispatch(ctx, env, entry.Instruction)
	if err != nil {
		// A failing instruction is skipped; the loop continues.
		l.log("instruction %s failed: %v", entry.Instruction.Action, err)
		logger.Error(ctx, "Instruction failed",
			tag.Destination(l.dest),
			tag.Action(string(entry.Instruction.Action)),
			tag.Error(err))
	}

	switch outcome {
	case handler.OutcomeExitBlock:
		l.queue.RemoveBlock(entry.BlockID)
	case handler.OutcomeUnload:
		l.unload(ctx)
	}

	if sctx.Stopping {
		l.state.Status = core.StatusStopped
		l.log("scheduler stopping; stack preserved")
	}
}

// suspend releases the runtime mutex for the duration of a blocking
// collaborator call; the returned func re-acquires it. Only state owned by
// the call itself may be touched while suspended.
func (l *loop) suspend() func() {
	l.mgr.mu.Unlock()
	return l.mgr.mu.Lock
}

// unload pops the top schedule and context. An empty stack stops the
// scheduler.
func (l *loop) unload(ctx context.Context) {
	l.state.Pop()
	l.queue.Clear()
	l.eventBlocks = map[string]struct{}{}
	l.pending = nil
	l.finalsSpent = false
	if l.state.Depth() == 0 {
		l.state.Status = core.StatusStopped
		l.log("schedule unloaded; stopped")
		logger.Info(ctx, "Scheduler stopped", tag.Destination(l.dest))
		return
	}
	l.log("schedule unloaded; resumed enclosing schedule")
	// The revealed schedule starts from its triggers, not its initials.
	l.firstTick = true
}

// cleanupEventVar removes _event once every event block has drained.
func (l *loop) cleanupEventVar(sctx *core.Context) {
	if len(l.eventBlocks) == 0 {
		return
	}
	for id := range l.eventBlocks {
		if !l.queue.HasBlock(id) {
			delete(l.eventBlocks, id)
		}
	}
	if len(l.eventBlocks) == 0 {
		if _, ok := sctx.Vars[core.EventVar]; ok {
			delete(sctx.Vars, core.EventVar)
			l.dirty = true
		}
	}
}

// logWaitProgress writes the once-a-minute waiting line.
func (l *loop) logWaitProgress(sctx *core.Context, now time.Time) {
	if !sctx.InWait(now) {
		return
	}
	if sctx.LastWaitLog != nil && now.Sub(*sctx.LastWaitLog) < time.Minute {
		return
	}
	t := now
	sctx.LastWaitLog = &t
	l.log("waiting until %s", sctx.WaitUntil.Format(time.RFC3339))
	l.dirty = true
}

// persist writes the current snapshot under the manager lock.
func (l *loop) persist(ctx context.Context) {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()
	l.persistLocked(ctx)
}

// persistLocked snapshots stacks, trigger log, and the destination's event
// queues. A failed write is logged; in-memory state stays authoritative.
func (l *loop) persistLocked(ctx context.Context) {
	l.dirty = false
	l.state.LastUpdated = l.mgr.clock()
	l.state.EventsActive = l.mgr.events.ActiveFor(l.dest)
	l.state.EventsHistory = l.mgr.events.HistoryFor(l.dest)
	if err := l.mgr.store.Save(ctx, l.dest, l.state); err != nil {
		logger.Error(ctx, "State save failed", tag.Destination(l.dest), tag.Error(err))
	}
}

// log appends one line to the destination's bounded log ring.
func (l *loop) log(format string, args ...any) {
	line := l.mgr.clock().UTC().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)
	l.logRing = append(l.logRing, line)
	if len(l.logRing) > maxLogRing {
		l.logRing = l.logRing[len(l.logRing)-maxLogRing:]
	}
}

// eventVarValue is the map bound to _event while an event block runs.
func eventVarValue(e *core.Event) map[string]any {
	return map[string]any{
		"key":          e.Key,
		"display_name": e.DisplayName,
		"payload":      e.Payload,
		"unique_id":    e.UniqueID,
		"created_at":   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// triggerLog adapts the persisted execution map to the resolver's interface.
type triggerLog struct {
	state *statestore.State
}

func (t triggerLog) Executed(key string) bool {
	_, ok := t.state.TriggerLog[key]
	return ok
}

func (t triggerLog) MarkExecuted(key string, at time.Time) {
	if t.state.TriggerLog == nil {
		t.state.TriggerLog = map[string]time.Time{}
	}
	t.state.TriggerLog[key] = at
}

// sleepCtx sleeps for d or until the context is cancelled, reporting whether
// the full sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
