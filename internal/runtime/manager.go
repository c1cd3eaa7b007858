package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/collab"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/eventstore"
	"github.com/gjbm2/screen-machine/internal/queue"
	"github.com/gjbm2/screen-machine/internal/registry"
	"github.com/gjbm2/screen-machine/internal/statestore"
	"github.com/gjbm2/screen-machine/internal/template"
)

// ErrAlreadyRunning is returned when starting a destination that already has
// a live loop.
var ErrAlreadyRunning = errors.New("scheduler already running")

// ErrNotRunning is returned by operations that need a live loop.
var ErrNotRunning = errors.New("scheduler not running")

// ErrNoSchedule is returned when starting a destination with an empty
// schedule stack.
var ErrNoSchedule = errors.New("no schedule loaded")

// Manager owns the per-destination loops and the shared stores. One mutex
// serializes every loop pass and every manager operation; critical sections
// are small and contention across destinations is low, so finer locking
// buys nothing.
type Manager struct {
	store    statestore.Store
	events   *eventstore.Store
	registry *registry.Registry
	engine   template.Engine
	collab   collab.Set
	groups   eventstore.GroupResolver

	clock         func() time.Time
	tickInterval  time.Duration
	sweepInterval time.Duration

	mu    sync.Mutex
	loops map[string]*loop
	wg    sync.WaitGroup
}

// Option configures the manager.
type Option func(*Manager)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithTickInterval overrides the trigger evaluation cadence.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) { m.tickInterval = d }
}

// WithSweepInterval overrides the expired-event sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// New wires a manager over the shared stores and collaborators.
func New(store statestore.Store, events *eventstore.Store, reg *registry.Registry,
	engine template.Engine, set collab.Set, groups eventstore.GroupResolver, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		events:        events,
		registry:      reg,
		engine:        engine,
		collab:        set,
		groups:        groups,
		clock:         time.Now,
		tickInterval:  TickInterval,
		sweepInterval: EventSweepInterval,
		loops:         map[string]*loop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadSchedule pushes a schedule with a fresh context onto the destination's
// stack. A live loop picks the new top up on its next pass; a stopped
// destination just gets its snapshot updated. Callers validate through
// spec.Load first, so a rejected document never reaches the stack.
func (m *Manager) LoadSchedule(ctx context.Context, dest string, sched *core.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.loadOrNewLocked(ctx, dest)
	if err != nil {
		return err
	}
	state.Push(sched, core.NewContext(dest))

	if l, live := m.loops[dest]; live {
		l.state = state
		l.includeInitial = true
		l.firstTick = true
		l.pending = nil
		l.finalsSpent = false
		l.dirty = true
		return nil
	}
	return m.saveLocked(ctx, dest, state)
}

// UnloadSchedule pops the top schedule of a stopped destination. Running
// destinations unload through the terminate pathway instead.
func (m *Manager) UnloadSchedule(ctx context.Context, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.loops[dest]; live {
		return fmt.Errorf("%s: unload a running scheduler with terminate", dest)
	}
	state, err := m.store.Load(ctx, dest)
	if err != nil {
		return err
	}
	if !state.Pop() {
		return ErrNoSchedule
	}
	return m.saveLocked(ctx, dest, state)
}

// Start transitions a destination from stopped to running and runs its
// initial actions. Starting an already-running destination fails without
// side effects.
func (m *Manager) Start(ctx context.Context, dest string) error {
	return m.launch(ctx, dest, true)
}

// Resume restarts a destination's loop without re-running initial actions,
// used after process restart.
func (m *Manager) Resume(ctx context.Context, dest string) error {
	return m.launch(ctx, dest, false)
}

func (m *Manager) launch(ctx context.Context, dest string, fresh bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.loops[dest]; live {
		return fmt.Errorf("%s: %w", dest, ErrAlreadyRunning)
	}

	state, err := m.loadOrNewLocked(ctx, dest)
	if err != nil {
		return err
	}
	if state.Depth() == 0 {
		return fmt.Errorf("%s: %w", dest, ErrNoSchedule)
	}

	if fresh {
		state.Status = core.StatusRunning
	} else if !state.Status.IsActive() {
		// Nothing to resume; recovery treats this destination as idle.
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &loop{
		dest:           dest,
		mgr:            m,
		state:          state,
		queue:          queue.New(),
		cancel:         cancel,
		done:           make(chan struct{}),
		includeInitial: fresh,
		firstTick:      true,
		eventBlocks:    map[string]struct{}{},
	}

	// The map entry is installed before the goroutine is dispatched so a
	// concurrent start observes the in-flight one.
	m.loops[dest] = l
	m.events.Seed(dest, state.EventsActive, state.EventsHistory)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		l.run(loopCtx)

		m.mu.Lock()
		delete(m.loops, dest)
		m.mu.Unlock()
	}()

	logger.Info(ctx, "Scheduler started", tag.Destination(dest))
	return nil
}

// Stop cancels a destination's loop cooperatively. The worker finishes its
// current instruction, persists, and exits; stacks are preserved so a later
// start resumes the same schedule.
func (m *Manager) Stop(ctx context.Context, dest string) error {
	m.mu.Lock()
	l, live := m.loops[dest]
	if live {
		l.state.Status = core.StatusStopped
		l.cancel()
	}
	m.mu.Unlock()

	if !live {
		return fmt.Errorf("%s: %w", dest, ErrNotRunning)
	}
	<-l.done
	logger.Info(ctx, "Scheduler stopped", tag.Destination(dest))
	return nil
}

// StopAll stops every live loop and waits for them to drain.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	for _, l := range m.loops {
		l.state.Status = core.StatusStopped
		l.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	logger.Info(ctx, "All schedulers stopped")
}

// Pause suspends trigger evaluation and execution; the loop keeps spinning
// so unpause is immediate.
func (m *Manager) Pause(ctx context.Context, dest string) error {
	return m.setStatus(ctx, dest, core.StatusRunning, core.StatusPaused)
}

// Unpause resumes a paused destination without re-running initial actions.
func (m *Manager) Unpause(ctx context.Context, dest string) error {
	return m.setStatus(ctx, dest, core.StatusPaused, core.StatusRunning)
}

func (m *Manager) setStatus(ctx context.Context, dest string, from, to core.SchedulerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, live := m.loops[dest]
	if !live {
		return fmt.Errorf("%s: %w", dest, ErrNotRunning)
	}
	if l.state.Status != from {
		return fmt.Errorf("%s: scheduler is %s", dest, l.state.Status)
	}
	l.state.Status = to
	return m.saveLocked(ctx, dest, l.state)
}

// RecoverAll relaunches every persisted destination that was running or
// paused when the process last exited. Unreadable state files are logged
// and treated as stopped.
func (m *Manager) RecoverAll(ctx context.Context) error {
	dests, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, dest := range dests {
		state, err := m.store.Load(ctx, dest)
		if err != nil {
			logger.Warn(ctx, "Unreadable state, treating as stopped",
				tag.Destination(dest), tag.Error(err))
			continue
		}
		if !state.Status.IsActive() {
			continue
		}
		if err := m.Resume(ctx, dest); err != nil {
			logger.Error(ctx, "Recovery failed", tag.Destination(dest), tag.Error(err))
		}
	}
	return nil
}

// Throw publishes an event into the store on behalf of a caller outside any
// loop, such as the CLI.
func (m *Manager) Throw(opts eventstore.ThrowOptions) (eventstore.ThrowResult, error) {
	return m.events.Throw(opts)
}

// Info is a point-in-time view of one destination.
type Info struct {
	Destination string               `json:"destination"`
	Status      core.SchedulerStatus `json:"status"`
	StackDepth  int                  `json:"stack_depth"`
	QueueLen    int                  `json:"queue_len"`
	InWait      bool                 `json:"in_wait"`
	LogTail     []string             `json:"log_tail,omitempty"`
}

// Status reports a destination's current state, live or persisted.
func (m *Manager) Status(ctx context.Context, dest string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, live := m.loops[dest]; live {
		info := Info{
			Destination: dest,
			Status:      l.state.Status,
			StackDepth:  l.state.Depth(),
			QueueLen:    l.queue.Len(),
		}
		if _, c := l.state.Top(); c != nil {
			info.InWait = c.InWait(m.clock())
		}
		tail := l.logRing
		if len(tail) > 10 {
			tail = tail[len(tail)-10:]
		}
		info.LogTail = append([]string(nil), tail...)
		return info, nil
	}

	state, err := m.store.Load(ctx, dest)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Destination: dest,
		Status:      state.Status,
		StackDepth:  state.Depth(),
	}, nil
}

func (m *Manager) loadOrNewLocked(ctx context.Context, dest string) (*statestore.State, error) {
	if l, live := m.loops[dest]; live {
		return l.state, nil
	}
	state, err := m.store.Load(ctx, dest)
	if errors.Is(err, statestore.ErrNotFound) {
		return statestore.NewState(), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (m *Manager) saveLocked(ctx context.Context, dest string, state *statestore.State) error {
	state.LastUpdated = m.clock()
	return m.store.Save(ctx, dest, state)
}

// The VarHost methods below are called from instruction handlers while the
// calling loop already holds the runtime mutex, so they must not lock it
// again.

// Propagate pushes a changed exported value into each importer's top
// context under its local alias. Destinations without a live loop get the
// write applied to their persisted snapshot.
func (m *Manager) Propagate(ctx context.Context, varName string, value any, owner string) {
	for _, imp := range m.registry.ImportersOf(varName) {
		if !m.importBoundTo(imp, varName, owner) {
			continue
		}
		m.setRemoteVar(ctx, imp.Destination, imp.Info.ImportedAs, value, true)
	}
}

// DropExport removes the export record and clears every importer's alias.
func (m *Manager) DropExport(ctx context.Context, varName, owner string) {
	dropped, err := m.registry.RemoveExport(varName, owner)
	if err != nil {
		logger.Warn(ctx, "Export removal failed", tag.Var(varName), tag.Error(err))
		return
	}
	for _, imp := range dropped {
		m.setRemoteVar(ctx, imp.Destination, imp.Info.ImportedAs, nil, false)
	}
}

// ReadVar reads a variable from another destination's top context.
func (m *Manager) ReadVar(ctx context.Context, dest, varName string) (any, bool) {
	if l, live := m.loops[dest]; live {
		if _, c := l.state.Top(); c != nil {
			v, ok := c.Vars[varName]
			return v, ok
		}
		return nil, false
	}
	state, err := m.store.Load(ctx, dest)
	if err != nil {
		return nil, false
	}
	if _, c := state.Top(); c != nil {
		v, ok := c.Vars[varName]
		return v, ok
	}
	return nil, false
}

// importBoundTo reports whether an import record resolves to the given
// exporter, so same-named exports in unrelated scopes do not cross-talk.
func (m *Manager) importBoundTo(imp registry.Importer, varName, owner string) bool {
	switch imp.Info.SourceType {
	case registry.SourceDestination:
		return imp.Info.Source == owner
	case registry.SourceGroup, registry.SourceScope:
		scope := imp.Info.Source
		if imp.Info.SourceType == registry.SourceScope {
			scope = "global"
		}
		info, ok := m.registry.ExportOf(scope, varName)
		return ok && info.Owner == owner
	}
	return false
}

// setRemoteVar writes (or clears) a variable in another destination's top
// context, live or persisted.
func (m *Manager) setRemoteVar(ctx context.Context, dest, name string, value any, set bool) {
	apply := func(c *core.Context) {
		if set {
			c.SetVar(name, value)
		} else {
			delete(c.Vars, name)
		}
	}

	if l, live := m.loops[dest]; live {
		if _, c := l.state.Top(); c != nil {
			apply(c)
			l.dirty = true
		}
		return
	}

	state, err := m.store.Load(ctx, dest)
	if err != nil {
		return
	}
	_, c := state.Top()
	if c == nil {
		return
	}
	apply(c)
	if err := m.saveLocked(ctx, dest, state); err != nil {
		logger.Warn(ctx, "Propagation save failed", tag.Destination(dest), tag.Error(err))
	}
}
