// Package scheduler implements whiz's long-running task scheduler: a
// single-writer event loop that starts tasks once their dependencies have
// succeeded, restarts them when a watched file changes or an upstream pipe
// value changes, and tears everything down cleanly on shutdown.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/whizrun/whiz/internal/adapters/env"
	"github.com/whizrun/whiz/internal/core/domain"
	"github.com/whizrun/whiz/internal/core/ports"
	"go.trai.ch/zerr"
)

// Options configures a Scheduler's runtime behavior.
type Options struct {
	// ExitAfter, when true, stops watching and returns once every
	// selected task has completed at least one run (whiz's CI mode).
	ExitAfter bool
	// DebounceWindow records the watcher bridge's debounce window; the
	// scheduler itself does not read it (App passes the same value to
	// watcher.NewBridge). Zero is replaced by DefaultDebounceWindow.
	DebounceWindow time.Duration
	// Verbose emits scheduler-internal diagnostics (cascade kills, skipped
	// restarts) through Logger.Info, for -v/--verbose.
	Verbose bool
}

// DefaultDebounceWindow has the same value as watcher.DefaultDebounceWindow;
// the scheduler declares its own copy rather than importing the watcher
// package.
const DefaultDebounceWindow = 400 * time.Millisecond

// Scheduler runs a domain.Graph's selected tasks to completion and keeps
// them running, restarting as needed, until shut down. It has no direct
// dependency on a Renderer: every task's lifecycle is reported as an OTel
// span through tracer, and whatever is watching that span stream (a
// telemetry.Bridge feeding a Renderer, or nothing in tests) decides what to
// do with it.
type Scheduler struct {
	graph    *domain.Graph
	executor ports.Executor
	resolver *env.Resolver
	tracer   ports.Tracer
	logger   ports.Logger
	opts     Options

	events chan schedulerEvent

	// mu guards state, handles and spans. All three are read and written
	// from the scheduler goroutine; Invalidate, RerunCurrent, Shutdown and
	// the pipe callbacks, which run on other goroutines, only send events
	// and never touch them.
	mu      sync.Mutex
	state   map[domain.InternedString]*domain.RunState
	handles map[domain.InternedString]ports.Handle
	spans   map[domain.InternedString]ports.Span

	selected  []domain.Task
	done      chan struct{}
	closeOnce sync.Once

	// killing marks tasks whose current run is being terminated purely as
	// a downstream cascade (not a direct restart), so onSpawnComplete can
	// label the outcome Killed rather than Failed.
	killing map[domain.InternedString]bool
}

// New creates a Scheduler for graph's selected subgraph.
func New(graph *domain.Graph, executor ports.Executor, resolver *env.Resolver,
	tracer ports.Tracer, logger ports.Logger, opts Options) *Scheduler {

	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}

	return &Scheduler{
		graph:    graph,
		executor: executor,
		resolver: resolver,
		tracer:   tracer,
		logger:   logger,
		opts:     opts,
		events:   make(chan schedulerEvent, 64),
		state:    make(map[domain.InternedString]*domain.RunState),
		handles:  make(map[domain.InternedString]ports.Handle),
		spans:    make(map[domain.InternedString]ports.Span),
		done:     make(chan struct{}),
		killing:  make(map[domain.InternedString]bool),
	}
}

// Run selects targets (or every task when targets is empty), plans them,
// and drives them to completion. In interactive mode it keeps running,
// reacting to Invalidate/PipeUpdate/Shutdown, until ctx is cancelled or
// Shutdown is called. In ExitAfter mode it returns as soon as every
// selected task has finished its first run, with an error if any failed.
func (s *Scheduler) Run(ctx context.Context, targetNames []string) error {
	targets := make([]domain.InternedString, 0, len(targetNames))
	for _, n := range targetNames {
		targets = append(targets, domain.NewInternedString(n))
	}

	tasks, err := s.graph.SelectedSubgraph(targets)
	if err != nil {
		return err
	}
	s.selected = tasks

	deps := make(map[string][]string, len(tasks))
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name.String())
		depNames := make([]string, len(t.Dependencies))
		for i, d := range t.Dependencies {
			depNames[i] = d.String()
		}
		deps[t.Name.String()] = depNames
		s.state[t.Name] = &domain.RunState{Status: domain.StatusPending, ExportedEnv: make(map[string]string)}
	}
	s.tracer.EmitPlan(ctx, names, deps, targetNames)

	s.scheduleReady(ctx)

	for {
		select {
		case <-ctx.Done():
			s.terminateAll()
			return ctx.Err()
		case ev := <-s.events:
			if done, err := s.handle(ctx, ev); done {
				return err
			}
		}
	}
}

// Invalidate enqueues a restart request for task, e.g. from the watcher
// bridge after its debounce window elapses.
func (s *Scheduler) Invalidate(task domain.InternedString) {
	select {
	case s.events <- schedulerEvent{kind: evInvalidated, task: task}:
	case <-s.done:
	}
}

// RerunCurrent enqueues an on-demand restart of task alone; unlike
// Invalidate it does not cascade to dependents. No renderer in this module
// calls it.
func (s *Scheduler) RerunCurrent(task domain.InternedString) {
	select {
	case s.events <- schedulerEvent{kind: evRerunCurrent, task: task}:
	case <-s.done:
	}
}

// Shutdown enqueues termination of every running task and ends Run.
func (s *Scheduler) Shutdown() {
	select {
	case s.events <- schedulerEvent{kind: evShutdown}:
	case <-s.done:
	}
}

func (s *Scheduler) handle(ctx context.Context, ev schedulerEvent) (bool, error) {
	switch ev.kind {
	case evSpawnComplete:
		s.onSpawnComplete(ctx, ev)
	case evInvalidated:
		s.onInvalidated(ctx, ev.task)
	case evPipeUpdate:
		s.onPipeUpdate(ctx, ev)
	case evRerunCurrent:
		s.restartDirect(ctx, ev.task)
	case evShutdown:
		s.terminateAll()
		return true, nil
	}

	if s.opts.ExitAfter && s.allSettled() {
		s.terminateAll()
		return true, s.aggregateFailure()
	}
	return false, nil
}

func (s *Scheduler) allSettled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, st := range s.state {
		switch st.Status {
		case domain.StatusSucceeded, domain.StatusFailed:
		case domain.StatusPending, domain.StatusWaiting:
			// A task behind a Failed dependency can never start, so it
			// counts as settled.
			blocked := false
			for _, dep := range s.graph.TransitiveDependenciesOf(name) {
				if d := s.state[dep]; d != nil && d.Status == domain.StatusFailed {
					blocked = true
				}
			}
			if !blocked {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (s *Scheduler) aggregateFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, st := range s.state {
		if st.Status == domain.StatusFailed {
			return zerr.With(domain.ErrTaskExecutionFailed, "task_name", name.String())
		}
	}
	return nil
}

// scheduleReady starts every Pending or Waiting task whose dependencies are
// all currently Succeeded, and marks the others Waiting.
func (s *Scheduler) scheduleReady(ctx context.Context) {
	s.mu.Lock()
	var toStart []domain.Task
	for _, t := range s.selected {
		st := s.state[t.Name]
		if st.Status != domain.StatusPending && st.Status != domain.StatusWaiting {
			continue
		}
		if s.dependenciesSatisfied(t) {
			toStart = append(toStart, t)
		} else {
			st.Status = domain.StatusWaiting
		}
	}
	s.mu.Unlock()

	for _, t := range toStart {
		s.startTask(ctx, t)
	}
}

func (s *Scheduler) dependenciesSatisfied(t domain.Task) bool {
	for _, dep := range t.Dependencies {
		if s.state[dep].Status != domain.StatusSucceeded {
			return false
		}
	}
	return true
}

// upstreamEnvLocked merges ExportedEnv from every transitive dependency of
// task, not just its direct ones, so a pipe declared from a producer to a
// non-direct but transitively-dependent consumer (valid per
// transitivelyDependsOn) actually reaches that consumer's environment.
// Requires mu to be held.
func (s *Scheduler) upstreamEnvLocked(task domain.InternedString) map[string]string {
	upstream := make(map[string]string)
	for _, dep := range s.graph.TransitiveDependenciesOf(task) {
		for k, v := range s.state[dep].ExportedEnv {
			upstream[k] = v
		}
	}
	return upstream
}

func (s *Scheduler) startTask(ctx context.Context, t domain.Task) {
	s.mu.Lock()
	st := s.state[t.Name]
	st.Status = domain.StatusRunning
	st.Generation++
	gen := st.Generation
	upstream := s.upstreamEnvLocked(t.Name)
	st.StartedAt = time.Now()
	s.mu.Unlock()

	spanCtx, span := s.tracer.Start(ctx, t.Name.String())
	s.mu.Lock()
	s.spans[t.Name] = span
	s.mu.Unlock()

	taskCopy := t
	resolved, err := s.resolver.Resolve(&taskCopy, upstream)
	if err != nil {
		s.logger.Error(err)
		s.finishSpawn(t.Name, gen, err)
		return
	}

	s.mu.Lock()
	st.EnvFingerprint = fingerprintEnv(resolved)
	s.mu.Unlock()

	onPipe := func(varName, value string) {
		select {
		case s.events <- schedulerEvent{kind: evPipeUpdate, task: t.Name, varName: varName, value: value}:
		case <-s.done:
		}
	}

	handle, err := s.executor.Spawn(spanCtx, &taskCopy, resolved, taskCopy.WorkingDir.String(), span, span, onPipe)
	if err != nil {
		s.finishSpawn(t.Name, gen, err)
		return
	}

	s.mu.Lock()
	s.handles[t.Name] = handle
	s.mu.Unlock()

	go func() {
		waitErr := handle.Wait()
		select {
		case s.events <- schedulerEvent{kind: evSpawnComplete, task: t.Name, generation: gen, err: waitErr}:
		case <-s.done:
		}
	}()
}

// finishSpawn reports a spawn that never produced a Handle (env resolution
// or executor.Spawn itself failed) by ending its span with the error.
func (s *Scheduler) finishSpawn(task domain.InternedString, gen uint64, err error) {
	s.mu.Lock()
	st := s.state[task]
	stale := gen != st.Generation
	if !stale {
		if err != nil {
			st.Status = domain.StatusFailed
		} else {
			st.Status = domain.StatusSucceeded
		}
	}
	span := s.spans[task]
	delete(s.spans, task)
	s.mu.Unlock()
	if stale || span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func (s *Scheduler) onSpawnComplete(ctx context.Context, ev schedulerEvent) {
	s.mu.Lock()
	st := s.state[ev.task]
	stale := ev.generation != st.Generation
	delete(s.handles, ev.task)
	if stale {
		s.mu.Unlock()
		return
	}

	cascadeKilled := s.killing[ev.task]
	delete(s.killing, ev.task)

	reportErr := ev.err
	restarting := st.PendingRestart
	if st.Status == domain.StatusRunning {
		switch {
		case cascadeKilled, restarting:
			// Killed collapses straight into Waiting on SpawnComplete: it is
			// a momentary label for the span/renderer, not a resting state a
			// dependency check or scheduleReady needs to see.
			st.Status = domain.StatusWaiting
			reportErr = domain.ErrTaskKilled
		case ev.err != nil:
			st.Status = domain.StatusFailed
		default:
			st.Status = domain.StatusSucceeded
		}
	}
	pendingRestart := st.PendingRestart
	st.PendingRestart = false
	span := s.spans[ev.task]
	delete(s.spans, ev.task)
	s.mu.Unlock()

	if span != nil {
		if reportErr != nil {
			span.RecordError(reportErr)
		}
		span.End()
	}

	if pendingRestart {
		if t, ok := s.taskByName(ev.task); ok {
			s.startTask(ctx, t)
			return
		}
	}

	s.scheduleReady(ctx)
}

func (s *Scheduler) taskByName(name domain.InternedString) (domain.Task, bool) {
	for _, t := range s.selected {
		if t.Name == name {
			return t, true
		}
	}
	return domain.Task{}, false
}

// onInvalidated restarts task directly (it is the one whose watched files
// changed) and cascades a downstream kill to every transitive dependent:
// their stale output/env is no longer trustworthy, but they must wait for
// task to succeed again before restarting, so they are only killed and
// marked Waiting here, not restarted immediately.
func (s *Scheduler) onInvalidated(ctx context.Context, task domain.InternedString) {
	s.restartDirect(ctx, task)
	for _, dep := range s.graph.TransitiveDependentsOf(task) {
		s.killForCascade(dep)
	}
}

// restartDirect terminates task's current run (if any) and marks it to
// restart as soon as that termination is observed; if it is not currently
// running, it restarts it immediately.
func (s *Scheduler) restartDirect(ctx context.Context, task domain.InternedString) {
	s.mu.Lock()
	st, ok := s.state[task]
	if !ok {
		s.mu.Unlock()
		return
	}
	if st.Status == domain.StatusRunning {
		st.PendingRestart = true
		h := s.handles[task]
		s.mu.Unlock()
		if h != nil {
			_ = h.Terminate()
		}
		return
	}
	s.mu.Unlock()
	if t, ok := s.taskByName(task); ok {
		s.startTask(ctx, t)
	}
}

// killForCascade terminates task's current run (if any) without queuing a
// restart; the task is left Waiting and picked back up by scheduleReady
// once its dependencies are satisfied again.
func (s *Scheduler) killForCascade(task domain.InternedString) {
	s.mu.Lock()
	st, ok := s.state[task]
	if !ok {
		s.mu.Unlock()
		return
	}
	if st.Status == domain.StatusRunning {
		s.killing[task] = true
		h := s.handles[task]
		s.mu.Unlock()
		if h != nil {
			_ = h.Terminate()
		}
		return
	}
	st.Status = domain.StatusWaiting
	s.mu.Unlock()
}

// onPipeUpdate records a task's newly captured export and, if the value
// actually changed, cascades a downstream kill to every transitive
// dependent whose resolved env actually changes (a pipe may legally target
// any transitive dependent of its producer, not just a direct one).
func (s *Scheduler) onPipeUpdate(_ context.Context, ev schedulerEvent) {
	s.mu.Lock()
	st := s.state[ev.task]
	changed := st.ExportedEnv[ev.varName] != ev.value
	if changed {
		st.ExportedEnv[ev.varName] = ev.value
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, dep := range s.graph.TransitiveDependentsOf(ev.task) {
		if s.dependentNeedsRestart(dep) {
			if s.opts.Verbose {
				s.logger.Info(fmt.Sprintf("pipe %s=%s from %s changes %s's env, cascading restart",
					ev.varName, ev.value, ev.task.String(), dep.String()))
			}
			s.killForCascade(dep)
		} else if s.opts.Verbose {
			s.logger.Info(fmt.Sprintf("pipe %s=%s from %s does not change %s's resolved env, skipping restart",
				ev.varName, ev.value, ev.task.String(), dep.String()))
		}
	}
}

// dependentNeedsRestart resolves dep's prospective environment against the
// latest upstream exports and compares its fingerprint against the one dep
// was last spawned with, so a pipe update that doesn't change what dep
// would actually see doesn't tear it down for nothing.
func (s *Scheduler) dependentNeedsRestart(dep domain.InternedString) bool {
	t, ok := s.taskByName(dep)
	if !ok {
		return false
	}

	s.mu.Lock()
	st := s.state[dep]
	if st == nil || st.Status != domain.StatusRunning {
		s.mu.Unlock()
		return false
	}
	upstream := s.upstreamEnvLocked(dep)
	lastFingerprint := st.EnvFingerprint
	s.mu.Unlock()

	taskCopy := t
	resolved, err := s.resolver.Resolve(&taskCopy, upstream)
	if err != nil {
		return true
	}
	return fingerprintEnv(resolved) != lastFingerprint
}

// fingerprintEnv hashes a resolved "KEY=VALUE" environment, order
// independent, so two resolutions that merge the same values in a
// different map-iteration order still compare equal.
func fingerprintEnv(resolved []string) uint64 {
	sorted := make([]string, len(resolved))
	copy(sorted, resolved)
	sort.Strings(sorted)
	return xxhash.Sum64String(strings.Join(sorted, "\x00"))
}

func (s *Scheduler) terminateAll() {
	s.mu.Lock()
	handles := make([]ports.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		_ = h.Terminate()
	}
	s.closeOnce.Do(func() { close(s.done) })
}

