package watcher

import (
	"context"
	"path/filepath"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/whizrun/whiz/internal/core/domain"
	"github.com/whizrun/whiz/internal/core/ports"
)

// DefaultDebounceWindow coalesces bursts of filesystem events (an editor
// save touching several files, a build tool rewriting a directory) into a
// single invalidation per task.
const DefaultDebounceWindow = 400 * time.Millisecond

// taskMatcher holds the compiled watch/ignore patterns for one task.
type taskMatcher struct {
	name    domain.InternedString
	root    string
	watch   []globMatcher
	ignores *gitignore.GitIgnore
}

// Bridge watches a graph's tasks and emits a debounced invalidation per
// task whenever a filesystem event matches that task's watch globs and is
// not excluded by its ignore patterns.
type Bridge struct {
	watcher    ports.Watcher
	matchers   []taskMatcher
	debouncers map[domain.InternedString]*Debouncer
	onInvalid  func(task domain.InternedString)
}

// NewBridge builds matchers for every task in graph that declares a Watch
// list, and wires each to its own debouncer so that a noisy task cannot
// delay another task's restart.
func NewBridge(g *domain.Graph, w ports.Watcher, window time.Duration, onInvalid func(task domain.InternedString)) (*Bridge, error) {
	b := &Bridge{
		watcher:    w,
		debouncers: make(map[domain.InternedString]*Debouncer),
		onInvalid:  onInvalid,
	}

	for task := range g.Walk() {
		if len(task.Watch) == 0 {
			continue
		}
		matcher, err := newTaskMatcher(task)
		if err != nil {
			return nil, err
		}
		b.matchers = append(b.matchers, matcher)

		name := task.Name
		b.debouncers[name] = NewDebouncer(window, func([]string) {
			b.onInvalid(name)
		})
	}

	return b, nil
}

func newTaskMatcher(task domain.Task) (taskMatcher, error) {
	globs := make([]globMatcher, 0, len(task.Watch))
	for _, pattern := range task.Watch {
		gm, err := newGlobMatcher(pattern)
		if err != nil {
			return taskMatcher{}, err
		}
		globs = append(globs, gm)
	}

	var ig *gitignore.GitIgnore
	if len(task.Ignore) > 0 {
		ig = gitignore.CompileIgnoreLines(task.Ignore...)
	}

	return taskMatcher{
		name:    task.Name,
		root:    task.WorkingDir.String(),
		watch:   globs,
		ignores: ig,
	}, nil
}

// Run starts the underlying watcher and dispatches events to matching
// tasks' debouncers until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, root string) error {
	if err := b.watcher.Start(ctx, root); err != nil {
		return err
	}

	for event := range b.watcher.Events() {
		b.dispatch(event.Path)
	}
	return nil
}

// Stop stops the underlying watcher and flushes any pending debounced
// invalidations so they are not lost on shutdown.
func (b *Bridge) Stop() error {
	for _, d := range b.debouncers {
		d.Flush()
	}
	return b.watcher.Stop()
}

func (b *Bridge) dispatch(path string) {
	for _, m := range b.matchers {
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			continue
		}
		if m.ignores != nil && m.ignores.MatchesPath(rel) {
			continue
		}
		if !matchesAny(m.watch, rel) {
			continue
		}
		b.debouncers[m.name].Add(path)
	}
}

func matchesAny(globs []globMatcher, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
