package domain

import (
	"iter"
	"slices"

	"github.com/hashicorp/go-multierror"
	"go.trai.ch/zerr"
)

// Graph is an immutable-once-validated dependency graph of tasks.
type Graph struct {
	tasks          map[InternedString]Task
	executionOrder []InternedString
	dependents     map[InternedString][]InternedString
	root           string
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		tasks: make(map[InternedString]Task),
	}
}

// AddTask adds a task to the graph. It returns an error if a task with the
// same name already exists.
func (g *Graph) AddTask(t *Task) error {
	if _, exists := g.tasks[t.Name]; exists {
		return zerr.With(ErrTaskAlreadyExists, "task_name", t.Name.String())
	}
	g.tasks[t.Name] = *t
	return nil
}

// Validate checks for missing dependencies and cycles, and populates the
// topological execution order and reverse-dependency map on success. Unlike
// a single-error walk, it collects every independent static problem it can
// find into one aggregated error so config authors see all mistakes at once.
func (g *Graph) Validate() error {
	var errs *multierror.Error

	for name, task := range g.tasks {
		if name.String() == "all" {
			errs = multierror.Append(errs, zerr.With(ErrReservedTaskName, "task_name", name.String()))
		}
		for _, dep := range task.Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				errs = multierror.Append(errs, zerr.With(ErrMissingDependency,
					"task_name", name.String(), "dependency", dep.String()))
			}
		}
		for _, p := range task.Pipes {
			if p.Var == "" {
				errs = multierror.Append(errs, zerr.With(ErrUnknownPipeVar,
					"task_name", name.String(), "pattern", p.Pattern))
			}
			if _, ok := g.tasks[p.Target]; p.Target == "" || !ok {
				errs = multierror.Append(errs, zerr.With(ErrUnknownPipeTarget,
					"task_name", name.String(), "target", p.Target.String()))
			}
		}
	}
	if errs.ErrorOrNil() != nil {
		return errs
	}

	g.executionOrder = make([]InternedString, 0, len(g.tasks))
	g.dependents = g.buildDependentsMap()
	visited := make(map[InternedString]int) // 0: unvisited, 1: visiting, 2: visited
	var path []InternedString

	var visit func(u InternedString) error
	visit = func(u InternedString) error {
		visited[u] = 1
		path = append(path, u)

		task := g.tasks[u]
		for _, dep := range task.Dependencies {
			if visited[dep] == 1 {
				return g.buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	for _, name := range g.sortedTaskNames() {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	var pipeErrs *multierror.Error
	for name, task := range g.tasks {
		for _, p := range task.Pipes {
			if p.Target == "" {
				continue // already reported above
			}
			if _, ok := g.tasks[p.Target]; !ok {
				continue // already reported above
			}
			if !g.transitivelyDependsOn(p.Target, name) {
				pipeErrs = multierror.Append(pipeErrs, zerr.With(ErrUnknownPipeTarget,
					"task_name", name.String(), "target", p.Target.String()))
			}
		}
	}
	if pipeErrs.ErrorOrNil() != nil {
		return pipeErrs
	}

	return nil
}

// transitivelyDependsOn reports whether consumer transitively depends,
// directly or through intermediate tasks, on producer — i.e. producer is
// reachable by walking consumer's Dependencies.
func (g *Graph) transitivelyDependsOn(consumer, producer InternedString) bool {
	visited := make(map[InternedString]bool)
	var walk func(name InternedString) bool
	walk = func(name InternedString) bool {
		if visited[name] {
			return false
		}
		visited[name] = true
		task, ok := g.tasks[name]
		if !ok {
			return false
		}
		for _, dep := range task.Dependencies {
			if dep == producer {
				return true
			}
			if walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(consumer)
}

// buildDependentsMap creates a reverse adjacency list (dependents map).
func (g *Graph) buildDependentsMap() map[InternedString][]InternedString {
	dependents := make(map[InternedString][]InternedString)
	for taskName := range g.tasks {
		task := g.tasks[taskName]
		for _, dep := range task.Dependencies {
			dependents[dep] = append(dependents[dep], task.Name)
		}
	}
	for name := range dependents {
		slices.SortFunc(dependents[name], func(a, b InternedString) int {
			return compareInterned(a, b)
		})
	}
	return dependents
}

// sortedTaskNames returns all task names sorted alphabetically, giving
// deterministic traversal of disconnected components.
func (g *Graph) sortedTaskNames() []InternedString {
	names := make([]InternedString, 0, len(g.tasks))
	for name := range g.tasks {
		names = append(names, name)
	}
	slices.SortFunc(names, compareInterned)
	return names
}

func compareInterned(a, b InternedString) int {
	switch {
	case a.String() < b.String():
		return -1
	case a.String() > b.String():
		return 1
	default:
		return 0
	}
}

// buildCycleError constructs an error carrying the offending cycle path.
func (g *Graph) buildCycleError(path []InternedString, dep InternedString) error {
	cyclePath := ""
	startIdx := -1
	for i, node := range path {
		if node == dep {
			startIdx = i
			break
		}
	}
	for i := startIdx; i < len(path); i++ {
		cyclePath += path[i].String() + " -> "
	}
	cyclePath += dep.String()
	return zerr.With(ErrCycleDetected, "cycle", cyclePath)
}

// Walk returns an iterator that yields tasks in topological execution
// order. It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, name := range g.executionOrder {
			if !yield(g.tasks[name]) {
				return
			}
		}
	}
}

// DependentsOf returns the tasks that directly depend on the given task.
func (g *Graph) DependentsOf(task InternedString) []InternedString {
	return g.dependents[task]
}

// TransitiveDependentsOf returns every task reachable by walking
// DependentsOf from task, directly or through intermediate tasks, in no
// particular order. Used by the restart cascade, where invalidating a task
// must reach every downstream task that could observe its stale output,
// not just its immediate dependents.
func (g *Graph) TransitiveDependentsOf(task InternedString) []InternedString {
	visited := make(map[InternedString]bool)
	var out []InternedString
	var walk func(name InternedString)
	walk = func(name InternedString) {
		for _, dep := range g.dependents[name] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(task)
	return out
}

// TransitiveDependenciesOf returns every task task transitively depends on,
// directly or through intermediate tasks, in no particular order. Used to
// resolve a task's upstream environment, since a pipe may legally target
// any transitive dependent of its producer (see transitivelyDependsOn), not
// just a direct one.
func (g *Graph) TransitiveDependenciesOf(task InternedString) []InternedString {
	visited := make(map[InternedString]bool)
	var out []InternedString
	var walk func(name InternedString)
	walk = func(name InternedString) {
		t, ok := g.tasks[name]
		if !ok {
			return
		}
		for _, dep := range t.Dependencies {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(task)
	return out
}

// DependenciesOf returns the direct dependencies of the given task.
func (g *Graph) DependenciesOf(task InternedString) []InternedString {
	t, ok := g.tasks[task]
	if !ok {
		return nil
	}
	return t.Dependencies
}

// TaskCount returns the total number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// GetTask retrieves a task by its name.
func (g *Graph) GetTask(name InternedString) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Root returns the root directory the config was loaded from.
func (g *Graph) Root() string {
	return g.root
}

// SetRoot sets the root directory of the config.
func (g *Graph) SetRoot(path string) {
	g.root = path
}

// SelectedSubgraph returns, in topological order, the target tasks plus
// every transitive dependency they require — the set whiz actually needs
// to run for a `--run`/`--list-jobs` selection. An empty targets list
// selects every task in the graph.
func (g *Graph) SelectedSubgraph(targets []InternedString) ([]Task, error) {
	if len(targets) == 0 {
		return slices.Collect(g.Walk()), nil
	}

	include := make(map[InternedString]bool)
	var mark func(name InternedString) error
	mark = func(name InternedString) error {
		if include[name] {
			return nil
		}
		task, ok := g.tasks[name]
		if !ok {
			return zerr.With(ErrTaskNotFound, "task_name", name.String())
		}
		include[name] = true
		for _, dep := range task.Dependencies {
			if err := mark(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range targets {
		if err := mark(t); err != nil {
			return nil, err
		}
	}

	var out []Task
	for _, name := range g.executionOrder {
		if include[name] {
			out = append(out, g.tasks[name])
		}
	}
	return out, nil
}
