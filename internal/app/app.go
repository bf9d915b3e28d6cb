// Package app implements the application layer for whiz.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/whizrun/whiz/internal/adapters/detector"
	"github.com/whizrun/whiz/internal/adapters/env"
	"github.com/whizrun/whiz/internal/adapters/linear"
	"github.com/whizrun/whiz/internal/adapters/telemetry"
	"github.com/whizrun/whiz/internal/adapters/tui"
	"github.com/whizrun/whiz/internal/adapters/watcher"
	"github.com/whizrun/whiz/internal/core/domain"
	"github.com/whizrun/whiz/internal/core/ports"
	"github.com/whizrun/whiz/internal/engine/scheduler"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App wires together config loading, the scheduler and a renderer to run
// whiz's targets either once (CI mode) or continuously under a watcher.
type App struct {
	configLoader ports.ConfigLoader
	executor     ports.Executor
	watcher      ports.Watcher
	logger       ports.Logger
	teaOptions   []tea.ProgramOption
	disableTick  bool
}

// New creates a new App instance.
func New(loader ports.ConfigLoader, executor ports.Executor, watcher ports.Watcher, log ports.Logger) *App {
	return &App{
		configLoader: loader,
		executor:     executor,
		watcher:      watcher,
		logger:       log,
	}
}

// WithTeaOptions adds bubbletea program options to the App.
// This is primarily used for testing to disable input/output.
func (a *App) WithTeaOptions(opts ...tea.ProgramOption) *App {
	a.teaOptions = append(a.teaOptions, opts...)
	return a
}

// WithDisableTick disables the TUI tick loop.
// This is primarily used for testing with synctest to avoid goroutine deadlocks.
func (a *App) WithDisableTick() *App {
	a.disableTick = true
	return a
}

// WithConfigLoader overrides the ConfigLoader built at construction time.
// This is primarily used for testing with a fake loader.
func (a *App) WithConfigLoader(loader ports.ConfigLoader) *App {
	a.configLoader = loader
	return a
}

// SetLogJSON enables or disables JSON logging output.
func (a *App) SetLogJSON(enable bool) {
	a.logger.SetJSON(enable)
}

// RunOptions configures the Run method.
type RunOptions struct {
	// ConfigFile overrides upward whiz.yaml discovery with an explicit path.
	ConfigFile string
	// ExitAfter stops the run once every selected task has completed its
	// first execution, instead of watching for further changes.
	ExitAfter bool
	// Watch enables the filesystem watcher bridge in interactive mode. It
	// is forced off whenever ExitAfter is set; independently of ExitAfter,
	// --watch=false keeps the engine interactive (TUI reruns and pipe
	// cascades still work) but suppresses fs-triggered restarts.
	Watch bool
	// ListJobs prints the selected subgraph's topo order, one name per
	// line, and returns without spawning anything.
	ListJobs bool
	// Timestamp prefixes each output line with its elapsed time since
	// that task's spawn.
	Timestamp bool
	// Verbose emits scheduler-internal diagnostics.
	Verbose bool
	// OutputMode overrides auto-detection: "tui", "linear", "ci" or "auto".
	OutputMode string
	// DebounceWindow overrides the watcher's default debounce window. Zero
	// keeps the scheduler's default.
	DebounceWindow time.Duration
}

// Run loads the graph from cwd, plans targetNames, and drives them to
// completion through the scheduler, restarting on file changes until ctx
// is cancelled (or immediately once every target settles, in ExitAfter
// mode).
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) error {
	if len(targetNames) == 0 {
		return domain.ErrNoTargetsSpecified
	}

	var graph *domain.Graph
	var err error
	if opts.ConfigFile != "" {
		graph, err = a.configLoader.LoadFile(opts.ConfigFile)
	} else {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return zerr.Wrap(cwdErr, "failed to get current working directory")
		}
		graph, err = a.configLoader.Load(cwd)
	}
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	if opts.ListJobs {
		tasks, err := graph.SelectedSubgraph(internTargets(targetNames))
		if err != nil {
			return err
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintln(os.Stdout, t.Name.String())
		}
		return nil
	}

	if ts, ok := a.executor.(interface{ SetTimestamp(bool) }); ok {
		ts.SetTimestamp(opts.Timestamp)
	}

	renderer := a.newRenderer(ctx, opts.OutputMode)
	resolver := env.NewResolver()

	// Every span the scheduler emits for this run is routed through a
	// Bridge registered on the global OTel TracerProvider straight into
	// renderer; the scheduler itself never touches a Renderer.
	shutdownProvider := telemetry.SetupProvider(telemetry.NewBridge(renderer))
	defer func() { _ = shutdownProvider(context.Background()) }()
	tracer := telemetry.NewOTelTracer("whiz").WithRenderer(renderer)

	debounceWindow := scheduler.DefaultDebounceWindow
	if opts.DebounceWindow > 0 {
		debounceWindow = opts.DebounceWindow
	}
	sched := scheduler.New(graph, a.executor, resolver, tracer, a.logger,
		scheduler.Options{ExitAfter: opts.ExitAfter, DebounceWindow: debounceWindow, Verbose: opts.Verbose})

	var bridge *watcher.Bridge
	if !opts.ExitAfter && opts.Watch && a.watcher != nil {
		bridge, err = watcher.NewBridge(graph, a.watcher, debounceWindow, sched.Invalidate)
		if err != nil {
			return zerr.Wrap(err, "failed to set up file watcher")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := renderer.Start(gctx); err != nil {
			return err
		}
		return renderer.Wait()
	})

	if bridge != nil {
		g.Go(func() error {
			return bridge.Run(gctx, graph.Root())
		})
	}

	a.logger.Info(fmt.Sprintf("run %s: starting %d target(s)", uuid.NewString()[:8], len(targetNames)))

	g.Go(func() error {
		defer func() {
			if bridge != nil {
				_ = bridge.Stop()
			}
			_ = renderer.Stop()
		}()
		return sched.Run(gctx, targetNames)
	})

	return g.Wait()
}

// newRenderer selects a Renderer implementation based on environment
// detection and the user's --output override.
func (a *App) newRenderer(ctx context.Context, outputMode string) ports.Renderer {
	autoMode := detector.DetectEnvironment()
	mode := detector.ResolveMode(autoMode, outputMode)

	if mode == detector.ModeTUI {
		model := tui.NewModel(os.Stderr)
		if a.disableTick {
			model = model.WithDisableTick()
		}
		optsTea := append([]tea.ProgramOption{tea.WithContext(ctx)}, a.teaOptions...)
		return tui.NewRenderer(&model, optsTea...)
	}
	return linear.NewRenderer(os.Stdout, os.Stderr)
}

// internTargets converts CLI-supplied target names to the domain's interned
// string type, for --list-jobs.
func internTargets(names []string) []domain.InternedString {
	out := make([]domain.InternedString, 0, len(names))
	for _, n := range names {
		out = append(out, domain.NewInternedString(n))
	}
	return out
}
