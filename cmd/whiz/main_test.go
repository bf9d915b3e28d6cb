package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/whizrun/whiz/internal/adapters/logger"
	"github.com/whizrun/whiz/internal/adapters/shell"
	"github.com/whizrun/whiz/internal/app"
	"github.com/whizrun/whiz/internal/core/domain"
	"github.com/whizrun/whiz/internal/core/ports"
)

// fakeLoader is a hand-written ports.ConfigLoader for main's exit-code tests.
type fakeLoader struct {
	loadFunc func(cwd string) (*domain.Graph, error)
}

func (f *fakeLoader) Load(cwd string) (*domain.Graph, error) {
	if f.loadFunc != nil {
		return f.loadFunc(cwd)
	}
	return domain.NewGraph(), nil
}

func (f *fakeLoader) LoadFile(path string) (*domain.Graph, error) {
	return f.Load(path)
}

func (f *fakeLoader) DiscoverConfigPaths(string) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeLoader) DiscoverRoot(cwd string) (string, error) {
	return cwd, nil
}

// fakeWatcher is a no-op ports.Watcher for tests that never reach the
// watcher bridge (ExitAfter mode, or a Load failure before it's built).
type fakeWatcher struct{}

func (fakeWatcher) Start(context.Context, string) error { return nil }
func (fakeWatcher) Stop() error                         { return nil }
func (fakeWatcher) Events() iter.Seq[ports.WatchEvent] {
	return func(func(ports.WatchEvent) bool) {}
}

func newTestApp(loader ports.ConfigLoader) *app.App {
	return app.New(loader, shell.NewExecutor(), fakeWatcher{}, logger.NewNop()).
		WithTeaOptions(tea.WithInput(nil)).
		WithDisableTick()
}

func TestRun_Success(t *testing.T) {
	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, func(a *app.App) {
		*a = *newTestApp(&fakeLoader{})
	})
	assert.Equal(t, 0, exitCode)
}

func TestRun_ExecutionError(t *testing.T) {
	loader := &fakeLoader{
		loadFunc: func(string) (*domain.Graph, error) {
			return nil, errors.New("load failed")
		},
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"run", "target", "--exit-after"}, stderr, func(a *app.App) {
		*a = *newTestApp(loader)
	})

	assert.Equal(t, 1, exitCode)
}

func TestRun_Signal(t *testing.T) {
	blockCh := make(chan struct{})
	loader := &fakeLoader{
		loadFunc: func(string) (*domain.Graph, error) {
			select {
			case <-blockCh:
				return nil, context.Canceled
			case <-time.After(5 * time.Second):
				return nil, errors.New("timeout in fake loader")
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan int)

	go func() {
		errCh <- run(ctx, []string{"run", "target", "--exit-after"}, io.Discard, func(a *app.App) {
			*a = *newTestApp(loader)
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	close(blockCh)

	select {
	case ret := <-errCh:
		assert.NotEqual(t, 0, ret)
	case <-time.After(2 * time.Second):
		t.Fatal("TestRun_Signal timed out waiting for run() to return")
	}
}
