// Package main is the entry point for whiz.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/whizrun/whiz/cmd/whiz/commands"
	"github.com/whizrun/whiz/internal/adapters/config"
	"github.com/whizrun/whiz/internal/adapters/logger"
	"github.com/whizrun/whiz/internal/adapters/shell"
	"github.com/whizrun/whiz/internal/adapters/watcher"
	"github.com/whizrun/whiz/internal/app"
	"github.com/whizrun/whiz/internal/core/domain"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer, opts ...func(*app.App)) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logger.New()

	w, err := watcher.NewWatcher()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 2
	}

	a := app.New(config.NewLoader(log), shell.NewExecutor(), w, log)
	for _, opt := range opts {
		opt(a)
	}

	cli := commands.New(a)
	cli.SetArgs(args)
	cli.SetOutput(os.Stdout, stderr)

	if err := cli.Execute(ctx); err != nil {
		log.Error(err)
		return exitCode(ctx, err)
	}
	return 0
}

// exitCode maps a Run error to whiz's documented exit codes: 1 on task
// failure (--exit-after), 2 on a config-time error, 130 on interrupt.
func exitCode(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return 130
	}
	switch {
	case errors.Is(err, domain.ErrTaskExecutionFailed):
		return 1
	case errors.Is(err, domain.ErrConfigNotFound),
		errors.Is(err, domain.ErrConfigReadFailed),
		errors.Is(err, domain.ErrConfigParseFailed),
		errors.Is(err, domain.ErrMissingDependency),
		errors.Is(err, domain.ErrCycleDetected),
		errors.Is(err, domain.ErrReservedTaskName),
		errors.Is(err, domain.ErrInvalidTaskName),
		errors.Is(err, domain.ErrBadPipeRegex),
		errors.Is(err, domain.ErrUnknownPipeVar),
		errors.Is(err, domain.ErrUnknownPipeTarget),
		errors.Is(err, domain.ErrTaskAlreadyExists),
		errors.Is(err, domain.ErrMissingEnvFile),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrNoTargetsSpecified):
		return 2
	default:
		return 1
	}
}
