// Package ports defines the core interfaces the scheduler depends on.
package ports

import (
	"context"
	"io"

	"github.com/whizrun/whiz/internal/core/domain"
)

// Handle represents one live spawn of a task's process.
type Handle interface {
	// Wait blocks until the process exits and returns its error, if any.
	Wait() error
	// Terminate asks the process to exit, escalating to a kill after a
	// grace period if it has not exited on its own.
	Terminate() error
}

// Executor starts task processes and reports matched pipe output.
type Executor interface {
	// Spawn starts task's command with env ("KEY=VALUE" entries) and the
	// given working directory. stdout/stderr receive the process output,
	// not necessarily split on line boundaries (the shell executor writes
	// the merged stream to stdout and buffers lines only when timestamps
	// are enabled). onPipe is invoked synchronously, once
	// per matched pipe per line, with the pipe's Var and the captured value.
	Spawn(ctx context.Context, task *domain.Task, env []string, workingDir string,
		stdout, stderr io.Writer, onPipe func(varName, value string)) (Handle, error)
}
