package scheduler

import "github.com/whizrun/whiz/internal/core/domain"

// eventKind distinguishes the payloads carried on the scheduler's single
// event channel. The scheduler goroutine is the sole writer of task state;
// every other goroutine (spawn watchers, the filesystem bridge, pipe
// callbacks) only ever produces events onto this channel.
type eventKind int

const (
	// evSpawnComplete reports that a task's process exited.
	evSpawnComplete eventKind = iota
	// evInvalidated reports that a watched path changed for a task.
	evInvalidated
	// evPipeUpdate reports a task's pipe captured a new value.
	evPipeUpdate
	// evRerunCurrent asks the scheduler to restart one task on demand,
	// sent by Scheduler.RerunCurrent.
	evRerunCurrent
	// evShutdown asks the scheduler to terminate every running task and stop.
	evShutdown
)

type schedulerEvent struct {
	kind eventKind
	task domain.InternedString

	// spawnComplete fields
	generation uint64
	err        error

	// pipeUpdate fields
	varName string
	value   string
}
