package domain

import "go.trai.ch/zerr"

var (
	// ErrTaskAlreadyExists is returned when attempting to add a task with a name that already exists.
	ErrTaskAlreadyExists = zerr.New("task already exists")

	// ErrMissingDependency is returned when a task references a dependency that doesn't exist in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when a cycle is detected in the task dependency graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTaskNotFound is returned when a requested task is not found in the graph.
	ErrTaskNotFound = zerr.New("task not found")

	// ErrNoTargetsSpecified is returned when no targets are specified for the run command.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrReservedTaskName is returned when a task uses the reserved name "all".
	ErrReservedTaskName = zerr.New("task name 'all' is reserved")

	// ErrInvalidTaskName is returned when a task name contains invalid characters.
	ErrInvalidTaskName = zerr.New("invalid task name")

	// ErrBadPipeRegex is returned when a pipe's pattern does not compile.
	ErrBadPipeRegex = zerr.New("invalid pipe pattern")

	// ErrUnknownPipeVar is returned when a pipe entry omits its var name.
	ErrUnknownPipeVar = zerr.New("pipe entry missing var name")

	// ErrUnknownPipeTarget is returned when a pipe's target task doesn't
	// exist, or exists but isn't a transitive dependent of the producer.
	ErrUnknownPipeTarget = zerr.New("pipe target is not a dependent of its producing task")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no whiz.yaml can be found.
	ErrConfigNotFound = zerr.New("could not find whiz config file")

	// ErrMissingEnvFile is returned when a declared env file does not exist.
	ErrMissingEnvFile = zerr.New("env file not found")

	// ErrEnvExpansionCycle is returned when ${VAR} expansion forms a cycle.
	ErrEnvExpansionCycle = zerr.New("environment variable expansion cycle")

	// ErrUndefinedEnvVar is returned when ${VAR} references an undefined variable.
	ErrUndefinedEnvVar = zerr.New("undefined environment variable reference")

	// ErrTaskSpawnFailed is returned when a task's process could not be started.
	ErrTaskSpawnFailed = zerr.New("failed to spawn task process")

	// ErrTaskExecutionFailed is returned when a task's process exited non-zero.
	ErrTaskExecutionFailed = zerr.New("task execution failed")

	// ErrWatchSetupFailed is returned when the filesystem watcher could not be established.
	ErrWatchSetupFailed = zerr.New("failed to set up filesystem watch")

	// ErrTaskKilled is passed to Renderer.OnTaskComplete when a run was torn
	// down as a downstream cascade rather than failing or succeeding on its
	// own terms.
	ErrTaskKilled = zerr.New("task killed")
)
