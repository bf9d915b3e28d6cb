package tui

import "time"

// msgInitTasks signals the model to (re)build its task tree from a plan.
type msgInitTasks struct {
	Tasks        []string
	Dependencies map[string][]string
	Targets      []string
}

// msgTaskStart indicates a task run has started.
type msgTaskStart struct {
	SpanID    string
	ParentID  string
	Name      string
	StartTime time.Time
}

// msgTaskLog carries a chunk of log output for a specific run.
type msgTaskLog struct {
	SpanID string
	Data   []byte
}

// msgTaskComplete indicates a task run has finished. Err is
// domain.ErrTaskKilled when the run was torn down as a cascade rather than
// failing or succeeding on its own terms.
type msgTaskComplete struct {
	SpanID  string
	EndTime time.Time
	Err     error
}
