package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Export functions for testing
var (
	BuildTree   = buildTree
	FlattenTree = flattenTree
)

// MaxOffset exposes the private maxOffset method for testing.
func (v *Vterm) MaxOffset() int {
	return v.maxOffset()
}

// GetSelectedTask exposes getSelectedTask for testing.
func (m *Model) GetSelectedTask() *TaskNode {
	return m.getSelectedTask()
}

// UpdateActiveView exposes updateActiveView for testing.
func (m *Model) UpdateActiveView() {
	m.updateActiveView()
}

// EnsureVisible exposes ensureVisible for testing.
func (m *Model) EnsureVisible() {
	m.ensureVisible()
}

// NewMsgInitTasks builds the unexported msgInitTasks as a tea.Msg for tests.
func NewMsgInitTasks(tasks []string, deps map[string][]string, targets []string) tea.Msg {
	return msgInitTasks{Tasks: tasks, Dependencies: deps, Targets: targets}
}

// NewMsgTaskStart builds the unexported msgTaskStart as a tea.Msg for tests.
func NewMsgTaskStart(spanID, name string, startTime time.Time) tea.Msg {
	return msgTaskStart{SpanID: spanID, Name: name, StartTime: startTime}
}

// NewMsgTaskLog builds the unexported msgTaskLog as a tea.Msg for tests.
func NewMsgTaskLog(spanID string, data []byte) tea.Msg {
	return msgTaskLog{SpanID: spanID, Data: data}
}

// NewMsgTaskComplete builds the unexported msgTaskComplete as a tea.Msg for tests.
func NewMsgTaskComplete(spanID string, endTime time.Time, err error) tea.Msg {
	return msgTaskComplete{SpanID: spanID, EndTime: endTime, Err: err}
}
