package tui

import (
	"bytes"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vito/midterm"
)

// Vterm is a scrollable virtual terminal backing one task's log pane: task
// output (which may itself contain cursor movement and color escapes, since
// whiz spawns processes through a pty) is fed to Write and rendered a
// viewport-height window at a time through View.
type Vterm struct {
	term    *midterm.Terminal
	Offset  int
	Height  int
	Width   int
	Prefix  string
	viewBuf *bytes.Buffer
	mu      sync.Mutex
}

// NewVterm creates an empty Vterm with no rendered height yet; SetHeight and
// SetWidth are called once the TUI lays out the pane.
func NewVterm() *Vterm {
	return &Vterm{
		term:    midterm.NewAutoResizingTerminal(),
		viewBuf: new(bytes.Buffer),
	}
}

// Write feeds p into the virtual terminal, implementing io.Writer so a
// Vterm can be used anywhere a task's log stream is consumed. The viewport
// auto-scrolls to follow new output as long as it was already at the
// bottom; a scrolled-back reader isn't yanked back down by new lines.
func (v *Vterm) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	atBottom := v.Offset >= v.maxOffset()
	n, err := v.term.Write(p)
	if atBottom {
		v.Offset = v.maxOffset()
	}
	return n, err
}

// SetHeight updates the viewport height in rows, clamping the current
// scroll offset to stay valid and re-pinning to the bottom if it was
// already there.
func (v *Vterm) SetHeight(h int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	h = max(h, 1)
	atBottom := v.Offset >= v.maxOffset()
	v.Height = h
	v.clampOffsetLocked()
	if atBottom {
		v.Offset = v.maxOffset()
	}
}

// SetWidth updates the terminal's column width, accounting for Prefix so
// wrapped lines still fit within the pane.
func (v *Vterm) SetWidth(w int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Width = max(w, 1)
	cols := max(v.Width-len(v.Prefix), 1)
	v.term.ResizeX(cols)
}

// UsedHeight returns how many rows of scrollback the terminal currently
// holds.
func (v *Vterm) UsedHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.term.UsedHeight()
}

// View renders the current viewport window as a string, one line per row,
// each prefixed with Prefix.
func (v *Vterm) View() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return string(v.renderLocked())
}

func (v *Vterm) renderLocked() []byte {
	v.viewBuf.Reset()
	v.clampOffsetLocked()

	for i := 0; i < v.Height; i++ {
		row := v.Offset + i
		if row >= v.term.UsedHeight() {
			break
		}
		if i > 0 {
			_ = v.viewBuf.WriteByte('\n')
		}
		_, _ = v.viewBuf.WriteString(v.Prefix)
		_ = v.term.RenderLine(v.viewBuf, row)
	}

	out := make([]byte, v.viewBuf.Len())
	copy(out, v.viewBuf.Bytes())
	return out
}

// Update scrolls the viewport in response to key presses; every other
// message is ignored.
func (v *Vterm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "up", "k":
			v.Offset--
		case "down", "j":
			v.Offset++
		case "pgup":
			v.Offset -= v.Height
		case "pgdown":
			v.Offset += v.Height
		case "home":
			v.Offset = 0
		case "end":
			v.Offset = v.maxOffset()
		}
	}

	v.clampOffsetLocked()
	return nil, nil
}

// clampOffsetLocked requires mu to be held.
func (v *Vterm) clampOffsetLocked() {
	v.Offset = max(v.Offset, 0)
	v.Offset = min(v.Offset, v.maxOffset())
}

func (v *Vterm) maxOffset() int {
	return max(v.term.UsedHeight()-v.Height, 0)
}
