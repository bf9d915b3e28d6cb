// Package shell spawns task commands through a platform shell and reports
// matched pipe output back to the scheduler.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/whizrun/whiz/internal/core/domain"
	"github.com/whizrun/whiz/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultGracePeriod is how long Terminate waits after sending an
// interrupt before escalating to an unconditional kill.
const DefaultGracePeriod = 2 * time.Second

// Executor implements ports.Executor by running each task's Command
// through the platform shell, optionally attached to a pty.
type Executor struct {
	GracePeriod time.Duration
	// Timestamp prefixes every output line with its elapsed time since
	// spawn, for -t/--timestamp.
	Timestamp bool
}

// NewExecutor creates an Executor with the default grace period.
func NewExecutor() *Executor {
	return &Executor{GracePeriod: DefaultGracePeriod}
}

// SetTimestamp toggles per-line elapsed-time prefixing for -t/--timestamp.
func (e *Executor) SetTimestamp(enable bool) {
	e.Timestamp = enable
}

type handle struct {
	cmd         *exec.Cmd
	ptmx        *os.File
	ioDone      <-chan struct{}
	gracePeriod time.Duration

	mu          sync.Mutex
	terminating bool
}

// Wait blocks until the process exits and IO copying has drained.
func (h *handle) Wait() error {
	err := h.cmd.Wait()
	<-h.ioDone
	return err
}

// Terminate sends an interrupt, then escalates to Kill if the process
// has not exited within the grace period.
func (h *handle) Terminate() error {
	h.mu.Lock()
	if h.terminating {
		h.mu.Unlock()
		return nil
	}
	h.terminating = true
	h.mu.Unlock()

	proc := h.cmd.Process
	if proc == nil {
		return nil
	}

	_ = proc.Signal(interruptSignal())

	timer := time.NewTimer(h.gracePeriod)
	defer timer.Stop()
	done := make(chan struct{})
	go func() {
		_, _ = h.cmd.Process.Wait() //nolint:errcheck // best-effort wait race against the timer
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return proc.Kill()
	}
}

// Spawn starts task.Command through the platform shell with the given
// environment and working directory. onPipe is called once per matched
// pipe pattern, per output line.
func (e *Executor) Spawn(ctx context.Context, task *domain.Task, env []string, workingDir string,
	stdout, stderr io.Writer, onPipe func(varName, value string)) (ports.Handle, error) {

	if task.Command == "" {
		return nil, zerr.With(domain.ErrTaskSpawnFailed, "task_name", task.Name.String(), "reason", "empty command")
	}

	pipes, err := compilePipes(task.Pipes)
	if err != nil {
		return nil, err
	}

	shellName, shellArgs := platformShell(task.Command)
	cmd := exec.CommandContext(ctx, shellName, shellArgs...) //nolint:gosec // task.Command comes from the user's own config
	cmd.Dir = workingDir
	cmd.Env = env

	lw := &lineWriter{out: io.MultiWriter(stdout), pipes: pipes, onPipe: onPipe}
	if e.Timestamp {
		lw.start = time.Now()
	}

	gracePeriod := e.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = DefaultGracePeriod
	}

	if runtime.GOOS == "windows" {
		cmd.Stdout = lw
		cmd.Stderr = lw
		if err := cmd.Start(); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrTaskSpawnFailed.Error()), "task_name", task.Name.String())
		}
		ioDone := make(chan struct{})
		close(ioDone)
		return &handle{cmd: cmd, ioDone: ioDone, gracePeriod: gracePeriod}, nil
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrTaskSpawnFailed.Error()), "task_name", task.Name.String())
	}

	ioDone := make(chan struct{})
	go func() {
		defer close(ioDone)
		defer func() { _ = ptmx.Close() }()
		defer func() { _ = lw.Close() }()
		_, _ = io.Copy(lw, ptmx)
	}()

	return &handle{cmd: cmd, ptmx: ptmx, ioDone: ioDone, gracePeriod: gracePeriod}, nil
}

func compilePipes(declared []domain.Pipe) ([]compiledPipe, error) {
	out := make([]compiledPipe, 0, len(declared))
	for _, p := range declared {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, zerr.With(domain.ErrBadPipeRegex, "pattern", p.Pattern)
		}
		out = append(out, compiledPipe{re: re, varName: p.Var})
	}
	return out, nil
}

type compiledPipe struct {
	re      *regexp.Regexp
	varName string
}

// lineWriter splits raw process output into lines, forwards every line to
// out, and evaluates each declared pipe pattern against it.
type lineWriter struct {
	out    io.Writer
	pipes  []compiledPipe
	onPipe func(varName, value string)
	buf    []byte
	// start is the spawn time; zero means timestamps are disabled.
	start time.Time
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if w.start.IsZero() {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
		w.scanPipes(p)
		return len(p), nil
	}

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emitLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	if len(w.buf) > 0 {
		if w.start.IsZero() {
			// Write already forwarded these raw bytes; only the pipe
			// patterns still need to see the unterminated last line.
			w.handleLine(w.buf)
		} else {
			w.emitLine(w.buf)
		}
		w.buf = nil
	}
	return nil
}

// scanPipes matches pipe patterns against p without splitting into lines,
// used when timestamps are disabled and raw output is passed straight
// through for minimum latency.
func (w *lineWriter) scanPipes(p []byte) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.handleLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
}

// emitLine writes one complete line, timestamp-prefixed, then evaluates
// pipe patterns against it.
func (w *lineWriter) emitLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	elapsed := time.Since(w.start)
	_, _ = io.WriteString(w.out, fmt.Sprintf("[%s] ", elapsed.Truncate(time.Millisecond)))
	_, _ = w.out.Write(line)
	_, _ = io.WriteString(w.out, "\n")
	w.handleLine(line)
}

func (w *lineWriter) handleLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	for _, p := range w.pipes {
		m := p.re.FindSubmatch(line)
		if m == nil {
			continue
		}
		value := string(m[0])
		if len(m) > 1 {
			value = string(m[1])
		}
		w.onPipe(p.varName, value)
	}
}

// platformShell builds the shell invocation for command on the current OS.
func platformShell(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}

func interruptSignal() os.Signal {
	return os.Interrupt
}
