package logger

import "io"

// nop discards every log call. It is used by tests that need a Logger
// without output; the commands use New().
type nop struct{}

// NewNop returns a Logger that discards everything written to it.
func NewNop() *nop { //nolint:revive // unexported return is intentional, mirrors New()'s ports.Logger return
	return &nop{}
}

func (nop) Info(string)         {}
func (nop) Warn(string)         {}
func (nop) Error(error)         {}
func (nop) SetOutput(io.Writer) {}
func (nop) SetJSON(bool)        {}
