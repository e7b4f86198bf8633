// Package xerrors annotates errors with call-site information that
// internal/log renders as error_links and stack attributes.
//
// Wrap/Wrapf record the single PC of the caller. New/Newf/WithStack and
// EnsureTrace capture a full stack. Both wrapper types unwrap cleanly, so
// errors.Is and errors.As see straight through them.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// Re-exported so callers do not need a second errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }
func (a *annotated) PC() uintptr   { return a.pc }

// skip counts frames above the caller of the exported constructor
func stack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// +3 skips runtime.Callers, stack and the exported constructor
	n := runtime.Callers(skip+3, pcs)
	return pcs[:n]
}

func caller() uintptr {
	var pcs [1]uintptr
	// skip runtime.Callers, caller and the exported constructor
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns an error with msg and a captured stack.
func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stack(0)} }

// Newf is New with formatting. %w is honored.
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stack(0)}
}

// WithStack attaches the current stack to err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stack(0)}
}

// EnsureTrace attaches a stack only when no error in the chain carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stack(0)}
}

// Wrap prefixes err with msg and records the caller. nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: caller()}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: caller()}
}
