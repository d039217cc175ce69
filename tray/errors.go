package tray

import (
	"errors"
	"strings"
)

var (
	// ErrNested is returned when a context-aware entry point is called with a
	// context that already belongs to a running session. Waiting for the guard
	// from inside the session that holds it would never return.
	ErrNested = errors.New("tray: nested session")

	// ErrUncontained is returned by [Tray] helpers when an absolute path lies
	// outside the tray directory. Helpers make no attempt to intercept other
	// filesystem calls; absolute paths passed to os functions still escape.
	ErrUncontained = errors.New("requested path is outside of the tray")

	// ErrUnsupported is returned by helpers that the current platform cannot
	// provide (for example named pipes on Windows).
	ErrUnsupported = errors.New("operation not supported on this platform")

	// ErrAborted is returned by [Pending.Wait] when the work-item left its
	// goroutine through runtime.Goexit (t.FailNow and friends) instead of
	// returning.
	ErrAborted = errors.New("tray: work-item aborted")
)

// Op names the setup or teardown step that produced an infrastructure
// [Error].
type Op string

const (
	// OpAcquire: waiting for the directory guard failed (context ended, or
	// the call was nested inside another session).
	OpAcquire Op = "acquire guard"
	// OpCreate: the temporary directory could not be created or resolved.
	OpCreate Op = "create directory"
	// OpGetwd: the working directory before the switch could not be read.
	OpGetwd Op = "read working directory"
	// OpEnter: changing into the temporary directory failed.
	OpEnter Op = "enter directory"
	// OpRestore: changing back to the previous working directory failed.
	OpRestore Op = "restore working directory"
	// OpRemove: the temporary directory could not be removed.
	OpRemove Op = "remove directory"
)

// Error is an infrastructure error: a failure while setting up or tearing
// down a session, as opposed to an error returned by the work-item itself.
// Work-item errors are returned unchanged and are never of this type unless
// the work-item produced one.
//
// When restoring the working directory fails while the work-item error is
// already pending, the restore error wins and the work-item error is kept in
// Superseded.
type Error struct {
	Op   Op
	Path string
	Err  error

	// Superseded is the work-item error that this error displaced, if any.
	Superseded error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("tray: ")
	b.WriteString(string(e.Op))

	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	if e.Superseded != nil {
		b.WriteString(" (superseded: ")
		b.WriteString(e.Superseded.Error())
		b.WriteString(")")
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInfrastructure reports whether err is (or wraps) an infrastructure
// [Error].
func IsInfrastructure(err error) bool {
	var e *Error

	return errors.As(err, &e)
}
