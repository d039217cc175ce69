package tray

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// system holds the process calls a session makes. Sessions use osSystem
// unless a test installs another one on the Config.
type system struct {
	mkdirTemp    func(dir, pattern string) (string, error)
	evalSymlinks func(path string) (string, error)
	getwd        func() (string, error)
	chdir        func(dir string) error
	removeAll    func(path string) error
}

var osSystem = system{
	mkdirTemp:    os.MkdirTemp,
	evalSymlinks: filepath.EvalSymlinks,
	getwd:        os.Getwd,
	chdir:        os.Chdir,
	removeAll:    os.RemoveAll,
}

type sessionKey struct{}

// FromContext returns the tray of the session that ctx was handed to, if
// that session is still running. A context kept after its session ended
// reports false.
func FromContext(ctx context.Context) (*Tray, bool) {
	t, ok := ctx.Value(sessionKey{}).(*Tray)
	if !ok || !t.active.Load() {
		return nil, false
	}

	return t, true
}

// unwindCause describes why a work-item did not return: the value it
// panicked with, or ErrAborted for runtime.Goexit.
func unwindCause(r any) error {
	switch v := r.(type) {
	case nil:
		return ErrAborted
	case error:
		return fmt.Errorf("work-item panicked: %w", v)
	default:
		return fmt.Errorf("work-item panicked: %v", v)
	}
}

// run is the one implementation behind every entry point. The blocking
// entry points pass a context that never ends; the context entry points pass
// the caller's. Everything else is identical.
//
// Ordering:
//
//	acquire guard -> mkdtemp -> getwd -> chdir -> work
//	-> restore cwd -> remove dir -> release guard
//
// Teardown is deferred, so it runs when work returns, panics, or calls
// runtime.Goexit. A panic keeps propagating after teardown. If the working
// directory cannot be restored during such an unwind there is no return value
// to report it in, so run panics with the restore [*Error] instead, with the
// panic value or [ErrAborted] in Superseded.
func run(ctx context.Context, cfg *Config, work func(context.Context, *Tray) error) (err error) {
	if cfg == nil {
		cfg = &Config{}
	}

	debugf := cfg.debugf()
	sys := cfg.system()

	// Only a session that is still running can be waiting on us; a context
	// kept from an earlier session is fine.
	if outer, ok := FromContext(ctx); ok {
		return &Error{Op: OpAcquire, Path: outer.dir, Err: ErrNested}
	}

	tk, err := dirGuard.acquire(ctx)
	if err != nil {
		return &Error{Op: OpAcquire, Err: err}
	}

	defer tk.release()

	id := uuid.NewString()

	if tk.recovered {
		debugf("tray %s: previous session unwound abnormally; guard recovered", id)
	}

	parent := cfg.tempDir()

	dir, err := sys.mkdirTemp(parent, cfg.pattern())
	if err != nil {
		return &Error{Op: OpCreate, Path: parent, Err: err}
	}

	t := &Tray{id: id, dir: dir}

	entered := false
	running := false
	finished := false

	defer func() {
		t.active.Store(false)

		unwinding := running && !finished
		if unwinding {
			tk.abandon()
			debugf("tray %s: work-item did not return normally", t.id)
		}

		var unwindErr *Error

		// Raised once teardown is complete.
		defer func() {
			if unwindErr != nil {
				panic(unwindErr)
			}
		}()

		removable := true

		if entered {
			restoreErr := sys.chdir(t.prev)
			if restoreErr != nil {
				debugf("tray %s: restore %s failed: %v", t.id, t.prev, restoreErr)

				infraErr := &Error{Op: OpRestore, Path: t.prev, Err: restoreErr}

				switch {
				case unwinding:
					infraErr.Superseded = unwindCause(recover())
					unwindErr = infraErr
				case err != nil:
					infraErr.Superseded = err
					debugf("tray %s: restore failed, superseding work-item error: %v", t.id, err)
				}

				err = infraErr

				// Never delete the directory we are standing in. Step out to its
				// parent if possible, otherwise leave it behind.
				fallbackErr := sys.chdir(filepath.Dir(t.dir))
				if fallbackErr != nil {
					removable = false
					infraErr.Err = errors.Join(restoreErr, fallbackErr)

					debugf("tray %s: cannot leave %s, not removing it: %v", t.id, t.dir, fallbackErr)
				}
			} else {
				debugf("tray %s: restored working directory %s", t.id, t.prev)
			}
		}

		if cfg.Keep {
			debugf("tray %s: keeping %s", t.id, dir)

			return
		}

		if !removable {
			return
		}

		removeErr := sys.removeAll(dir)
		if removeErr == nil {
			debugf("tray %s: removed %s", t.id, dir)

			return
		}

		if err != nil {
			debugf("tray %s: remove %s failed: %v", t.id, dir, removeErr)

			return
		}

		err = &Error{Op: OpRemove, Path: dir, Err: removeErr}
	}()

	// The tray path is reported in canonical form so that it compares equal
	// to os.Getwd() inside the session (e.g. /var -> /private/var on macOS).
	canonical, err := sys.evalSymlinks(dir)
	if err != nil {
		return &Error{Op: OpCreate, Path: dir, Err: err}
	}

	t.dir = canonical

	prev, err := sys.getwd()
	if err != nil {
		return &Error{Op: OpGetwd, Err: err}
	}

	t.prev = prev

	err = sys.chdir(t.dir)
	if err != nil {
		return &Error{Op: OpEnter, Path: t.dir, Err: err}
	}

	entered = true

	debugf("tray %s: entered %s (from %s)", t.id, t.dir, t.prev)

	running = true
	t.active.Store(true)
	err = work(context.WithValue(ctx, sessionKey{}, t), t)
	finished = true

	return err
}
