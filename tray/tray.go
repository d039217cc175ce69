// Package tray runs test code inside a fresh temporary working directory.
//
// A tray is a temporary directory that the process changes into for the
// duration of a function, so that code under test can read and write files
// by relative path without touching the repository or other tests:
//
//	err := tray.With(func(t *tray.Tray) error {
//		_, err := t.CreateText("config/app.toml", "port = 8080\n")
//		if err != nil {
//			return err
//		}
//
//		cfg, err := app.LoadConfig("config/app.toml")
//		...
//	})
//
// On return the previous working directory is restored and the temporary
// directory is removed. This also happens when the function panics or calls
// runtime.Goexit (t.Fatal, t.FailNow, t.SkipNow).
//
// # Serialization
//
// The working directory belongs to the process, not to a goroutine. To keep
// parallel tests from switching it underneath each other, every session in
// the process takes one global guard for its whole duration. Sandboxed test
// bodies therefore run one at a time, even under t.Parallel. If that is too
// slow, run the tests in separate processes.
//
// # Entry points
//
//   - [With] and [Try] block the calling goroutine while waiting for the
//     guard.
//   - [WithContext] and [TryContext] stop waiting when the context ends, hand
//     the context to the work-item, and reject nested use with [ErrNested].
//   - [Start] runs the session on its own goroutine and returns a [Pending]
//     handle (not available when built with the littertray_noasync tag).
//   - [Run] is a testing shorthand that fails the test on setup errors.
//
// Calling a blocking entry point from inside a running session deadlocks.
// The context entry points detect that case when given the session's
// context.
//
// # Errors
//
// Errors returned by the work-item are passed through unchanged. Failures of
// the tray itself are reported as [*Error] with an [Op] naming the step. If
// restoring the working directory fails while the work-item error is pending,
// the restore error is returned and the work-item error is kept in
// [Error.Superseded]. If it fails while the work-item panics or calls
// runtime.Goexit, the session panics with that [*Error] so the broken
// working directory cannot go unnoticed.
//
// # Containment
//
// A tray is not a security boundary. Only relative paths are affected by the
// directory switch; absolute paths reach the real filesystem. The [Tray]
// helpers refuse absolute paths outside the tray ([ErrUncontained]) but plain
// os calls do not.
package tray

import (
	"context"
	"os"
	"sync/atomic"
)

// Tray is the handle a work-item receives. It is valid only while the
// work-item runs.
type Tray struct {
	noCopy noCopy

	id   string
	dir  string
	prev string

	// active is true while the work-item runs.
	active atomic.Bool
}

// Dir returns the absolute, symlink-resolved path of the tray directory.
// The directory is removed when the session ends.
func (t *Tray) Dir() string {
	return t.dir
}

// ID returns a random identifier for this session, as used in debug output.
func (t *Tray) ID() string {
	return t.id
}

// PreviousDir returns the working directory that will be restored when the
// session ends.
func (t *Tray) PreviousDir() string {
	return t.prev
}

// Config configures sessions.
//
// The zero value is a usable default: trays are created in [os.TempDir] with
// the pattern "littertray-*", removed on exit, and nothing is logged.
type Config struct {
	// TempDir is the directory in which trays are created. Empty means
	// os.TempDir().
	TempDir string

	// Pattern is the os.MkdirTemp pattern for the tray directory name.
	// Empty means "littertray-*".
	Pattern string

	// Keep leaves the tray directory on disk after the session. The working
	// directory is still restored.
	Keep bool

	// Debugf receives lifecycle messages. Nil disables them.
	Debugf Debugf

	// sys overrides process calls in tests.
	sys *system
}

// DefaultPattern is the tray directory name pattern used when
// [Config.Pattern] is empty.
const DefaultPattern = "littertray-*"

// Debugf receives debug messages from session setup and teardown.
//
// The function should be safe to call from any goroutine.
type Debugf func(format string, args ...any)

func (c *Config) debugf() Debugf {
	if c.Debugf == nil {
		return func(string, ...any) {}
	}

	return c.Debugf
}

func (c *Config) system() *system {
	if c.sys == nil {
		return &osSystem
	}

	return c.sys
}

func (c *Config) tempDir() string {
	if c.TempDir == "" {
		return os.TempDir()
	}

	return c.TempDir
}

func (c *Config) pattern() string {
	if c.Pattern == "" {
		return DefaultPattern
	}

	return c.Pattern
}

// With runs work in a new tray, blocking until the directory guard is free.
//
// The error is work's error unchanged, or an [*Error] if the tray could not
// be set up or torn down.
func With(work func(*Tray) error) error {
	return (*Config)(nil).With(work)
}

// With is [With] using c. A nil c is the zero Config.
func (c *Config) With(work func(*Tray) error) error {
	return run(context.Background(), c, func(_ context.Context, t *Tray) error {
		return work(t)
	})
}

// WithContext runs work in a new tray. Waiting for the directory guard stops
// with an [OpAcquire] error when ctx ends. work receives a context derived
// from ctx that identifies the session (see [FromContext]); passing it to
// another context entry point returns [ErrNested].
//
// Cancelling ctx while work runs does not interrupt it; work is expected to
// watch ctx itself. Teardown runs either way.
func WithContext(ctx context.Context, work func(context.Context, *Tray) error) error {
	return (*Config)(nil).WithContext(ctx, work)
}

// WithContext is [WithContext] using c. A nil c is the zero Config.
func (c *Config) WithContext(ctx context.Context, work func(context.Context, *Tray) error) error {
	return run(ctx, c, work)
}

// Try is [With] for work-items that produce a value. On error the zero value
// is returned.
func Try[T any](work func(*Tray) (T, error)) (T, error) {
	return TryWith(context.Background(), nil, func(_ context.Context, t *Tray) (T, error) {
		return work(t)
	})
}

// TryContext is [WithContext] for work-items that produce a value.
func TryContext[T any](ctx context.Context, work func(context.Context, *Tray) (T, error)) (T, error) {
	return TryWith(ctx, nil, work)
}

// TryWith is [TryContext] using cfg. A nil cfg is the zero Config.
func TryWith[T any](ctx context.Context, cfg *Config, work func(context.Context, *Tray) (T, error)) (T, error) {
	var out T

	err := run(ctx, cfg, func(ctx context.Context, t *Tray) error {
		v, err := work(ctx, t)
		if err != nil {
			return err
		}

		out = v

		return nil
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return out, nil
}

// TB is the part of testing.TB that [Run] needs.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Run runs work in a new tray and fails tb if the tray could not be set up
// or torn down. Assertions inside work should use tb directly:
//
//	tray.Run(t, func(tr *tray.Tray) {
//		mustCreate(t, tr, "go.mod")
//		if got := detectModule("."); got != want {
//			t.Fatalf(...)
//		}
//	})
//
// Calling tb.Fatalf (or FailNow) inside work is fine; the tray is still torn
// down.
func Run(tb TB, work func(*Tray)) {
	tb.Helper()

	err := With(func(t *Tray) error {
		work(t)

		return nil
	})
	if err != nil {
		tb.Fatalf("%v", err)
	}
}

// marker for go vet.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
