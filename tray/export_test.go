package tray

import "context"

// GuardHeld reports whether some session holds the directory guard.
func GuardHeld() bool {
	return dirGuard.held()
}

// SystemOverrides replaces process calls made by sessions run with a Config.
// Nil fields keep the real implementation.
type SystemOverrides struct {
	MkdirTemp func(dir, pattern string) (string, error)
	Getwd     func() (string, error)
	Chdir     func(dir string) error
	RemoveAll func(path string) error
}

// SetSystem installs o on cfg.
func SetSystem(cfg *Config, o SystemOverrides) {
	sys := osSystem

	if o.MkdirTemp != nil {
		sys.mkdirTemp = o.MkdirTemp
	}

	if o.Getwd != nil {
		sys.getwd = o.Getwd
	}

	if o.Chdir != nil {
		sys.chdir = o.Chdir
	}

	if o.RemoveAll != nil {
		sys.removeAll = o.RemoveAll
	}

	cfg.sys = &sys
}

// HoldGuard takes the directory guard without starting a session and returns
// the function that gives it back.
func HoldGuard(ctx context.Context) (func(), error) {
	tk, err := dirGuard.acquire(ctx)
	if err != nil {
		return nil, err
	}

	return tk.release, nil
}

var Dedot = dedot
