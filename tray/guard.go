package tray

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// dirGuard serializes every session in the process. The working directory is
// process state, so there is exactly one of these.
var dirGuard = newGuard()

// guard is a weight-1 semaphore so that waiting can stop when a context ends.
//
// Go locks do not poison. A session that unwinds abnormally still releases
// the guard from a deferred call; the guard only remembers that it happened so
// the next holder can say so in its debug output.
type guard struct {
	sem       *semaphore.Weighted
	abandoned atomic.Bool
}

func newGuard() *guard {
	return &guard{sem: semaphore.NewWeighted(1)}
}

// acquire waits until no other session holds the guard. With a context that
// never ends it cannot fail.
func (g *guard) acquire(ctx context.Context) (*token, error) {
	err := g.sem.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}

	return &token{g: g, recovered: g.abandoned.Swap(false)}, nil
}

// held reports whether some session currently holds the guard.
func (g *guard) held() bool {
	if !g.sem.TryAcquire(1) {
		return true
	}

	g.sem.Release(1)

	return false
}

// token is the exclusive right to change the working directory.
type token struct {
	g    *guard
	once sync.Once

	// recovered is true when the previous holder unwound abnormally.
	recovered bool
	abnormal  bool
}

// abandon marks the holding session as unwinding abnormally.
func (tk *token) abandon() {
	tk.abnormal = true
}

// release gives the guard back. It is idempotent and never panics, so it is
// safe to call from deferred code during a panic.
func (tk *token) release() {
	tk.once.Do(func() {
		if tk.abnormal {
			tk.g.abandoned.Store(true)
		}

		tk.g.sem.Release(1)
	})
}
