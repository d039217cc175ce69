//go:build !littertray_noasync

package tray

import (
	"context"
	"fmt"
)

// Pending is a session running on its own goroutine, as returned by [Start].
type Pending[T any] struct {
	done chan struct{}

	value T
	err   error

	panicked   bool
	panicValue any
}

// Start runs work in a new tray on a new goroutine and returns immediately.
// Waiting for the guard, running work and teardown all happen on that
// goroutine, so the caller can keep doing other things (including waiting on
// several Pending sessions, which will run one after another).
//
// Like [WithContext], waiting for the guard stops when ctx ends and work
// receives a session context.
func Start[T any](ctx context.Context, work func(context.Context, *Tray) (T, error)) *Pending[T] {
	return StartWith(ctx, nil, work)
}

// StartWith is [Start] using cfg. A nil cfg is the zero Config.
func StartWith[T any](ctx context.Context, cfg *Config, work func(context.Context, *Tray) (T, error)) *Pending[T] {
	p := &Pending[T]{done: make(chan struct{})}

	go func() {
		defer close(p.done)

		returned := false

		defer func() {
			r := recover()
			if r != nil {
				p.panicked = true
				p.panicValue = r

				return
			}

			if !returned {
				p.err = ErrAborted
			}
		}()

		p.value, p.err = TryWith(ctx, cfg, work)
		returned = true
	}()

	return p
}

// Done is closed once the session has been torn down.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the session has been torn down or ctx ends, and returns
// the result of the work-item. If ctx ends first, Wait returns ctx.Err() and
// the session carries on in the background.
//
// If the work-item panicked, Wait panics with the same value on the calling
// goroutine. The tray has already been torn down at that point.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		var zero T

		return zero, fmt.Errorf("tray: waiting for session: %w", ctx.Err())
	}

	if p.panicked {
		panic(p.panicValue)
	}

	return p.value, p.err
}
