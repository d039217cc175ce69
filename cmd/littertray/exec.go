package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"
	"syscall"
	"time"
)

// killDelay is how long a child gets to exit after SIGTERM before it is
// killed. It is shorter than cleanupTimeout so the tray can still be removed
// inside the cleanup window.
const killDelay = 5 * time.Second

// ExecuteCommand runs command with dir as its working directory and returns
// its exit code. env is the child's complete environment.
//
// When ctx is cancelled the child gets SIGTERM, and SIGKILL if it is still
// running after killDelay. A child that dies from a signal reports 128+n,
// like a shell does.
func ExecuteCommand(
	ctx context.Context,
	dir string,
	command []string,
	env map[string]string,
	stdin io.Reader,
	stdout, stderr io.Writer,
) (int, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Sorted so that --debug output and test failures are stable.
	cmd.Env = make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}

	err := cmd.Start()
	if err != nil {
		return 1, fmt.Errorf("starting %s: %w", command[0], err)
	}

	exited := make(chan struct{})
	go terminateOnCancel(ctx, cmd, exited)

	err = cmd.Wait()

	close(exited)

	return exitStatus(command[0], err)
}

// terminateOnCancel signals cmd once ctx ends, until exited is closed.
func terminateOnCancel(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}) {
	select {
	case <-exited:
		return
	case <-ctx.Done():
	}

	// Ask first. Most tools clean up their own temp files on SIGTERM.
	_ = cmd.Process.Signal(syscall.SIGTERM)

	timer := time.NewTimer(killDelay)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
		_ = cmd.Process.Kill()
	}
}

// exitStatus converts the result of cmd.Wait into an exit code. Only failures
// to wait at all are returned as errors; a non-zero exit is a normal result.
func exitStatus(name string, err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, fmt.Errorf("waiting for %s: %w", name, err)
	}

	// ExitCode is -1 for a child killed by a signal.
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}

	return exitErr.ExitCode(), nil
}
