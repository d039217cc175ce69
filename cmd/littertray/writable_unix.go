//go:build unix

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkWritable reports whether the current user may create entries in dir.
func checkWritable(dir string) error {
	err := unix.Access(dir, unix.W_OK|unix.X_OK)
	if err != nil {
		return fmt.Errorf("access %s: %w", dir, err)
	}

	return nil
}
