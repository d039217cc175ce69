//go:build !unix

package main

import (
	"fmt"
	"os"
)

// checkWritable reports whether the current user may create entries in dir.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".littertray-check-*")
	if err != nil {
		return fmt.Errorf("creating probe in %s: %w", dir, err)
	}

	_ = f.Close()

	return os.Remove(f.Name())
}
