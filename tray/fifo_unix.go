//go:build unix

package tray

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

func mkfifo(path string, perm fs.FileMode) error {
	err := unix.Mkfifo(path, uint32(perm.Perm()))
	if err != nil {
		return &fs.PathError{Op: "mkfifo", Path: path, Err: err}
	}

	return nil
}
