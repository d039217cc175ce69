//go:build !unix

package tray

import "io/fs"

func mkfifo(path string, _ fs.FileMode) error {
	return &fs.PathError{Op: "mkfifo", Path: path, Err: ErrUnsupported}
}
