package tray

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// CreateText writes contents to path, creating parent directories as needed.
// An existing file is truncated. It returns the path that was written.
//
// path is resolved as described on [Tray.CreateBinary].
func (t *Tray) CreateText(path, contents string) (string, error) {
	return t.create("create", path, []byte(contents))
}

// CreateBinary writes data to path, creating parent directories as needed.
// An existing file is truncated. It returns the path that was written.
//
// A relative path is resolved against the current working directory (the
// tray, unless the work-item changed directory) after "." and ".." elements
// are removed lexically; ".." never climbs above the starting point. An
// absolute path must lie inside [Tray.Dir], otherwise the error wraps
// [ErrUncontained]. Filesystem errors are returned as the os package reports
// them.
func (t *Tray) CreateBinary(path string, data []byte) (string, error) {
	return t.create("create", path, data)
}

func (t *Tray) create(op, path string, data []byte) (string, error) {
	p, err := t.resolve(op, path)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(filepath.Dir(p), dirPerm)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(p, data, filePerm)
	if err != nil {
		return "", err
	}

	return p, nil
}

// MakeDir creates path and any missing parents. Existing directories are not
// an error. It returns the path that was created.
func (t *Tray) MakeDir(path string) (string, error) {
	p, err := t.resolve("mkdir", path)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(p, dirPerm)
	if err != nil {
		return "", err
	}

	return p, nil
}

// MakeSymlink creates a symbolic link at link pointing to target and returns
// the link path. Parent directories of link are created.
//
// link follows the rules of [Tray.CreateBinary]. target is cleaned and
// checked the same way but stored as given: a relative target is resolved
// by the filesystem from the link's own directory, not from the working
// directory, so MakeSymlink("config", "a/cur") points at a/config. target
// does not have to exist.
func (t *Tray) MakeSymlink(target, link string) (string, error) {
	targetPath, err := t.resolve("symlink", target)
	if err != nil {
		return "", err
	}

	linkPath, err := t.resolve("symlink", link)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(filepath.Dir(linkPath), dirPerm)
	if err != nil {
		return "", err
	}

	err = os.Symlink(targetPath, linkPath)
	if err != nil {
		return "", err
	}

	return linkPath, nil
}

// MakeFifo creates a named pipe at path and returns its path. Parent
// directories are created. On platforms without named pipes the error wraps
// [ErrUnsupported].
func (t *Tray) MakeFifo(path string) (string, error) {
	p, err := t.resolve("mkfifo", path)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(filepath.Dir(p), dirPerm)
	if err != nil {
		return "", err
	}

	err = mkfifo(p, filePerm)
	if err != nil {
		return "", err
	}

	return p, nil
}

// Join returns the absolute path of elem inside the tray. ".." elements and
// symlinks are resolved as if the tray directory were the filesystem root, so
// the result never points outside [Tray.Dir].
func (t *Tray) Join(elem ...string) (string, error) {
	p, err := securejoin.SecureJoin(t.dir, filepath.Join(elem...))
	if err != nil {
		return "", &fs.PathError{Op: "join", Path: filepath.Join(elem...), Err: err}
	}

	return p, nil
}

// resolve applies the helper path rules. The result is relative when path is
// relative, so that it follows the current working directory.
func (t *Tray) resolve(op, path string) (string, error) {
	p := dedot(path)

	if filepath.IsAbs(p) && !within(t.dir, p) {
		return "", &fs.PathError{Op: op, Path: path, Err: ErrUncontained}
	}

	return p, nil
}

// dedot removes "." and ".." elements lexically. Leading ".." elements of a
// relative path are dropped rather than kept, so "../../a" becomes "a".
func dedot(path string) string {
	p := filepath.Clean(path)
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return p
	}

	parts := strings.Split(p, string(filepath.Separator))

	i := 0
	for i < len(parts) && parts[i] == ".." {
		i++
	}

	rest := filepath.Join(parts[i:]...)
	if rest == "" {
		return "."
	}

	return rest
}

// within reports whether p is root or below it. Both must be absolute and
// clean.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
