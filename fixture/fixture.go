// Package fixture describes the initial contents of a tray declaratively.
//
// A fixture file lists directories, text files, binary files, symlinks and
// named pipes to create. It can be written as JSON with comments (.json or
// .jsonc, parsed with hujson) or as TOML:
//
//	{
//		// created first, in sorted order
//		"dirs": ["logs", "cache/tmp"],
//		"files": {"config/app.toml": "port = 8080\n"},
//		"binary": {"data/blob.bin": "AAEC"}, // base64
//		"symlinks": {"current": "config"},   // link -> target
//		"fifos": ["run/events"]
//	}
//
// Apply creates every entry through the [tray.Tray] helpers, so the same path
// rules apply: relative paths land in the tray and absolute paths outside it
// are rejected.
package fixture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/littertray/tray"
)

// ErrUnknownFormat is returned for fixture files whose extension is not
// .json, .jsonc or .toml.
var ErrUnknownFormat = errors.New("unknown fixture format")

// Format selects the fixture file syntax.
type Format string

const (
	// FormatJSON is JSON with comments and trailing commas (hujson).
	FormatJSON Format = "json"
	// FormatTOML is TOML.
	FormatTOML Format = "toml"
)

// Fixture is the declared contents of a tray.
type Fixture struct {
	Dirs  []string          `json:"dirs,omitempty"  toml:"dirs"`
	Files map[string]string `json:"files,omitempty" toml:"files"`

	// Binary maps paths to raw bytes, written as base64 in both formats.
	Binary map[string]Bytes `json:"binary,omitempty" toml:"binary"`

	// Symlinks maps link paths to their targets.
	Symlinks map[string]string `json:"symlinks,omitempty" toml:"symlinks"`

	Fifos []string `json:"fifos,omitempty" toml:"fifos"`
}

// Bytes is binary content, base64-encoded (standard alphabet, padded) in
// fixture files.
type Bytes []byte

// UnmarshalText decodes base64 text.
func (b *Bytes) UnmarshalText(text []byte) error {
	decoded, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decoding base64: %w", err)
	}

	*b = decoded

	return nil
}

// MarshalText encodes b as base64 text.
func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(b)), nil
}

// FormatFor returns the format implied by path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads and parses the fixture file at path.
func Load(path string) (*Fixture, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}

	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}

	return f, nil
}

// Parse parses fixture data in the given format.
func Parse(data []byte, format Format) (*Fixture, error) {
	var f Fixture

	switch format {
	case FormatJSON:
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, err
		}

		dec := json.NewDecoder(bytes.NewReader(standardized))
		dec.DisallowUnknownFields()

		err = dec.Decode(&f)
		if err != nil {
			return nil, err
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, err
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys: %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return &f, nil
}

// Apply creates the fixture's entries in t. Directories come first, then text
// files, binary files, symlinks and named pipes; each group in sorted path
// order. The first failure stops Apply and is returned with the entry it
// belongs to.
func (f *Fixture) Apply(t *tray.Tray) error {
	for _, dir := range sorted(f.Dirs) {
		_, err := t.MakeDir(dir)
		if err != nil {
			return fmt.Errorf("fixture dir %s: %w", dir, err)
		}
	}

	for _, path := range sortedKeys(f.Files) {
		_, err := t.CreateText(path, f.Files[path])
		if err != nil {
			return fmt.Errorf("fixture file %s: %w", path, err)
		}
	}

	for _, path := range sortedKeys(f.Binary) {
		_, err := t.CreateBinary(path, f.Binary[path])
		if err != nil {
			return fmt.Errorf("fixture binary %s: %w", path, err)
		}
	}

	for _, link := range sortedKeys(f.Symlinks) {
		_, err := t.MakeSymlink(f.Symlinks[link], link)
		if err != nil {
			return fmt.Errorf("fixture symlink %s: %w", link, err)
		}
	}

	for _, path := range sorted(f.Fifos) {
		_, err := t.MakeFifo(path)
		if err != nil {
			return fmt.Errorf("fixture fifo %s: %w", path, err)
		}
	}

	return nil
}

// Len returns the number of entries the fixture creates.
func (f *Fixture) Len() int {
	return len(f.Dirs) + len(f.Files) + len(f.Binary) + len(f.Symlinks) + len(f.Fifos)
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
