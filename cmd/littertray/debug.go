package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/kballard/go-shellquote"
)

// DebugLogger writes the --debug report: which config files were read, where
// each setting came from, and what the tray did while the command ran.
// A logger with nil output is disabled and every method is a no-op.
type DebugLogger struct {
	// The tray's lifecycle messages arrive through Tracef and may come from
	// another goroutine than the command's own output.
	mu     sync.Mutex
	output io.Writer
}

// NewDebugLogger creates a new debug logger.
// If output is nil, the logger is disabled and all methods are no-ops.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Enabled returns true if debug logging is enabled.
func (d *DebugLogger) Enabled() bool {
	return d.output != nil
}

func (d *DebugLogger) printf(format string, args ...any) {
	if d.output == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, _ = fmt.Fprintf(d.output, format, args...)
}

// Section starts a new block of the report.
func (d *DebugLogger) Section(name string) {
	d.printf("\n=== %s ===\n", name)
}

// Logf writes one line.
func (d *DebugLogger) Logf(format string, args ...any) {
	d.printf(format+"\n", args...)
}

// Bulletf writes one indented bullet line.
func (d *DebugLogger) Bulletf(format string, args ...any) {
	d.printf("  • "+format+"\n", args...)
}

// ConfigFile reports one config file location and whether it was read.
func (d *DebugLogger) ConfigFile(label, path string, loaded bool) {
	if !loaded {
		path = "(not found)"
	}

	d.printf("  %s: %s\n", label, path)
}

// Setting reports an effective setting and where it came from. Empty strings
// are shown as "(default)".
func (d *DebugLogger) Setting(name string, value any, source string) {
	if s, ok := value.(string); ok && s == "" {
		value = "(default)"
	}

	d.printf("  %s: %v (%s)\n", name, value, source)
}

// Command writes a command line, quoted so it can be pasted into a shell.
func (d *DebugLogger) Command(args []string) {
	d.printf("  %s\n", shellquote.Join(args...))
}

// Tracef returns a function suitable for tray.Config.Debugf, or nil when the
// logger is disabled so the tray does not format messages nobody reads.
func (d *DebugLogger) Tracef() func(format string, args ...any) {
	if !d.Enabled() {
		return nil
	}

	return d.Bulletf
}

// configLabels names each config file kind in the report, in the order the
// files are merged.
var configLabels = []struct {
	kind, label string
}{
	{kind: "global", label: "Global config"},
	{kind: "project", label: "Project config"},
	{kind: "explicit", label: "Explicit config (--config)"},
}

// debugConfigLoading reports which config files were read.
func debugConfigLoading(debug *DebugLogger, cfg *Config) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Config Loading")

	if len(cfg.LoadedConfigFiles) == 0 {
		debug.Logf("  No config files loaded (using defaults)")

		return
	}

	_, explicit := cfg.LoadedConfigFiles["explicit"]

	for _, l := range configLabels {
		// Project and explicit config are alternatives; show the one in use.
		if (l.kind == "project" && explicit) || (l.kind == "explicit" && !explicit) {
			continue
		}

		path, ok := cfg.LoadedConfigFiles[l.kind]
		debug.ConfigFile(l.label, path, ok)
	}
}

// FlagChecker is an interface for checking if CLI flags were set.
type FlagChecker interface {
	Changed(name string) bool
}

// debugRunOptions reports the effective run options and where each came from.
func debugRunOptions(debug *DebugLogger, cfg *Config, opts runOptions, flags FlagChecker) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Config Merge")
	debug.Setting("tempDir", opts.TempDir, configSource(cfg, "tempDir", "temp-dir", flags))
	debug.Setting("pattern", opts.Pattern, configSource(cfg, "pattern", "pattern", flags))
	debug.Setting("keep", opts.Keep, configSource(cfg, "keep", "keep", flags))
	debug.Setting("fixture", opts.Fixture, configSource(cfg, "fixture", "fixture", flags))
}

// configSource names where a setting came from: "cli" when its flag was
// given, otherwise the config file that set key last, otherwise "default".
func configSource(cfg *Config, key, flagName string, flags FlagChecker) string {
	if flags != nil && flags.Changed(flagName) {
		return "cli"
	}

	if source, ok := cfg.Origins[key]; ok {
		return source
	}

	return "default"
}
