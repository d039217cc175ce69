package main

import (
	"context"
	"errors"
	"io"
	"maps"
	"path/filepath"
	"sync"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/littertray/fixture"
	"github.com/calvinalkan/littertray/tray"
)

// ErrNoCommand is returned when run is called without a command.
var ErrNoCommand = errors.New("no command specified")

// Environment variables set for the child process.
const (
	envTrayDir = "LITTERTRAY_DIR"
	envTrayID  = "LITTERTRAY_ID"
)

// runOptions are the effective settings for one run after merging config
// files and flags.
type runOptions struct {
	TempDir string
	Pattern string
	Keep    bool
	Fixture string
}

// trayTracker records the tray a running command is using, so that Run can
// name it when it has to exit before teardown. A nil tracker records nothing.
type trayTracker struct {
	mu  sync.Mutex
	dir string
}

func (tt *trayTracker) set(dir string) {
	if tt == nil {
		return
	}

	tt.mu.Lock()
	tt.dir = dir
	tt.mu.Unlock()
}

func (tt *trayTracker) current() (string, bool) {
	if tt == nil {
		return "", false
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()

	return tt.dir, tt.dir != ""
}

// RunCmd creates the run command, which executes a command inside a fresh tray.
// active, if not nil, holds the tray path from entry until teardown finished.
func RunCmd(cfg *Config, env map[string]string, active *trayTracker) *Command {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.SetInterspersed(false) // Stop parsing at command
	flags.BoolP("help", "h", false, "Show help")
	flags.StringP("fixture", "f", "", "Populate the tray from fixture `file` (.json, .jsonc or .toml)")
	flags.Bool("keep", false, "Keep the tray after the command exits")
	flags.Bool("debug", false, "Print tray lifecycle details to stderr")
	flags.String("temp-dir", "", "Create the tray under `dir`")
	flags.String("pattern", "", "Tray directory name `pattern` (see os.MkdirTemp)")

	return &Command{
		Flags: flags,
		Usage: "run [flags] <command> [args]",
		Short: "Run command in a fresh tray",
		Long: "Create a temporary directory, run the command with it as the working directory,\n" +
			"then remove it. The command's exit status is passed through. The tray path is\n" +
			"exported as " + envTrayDir + ".",
		Aliases: []string{},
		Exec: func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
			if len(args) == 0 {
				return ErrNoCommand
			}

			debugEnabled, _ := flags.GetBool("debug")

			var debug *DebugLogger
			if debugEnabled {
				debug = NewDebugLogger(stderr)
			} else {
				debug = NewDebugLogger(nil)
			}

			debugConfigLoading(debug, cfg)

			opts := resolveRunOptions(cfg, flags)
			debugRunOptions(debug, cfg, opts, flags)

			var fx *fixture.Fixture

			if opts.Fixture != "" {
				var err error

				fx, err = fixture.Load(opts.Fixture)
				if err != nil {
					return err
				}
			}

			trayCfg := &tray.Config{
				TempDir: opts.TempDir,
				Pattern: opts.Pattern,
				Keep:    opts.Keep,
			}

			debug.Section("Tray")
			trayCfg.Debugf = debug.Tracef()

			var exitCode int

			err := trayCfg.WithContext(ctx, func(ctx context.Context, t *tray.Tray) error {
				active.set(t.Dir())

				if fx != nil {
					err := fx.Apply(t)
					if err != nil {
						return err
					}

					debug.Bulletf("applied %d fixture entries from %s", fx.Len(), opts.Fixture)
				}

				childEnv := maps.Clone(env)
				if childEnv == nil {
					childEnv = make(map[string]string)
				}

				childEnv[envTrayDir] = t.Dir()
				childEnv[envTrayID] = t.ID()

				debug.Section("Command")
				debug.Command(args)

				if opts.Keep {
					fprintf(stderr, "littertray: keeping %s\n", t.Dir())
				}

				var err error

				exitCode, err = ExecuteCommand(ctx, t.Dir(), args, childEnv, stdin, stdout, stderr)

				return err
			})

			// Teardown is over; removed or kept, the tray is no longer ours.
			active.set("")

			if err != nil {
				return err
			}

			if exitCode != 0 {
				return &ExitCodeError{Code: exitCode}
			}

			return nil
		},
	}
}

// resolveRunOptions merges config values with flags. Flags win; relative
// flag paths are resolved against the effective working directory.
func resolveRunOptions(cfg *Config, flags *flag.FlagSet) runOptions {
	opts := runOptions{
		TempDir: cfg.TempDir,
		Pattern: cfg.Pattern,
		Fixture: cfg.Fixture,
	}

	if cfg.Keep != nil {
		opts.Keep = *cfg.Keep
	}

	if flags.Changed("temp-dir") {
		v, _ := flags.GetString("temp-dir")
		opts.TempDir = resolveAgainst(cfg.EffectiveCwd, v)
	}

	if flags.Changed("pattern") {
		opts.Pattern, _ = flags.GetString("pattern")
	}

	if flags.Changed("keep") {
		opts.Keep, _ = flags.GetBool("keep")
	}

	if flags.Changed("fixture") {
		v, _ := flags.GetString("fixture")
		opts.Fixture = resolveAgainst(cfg.EffectiveCwd, v)
	}

	if opts.TempDir != "" {
		opts.TempDir = filepath.Clean(opts.TempDir)
	}

	return opts
}
