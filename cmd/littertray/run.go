package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	flag "github.com/spf13/pflag"
)

// cleanupTimeout bounds how long Run waits, after the first interrupt, for
// the command to stop its child and remove the tray.
const cleanupTimeout = 10 * time.Second

// globalOptions are the flags that come before the command name.
type globalOptions struct {
	help    bool
	version bool
	cwd     string
	config  string

	// rest is the command name and its arguments.
	rest []string
}

// Run is the main entry point. Returns exit code.
// sigCh can be nil if signal handling is not needed (e.g., in tests).
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	opts, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		printGlobalOptions(stderr)

		return 1
	}

	// --version works even with a broken config file.
	if opts.version {
		printVersion(stdout)

		return 0
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: opts.cwd,
		ConfigPath:      opts.config,
		Env:             env,
	})
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	active := &trayTracker{}

	commands := []*Command{
		RunCmd(&cfg, env, active),
		CheckCmd(&cfg),
	}

	if opts.help || len(opts.rest) == 0 {
		printUsage(stdout, commands)

		return 0
	}

	cmd, cmdArgs := dispatch(commands, opts.rest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The command runs on its own goroutine so a signal can be handled while
	// it waits for its child.
	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, stdin, stdout, stderr, cmdArgs)
	}()

	return awaitCommand(stderr, done, cancel, sigCh, active)
}

func parseGlobalFlags(args []string) (globalOptions, error) {
	var opts globalOptions

	// A fresh FlagSet per call; Run is invoked many times in one test binary.
	globalFlags := flag.NewFlagSet("littertray", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	globalFlags.BoolVarP(&opts.help, "help", "h", false, "Show help")
	globalFlags.BoolVarP(&opts.version, "version", "v", false, "Show version and exit")
	globalFlags.StringVarP(&opts.cwd, "cwd", "C", "", "Run as if started in `dir`")
	globalFlags.StringVar(&opts.config, "config", "", "Use specified config `file`")

	err := globalFlags.Parse(args)
	if err != nil {
		return globalOptions{}, err
	}

	opts.rest = globalFlags.Args()

	return opts, nil
}

// dispatch picks the command named by rest[0]. Anything that is not a
// command name is the program to run in a tray, so it goes to "run" whole.
func dispatch(commands []*Command, rest []string) (*Command, []string) {
	var fallback *Command

	for _, cmd := range commands {
		if cmd.Name() == "run" {
			fallback = cmd
		}

		if cmd.Name() == rest[0] || slices.Contains(cmd.Aliases, rest[0]) {
			return cmd, rest[1:]
		}
	}

	return fallback, rest
}

// awaitCommand waits for the command to finish and returns its exit code.
//
// The first signal cancels the command's context, which stops the child;
// the tray is then torn down as usual. A second signal, or cleanupTimeout,
// stops waiting. The command goroutine still owns the tray at that point and
// dies with the process, so the tray path is printed for manual cleanup.
func awaitCommand(stderr io.Writer, done <-chan int, cancel context.CancelFunc, sigCh <-chan os.Signal, active *trayTracker) int {
	if sigCh == nil {
		return <-done
	}

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(stderr, "Interrupted, removing tray... (Ctrl+C again to force exit)")
		cancel()
	}

	timeout := time.NewTimer(cleanupTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		fprintln(stderr, "Cleanup complete.")

		return 130
	case <-timeout.C:
		fprintln(stderr, "Cleanup timed out, forced exit.")
	case <-sigCh:
		fprintln(stderr, "Forced exit.")
	}

	if dir, ok := active.current(); ok {
		_, err := os.Stat(dir)
		if err == nil {
			fprintf(stderr, "littertray: tray left at %s\n", dir)
		}
	}

	return 130
}

func printVersion(output io.Writer) {
	if commit == "none" && date == "unknown" {
		fprintf(output, "littertray %s (built from source)\n", version)

		return
	}

	fprintf(output, "littertray %s (%s, %s)\n", version, commit, date)
}

func fprintln(output io.Writer, a ...any) {
	_, _ = fmt.Fprintln(output, a...)
}

func fprintf(output io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(output, format, a...)
}

// ANSI color codes for terminal output.
const (
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

// fprintError prints an error message, with a red prefix when stdin is a
// terminal.
func fprintError(output io.Writer, err error) {
	prefix := "error:"
	if IsTerminal() {
		prefix = colorRed + prefix + colorReset
	}

	fprintln(output, prefix, err)
}

const globalOptionsHelp = `  -h, --help             Show help
  -v, --version          Show version and exit
  -C, --cwd <dir>        Run as if started in <dir>
      --config <file>    Use specified config file`

func printGlobalOptions(output io.Writer) {
	fprintln(output, "Usage: littertray [flags] <command> [args]")
	fprintln(output)
	fprintln(output, "Global flags:")
	fprintln(output, globalOptionsHelp)
	fprintln(output)
	fprintln(output, "Run 'littertray --help' for a list of commands.")
}

func printUsage(output io.Writer, commands []*Command) {
	fprintln(output, "littertray - run commands in a throwaway working directory")
	fprintln(output)
	fprintln(output, "Usage: littertray [flags] <command> [args]")
	fprintln(output)
	fprintln(output, "Flags:")
	fprintln(output, globalOptionsHelp)
	fprintln(output)
	fprintln(output, "Commands:")

	for _, cmd := range commands {
		fprintln(output, cmd.HelpLine())
	}

	fprintln(output)
	fprintln(output, "Anything that is not a command runs as 'littertray run <command> [args]'.")
	fprintln(output, "Run 'littertray <command> --help' for more information on a command.")
}

// isTerminal reports whether stdin is a terminal. Tests override it.
var isTerminal = func() bool {
	fd := os.Stdin.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsTerminal returns true if stdin is a terminal.
func IsTerminal() bool {
	return isTerminal()
}
