package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/littertray/tray"
)

// CheckCmd creates the check command, which verifies that trays work here.
func CheckCmd(cfg *Config) *Command {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.BoolP("quiet", "q", false, "Quiet mode, no output")

	return &Command{
		Flags: flags,
		Usage: "check [flags]",
		Short: "Check that trays can be created here",
		Long: "Verify that the temp root is writable and that a tray round trip works:\n" +
			"the working directory is the tray inside, is restored after, and the tray\n" +
			"is removed. Exits 0 if all checks pass, 1 otherwise.",
		Aliases: []string{},
		Exec: func(ctx context.Context, _ io.Reader, stdout, _ io.Writer, _ []string) error {
			quiet, _ := flags.GetBool("quiet")

			report := func(format string, args ...any) {
				if !quiet {
					fprintf(stdout, format+"\n", args...)
				}
			}

			trayCfg := &tray.Config{TempDir: cfg.TempDir, Pattern: cfg.Pattern}

			root := cfg.TempDir
			if root == "" {
				root = os.TempDir()
			}

			err := checkWritable(root)
			if err != nil {
				report("fail: temp root %s is not writable: %v", root, err)

				return ErrSilentExit
			}

			report("ok: temp root %s is writable", root)

			failures := checkRoundTrip(ctx, trayCfg, report)
			if failures > 0 {
				return ErrSilentExit
			}

			return nil
		},
	}
}

// checkRoundTrip runs an empty tray session and reports each property of it.
// Returns the number of failed checks.
func checkRoundTrip(ctx context.Context, cfg *tray.Config, report func(string, ...any)) int {
	before, err := os.Getwd()
	if err != nil {
		report("fail: cannot read working directory: %v", err)

		return 1
	}

	var dir, inside string

	err = cfg.WithContext(ctx, func(_ context.Context, t *tray.Tray) error {
		dir = t.Dir()

		var err error

		inside, err = os.Getwd()

		return err
	})
	if err != nil {
		report("fail: tray session: %v", err)

		return 1
	}

	failures := 0

	if inside == dir {
		report("ok: working directory is the tray inside the session")
	} else {
		report("fail: working directory inside the session is %s, want %s", inside, dir)
		failures++
	}

	after, err := os.Getwd()

	switch {
	case err != nil:
		report("fail: cannot read working directory after the session: %v", err)
		failures++
	case after != before:
		report("fail: working directory after the session is %s, want %s", after, before)
		failures++
	default:
		report("ok: working directory restored")
	}

	_, err = os.Lstat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		report("ok: tray removed")
	} else {
		report("fail: tray %s still exists", dir)
		failures++
	}

	return failures
}
