package main

import (
	"strings"
	"testing"
)

func Test_Run_Shows_Help_When_No_Args(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	stdout, _, code := c.Run()

	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	AssertContains(t, stdout, "littertray - run commands in a throwaway working directory")
	AssertContains(t, stdout, "Commands:")
}

func Test_Run_Shows_Help_When_Help_Flag(t *testing.T) {
	t.Parallel()

	for _, flag := range []string{"--help", "-h"} {
		c := NewCLITester(t)
		stdout, _, code := c.Run(flag)

		if code != 0 {
			t.Errorf("%s: exit code = %d, want 0", flag, code)
		}

		AssertContains(t, stdout, "Commands:")
		AssertContains(t, stdout, "Run 'littertray <command> --help' for more information on a command.")
	}
}

func Test_Run_Help_Shows_All_Commands(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	stdout := c.MustRun("--help")

	AssertContains(t, stdout, "run [flags] <command> [args]")
	AssertContains(t, stdout, "check [flags]")
	AssertContains(t, stdout, "--version")
}

func Test_Run_Shows_Version_When_Version_Flag(t *testing.T) {
	t.Parallel()

	for _, flag := range []string{"--version", "-v"} {
		c := NewCLITester(t)
		stdout, _, code := c.Run(flag)

		if code != 0 {
			t.Errorf("%s: exit code = %d, want 0", flag, code)
		}

		// Default version is "dev" when not built with ldflags.
		AssertContains(t, stdout, "littertray dev (built from source)")
	}
}

func Test_Run_Fails_With_Error_When_Unknown_Global_Flag(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)

	_, stderr, code := c.Run("--unknown", "run", "true")

	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}

	AssertContains(t, stderr, "error: unknown flag: --unknown\n\nUsage:")
}

func Test_Run_Fails_When_Config_Is_Invalid(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.WriteFile(".littertray.json", `{"keep": "yes"}`)

	_, stderr, code := c.Run("--help")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	AssertContains(t, stderr, "parsing config")
}

func Test_Run_Shows_Command_Help_When_Subcommand_Help_Flag(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	stdout := c.MustRun("run", "--help")

	AssertContains(t, stdout, "Usage: littertray run [flags] <command> [args]")
	AssertContains(t, stdout, "--fixture")
	AssertContains(t, stdout, "--temp-dir")
	AssertContains(t, stdout, "LITTERTRAY_DIR")
}

func Test_Run_Prints_Colored_Error_When_Terminal(t *testing.T) {
	// Overrides the package-level isTerminal.
	orig := isTerminal
	isTerminal = func() bool { return true }

	t.Cleanup(func() { isTerminal = orig })

	c := NewCLITester(t)
	_, stderr, _ := c.Run("--unknown")

	if !strings.Contains(stderr, colorRed+"error:"+colorReset) {
		t.Errorf("stderr should contain colored error prefix, got: %q", stderr)
	}
}
