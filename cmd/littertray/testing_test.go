package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Skip helpers for platform and dependency checks
// ============================================================================

// RequireShell skips the test if no POSIX shell is available.
func RequireShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("test requires a POSIX shell")
	}

	_, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("test requires sh, not installed")
	}
}

// ============================================================================
// CLI tester
// ============================================================================

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory and environment variables.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLITester creates a new test CLI with a temp directory.
// The environment is pre-seeded with PATH, and with HOME and XDG_CONFIG_HOME
// pointing into Dir.
func NewCLITester(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()

	return &CLI{
		t:   t,
		Dir: dir,
		Env: map[string]string{
			"HOME":            dir,
			"XDG_CONFIG_HOME": filepath.Join(dir, ".config"),
			"PATH":            os.Getenv("PATH"),
		},
	}
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "littertray" or "--cwd" - those are added automatically.
func (c *CLI) Run(args ...string) (string, string, int) {
	return c.RunWithInput(nil, args...)
}

// RunWithInput executes the CLI with stdin and args.
// stdin can be nil, an io.Reader, or a []string (joined with newlines).
func (c *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader

	switch v := stdin.(type) {
	case nil:
		inReader = nil
	case io.Reader:
		inReader = v
	case []string:
		inReader = strings.NewReader(strings.Join(v, "\n"))
	default:
		panic(fmt.Sprintf("RunWithInput: stdin must be nil, io.Reader, or []string, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"littertray", "--cwd", c.Dir}, args...)
	code := Run(inReader, &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// RunWithSignal executes the CLI with a signal channel for cancellation testing.
// Returns a channel that receives the exit code when the command completes.
// stdout/stderr are discarded to avoid race conditions with signal handler output.
func (c *CLI) RunWithSignal(sigCh chan os.Signal, args ...string) <-chan int {
	return c.RunWithSignalOutput(sigCh, io.Discard, args...)
}

// RunWithSignalOutput is RunWithSignal with stderr captured. The command
// goroutine may outlive Run after a forced exit, so stderr must be safe for
// concurrent writes (see lockedBuffer).
func (c *CLI) RunWithSignalOutput(sigCh chan os.Signal, stderr io.Writer, args ...string) <-chan int {
	done := make(chan int, 1)

	go func() {
		fullArgs := append([]string{"littertray", "--cwd", c.Dir}, args...)

		code := Run(nil, io.Discard, stderr, fullArgs, c.Env, sigCh)
		done <- code
	}()

	return done
}

// lockedBuffer is a bytes.Buffer safe for concurrent use.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Returns trimmed stderr.
func (c *CLI) MustFail(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteFile writes content to a file in the test directory and returns its
// absolute path.
func (c *CLI) WriteFile(relPath, content string) string {
	c.t.Helper()

	path := filepath.Join(c.Dir, relPath)
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		c.t.Fatalf("failed to create dir %s: %v", dir, err)
	}

	err = os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		c.t.Fatalf("failed to write file %s: %v", relPath, err)
	}

	return path
}

// TempRoot creates a directory inside Dir to hold trays, so tests can
// inspect what is left behind.
func (c *CLI) TempRoot() string {
	c.t.Helper()

	root := filepath.Join(c.Dir, "trays")

	err := os.MkdirAll(root, 0o750)
	if err != nil {
		c.t.Fatalf("failed to create temp root: %v", err)
	}

	return root
}

// Entries returns the names in dir.
func (c *CLI) Entries(dir string) []string {
	c.t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		c.t.Fatalf("failed to read dir %s: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

// waitForFile polls until path exists or the timeout passes.
func waitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, err := os.Stat(path)
		if err == nil {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for file %s", path)
}

// waitForEmptyDir polls until dir has no entries or the timeout passes.
func waitForEmptyDir(t *testing.T, dir string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for %s to become empty", dir)
}

// stripANSI removes ANSI escape codes from a string.
// Used to normalize output for comparison regardless of TTY state.
func stripANSI(s string) string {
	result := s
	for {
		start := strings.Index(result, "\033[")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "m")
		if end == -1 {
			break
		}

		result = result[:start] + result[start+end+1:]
	}

	return result
}

// AssertContains fails the test if content doesn't contain substr.
// Strips ANSI codes from content before comparison to handle TTY/non-TTY differences.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if !strings.Contains(cleaned, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
// Strips ANSI codes from content before comparison to handle TTY/non-TTY differences.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if strings.Contains(cleaned, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}

func Test_StripANSI_Removes_Color_Codes(t *testing.T) {
	t.Parallel()

	got := stripANSI(colorRed + "error:" + colorReset + " boom")
	if got != "error: boom" {
		t.Errorf("stripANSI = %q, want %q", got, "error: boom")
	}
}
