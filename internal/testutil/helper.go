// Package testutil provides shared test helpers for execgate packages.
//
// Tests that need a child process re-run their own test binary as the
// child.  [RunHelper] is called from TestMain; when the helper mode
// environment variable is set it plays a small scripted program on
// stdin/stdout/stderr and exits instead of running tests.  [LinkHelper]
// places a symlink to the test binary in a directory under the name a
// locator will pick up.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HelperEnv selects the helper mode in a re-executed test binary.
const HelperEnv = "EXECGATE_TEST_HELPER"

// Helper modes.
const (
	ModeEcho    = "echo"    // copy stdin to stdout until EOF
	ModeUpper   = "upper"   // uppercase each stdin line onto stdout
	ModeExit    = "exit"    // exit 3 immediately without reading stdin
	ModeHang    = "hang"    // ignore stdin EOF and sleep forever
	ModeStreams = "streams" // letters on stdout, digits on stderr, then exit 0
	ModeStderr  = "stderr"  // copy stdin to stderr until EOF
)

// StreamRounds is how many writes ModeStreams makes to each stream.
// Stdout gets StreamLetters and stderr StreamDigits on every round,
// so a reader can split the merged output back apart by byte class.
const (
	StreamRounds  = 200
	StreamLetters = "abcdefghijklmnopqrstuvwxyz"
	StreamDigits  = "0123456789"
)

// RunHelper runs the helper program selected by [HelperEnv] and exits.
// It returns immediately when the variable is unset.
func RunHelper() {
	mode := os.Getenv(HelperEnv)
	if mode == "" {
		return
	}

	switch mode {
	case ModeEcho:
		io.Copy(os.Stdout, os.Stdin) //nolint:errcheck
	case ModeStderr:
		io.Copy(os.Stderr, os.Stdin) //nolint:errcheck
	case ModeUpper:
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			fmt.Fprintln(os.Stdout, strings.ToUpper(sc.Text()))
		}
	case ModeExit:
		os.Exit(3)
	case ModeHang:
		io.Copy(io.Discard, os.Stdin) //nolint:errcheck
		for {
			time.Sleep(time.Hour)
		}
	case ModeStreams:
		for i := 0; i < StreamRounds; i++ {
			os.Stdout.WriteString(StreamLetters) //nolint:errcheck
			os.Stderr.WriteString(StreamDigits)  //nolint:errcheck
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		os.Exit(2)
	}
	os.Exit(0)
}

// LinkHelper symlinks the running test binary into dir as name and
// returns the link path.
func LinkHelper(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, dir, name string) string {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("locating test binary: %v", err)
	}
	link := filepath.Join(dir, name)
	if err := os.Symlink(self, link); err != nil {
		t.Fatalf("linking helper: %v", err)
	}
	return link
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
func RequireReceive[T any](t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", what)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, what)
	}
	panic("unreachable")
}

// RequireClosed waits up to timeout for ch to be closed, or fails the
// test.  Use it for broadcast channels such as readiness signals.
func RequireClosed(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, what)
	}
}
