//go:build !windows

package testutil

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ProcessGone reports whether pid no longer exists in the process
// table, polling until timeout.  A zombie still counts as present.
func ProcessGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if errors.Is(unix.Kill(pid, 0), unix.ESRCH) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
