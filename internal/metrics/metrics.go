// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of an execgate listener.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics shared by every session.
// A nil Collector is safe to use: all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	sessionsFailed atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	acceptErrors   atomic.Int64
	errorsTotal    atomic.Int64
	lastExitCode   atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	c := &Collector{startTime: time.Now()}
	c.lastExitCode.Store(-1)
	return c
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.  failed marks
// sessions that ended with an error.
func (c *Collector) SessionClosed(failed bool) {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
	if failed {
		c.sessionsFailed.Add(1)
	}
}

// ActiveSessions returns the number of sessions currently running.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// FailedSessions returns the number of sessions that ended in error.
func (c *Collector) FailedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsFailed.Load()
}

// ProcessExited records the exit code of a reaped child.
func (c *Collector) ProcessExited(code int) {
	if c == nil {
		return
	}
	c.lastExitCode.Store(int64(code))
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a client socket.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a client socket.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Listener metrics ─────────────────────────────────────────────────

// AcceptError records a failed accept() on the listener.
func (c *Collector) AcceptError() {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
}

// AcceptErrors returns the total accept failure count.
func (c *Collector) AcceptErrors() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	SessionsFailed   int64  `json:"sessions_failed"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	AcceptErrors     int64  `json:"accept_errors"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastExitCode     int64  `json:"last_exit_code"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.  It never mutates
// the collector.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{LastExitCode: -1}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		SessionsFailed: c.sessionsFailed.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		AcceptErrors:   c.acceptErrors.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
		LastExitCode:   c.lastExitCode.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
