// Package lifecycle tracks a gateway run from start to its final exit
// code and turns stop and interrogate requests, from a console signal
// or the host's service manager, into effects on that run.
package lifecycle

import (
	"encoding/json"
	"sync"
	"time"
)

// State is the externally visible run state.
type State int

const (
	StateStartPending State = iota
	StateRunning
	StateStopPending
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStartPending:
		return "start-pending"
	case StateRunning:
		return "running"
	case StateStopPending:
		return "stop-pending"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Command is a request from the outside world.
type Command int

const (
	CmdInterrogate Command = iota
	CmdStop
	CmdShutdown // host is shutting down; handled like CmdStop
)

// Exit codes reported once stopped.
const (
	ExitClean = 0
	ExitError = 1
)

// Status is a point-in-time report.
type Status struct {
	State    State     `json:"state"`
	ExitCode int       `json:"exit_code"`
	Since    time.Time `json:"since"`
	Error    string    `json:"error,omitempty"`
}

// JSON returns the status as compact JSON.
func (s Status) JSON() []byte {
	data, _ := json.Marshal(s)
	return data
}

// Controller is the run's state machine.  It is safe for concurrent
// use; the stop hook runs at most once.
type Controller struct {
	mu       sync.Mutex
	state    State
	exitCode int
	since    time.Time
	err      error
	onStop   func()
	stopOnce sync.Once
	done     chan struct{}
}

// NewController returns a controller in StartPending.  onStop is
// invoked the first time a stop is requested while running.
func NewController(onStop func()) *Controller {
	if onStop == nil {
		onStop = func() {}
	}
	return &Controller{
		state:  StateStartPending,
		since:  time.Now(),
		onStop: onStop,
		done:   make(chan struct{}),
	}
}

// Started moves StartPending to Running.
func (c *Controller) Started() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStartPending {
		c.setLocked(StateRunning)
	}
	return c.statusLocked()
}

// Handle applies cmd and returns the resulting status.
func (c *Controller) Handle(cmd Command) Status {
	switch cmd {
	case CmdStop, CmdShutdown:
		return c.Stop()
	default:
		return c.Interrogate()
	}
}

// Stop requests a stop.  Repeated calls, or calls after the run has
// ended, only report the current status.
func (c *Controller) Stop() Status {
	c.mu.Lock()
	fire := c.state == StateStartPending || c.state == StateRunning
	if fire {
		c.setLocked(StateStopPending)
	}
	st := c.statusLocked()
	c.mu.Unlock()

	if fire {
		c.stopOnce.Do(c.onStop)
	}
	return st
}

// Interrogate reports the current status without changing anything.
func (c *Controller) Interrogate() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Finish records the end of the run: exit code 0 for a nil err, 1
// otherwise.  Only the first call counts.
func (c *Controller) Finish(err error) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return c.statusLocked()
	}
	c.err = err
	c.exitCode = ExitClean
	if err != nil {
		c.exitCode = ExitError
	}
	c.setLocked(StateStopped)
	close(c.done)
	return c.statusLocked()
}

// Done is closed once Finish has been called.
func (c *Controller) Done() <-chan struct{} { return c.done }

// ExitCode returns the final exit code, or -1 while not stopped.
func (c *Controller) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped {
		return -1
	}
	return c.exitCode
}

func (c *Controller) setLocked(s State) {
	c.state = s
	c.since = time.Now()
}

func (c *Controller) statusLocked() Status {
	st := Status{State: c.state, ExitCode: c.exitCode, Since: c.since}
	if c.state != StateStopped {
		st.ExitCode = -1
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	return st
}
