// Package session bridges one accepted connection to one freshly
// spawned child process.
//
// A session moves Starting → Running → Closed exactly once.  While
// Running it services four event sources: bytes from the socket (to
// the child's stdin), bytes from the child's stdout and from its
// stderr (both to the socket, unframed), and the child's exit.  Each
// byte source is pumped by its own goroutine; the first terminal event
// from any source closes the session.  Closing releases the socket and
// all three pipes and always reaps the child.
package session

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ncerr "execgate/internal/errors"
	"execgate/internal/launcher"
	"execgate/internal/locator"
	"execgate/internal/metrics"
	"execgate/util"
)

// State is a session's lifecycle stage.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reason records which event closed a session.
type Reason string

const (
	ReasonClientDisconnect Reason = "client-disconnect"
	ReasonStdoutEOF        Reason = "stdout-eof"
	ReasonStderrEOF        Reason = "stderr-eof"
	ReasonStdinClosed      Reason = "stdin-closed"
	ReasonProcessExit      Reason = "process-exit"
	ReasonCancelled        Reason = "cancelled"
	ReasonError            Reason = "error"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultKillGrace    = 250 * time.Millisecond
	DefaultDrainTimeout = 250 * time.Millisecond
)

// Config holds everything a session needs besides its connection.
type Config struct {
	Locator      locator.Locator
	ChunkSize    int           // bytes per read; util.DefaultBufSize if 0
	KillGrace    time.Duration // wait after closing stdin before killing
	DrainTimeout time.Duration // how long to flush output after the child ends
	Logger       *util.Logger
	Metrics      *metrics.Collector
}

// Result summarises a closed session.
type Result struct {
	SessionID string
	Reason    Reason
	Pid       int
	ExitCode  int // -1 if the child never ran or was killed
	BytesIn   int64
	BytesOut  int64
	Duration  time.Duration
	Err       error
}

// Session owns one connection and, once started, one child process.
// Neither is shared with any other goroutine outside the session.
type Session struct {
	ID   string
	Conn net.Conn

	cfg    Config
	logger *util.Logger
	state  atomic.Int32
	pid    atomic.Int64

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// New creates a session for conn.  Ownership of conn passes to the
// session: it is closed when Run returns, whatever the outcome.
func New(conn net.Conn, cfg Config) *Session {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = util.DefaultBufSize
	}
	if cfg.KillGrace == 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = util.NewLogger(0)
	}

	id := uuid.NewString()
	return &Session{
		ID:     id,
		Conn:   conn,
		cfg:    cfg,
		logger: cfg.Logger.With("session", id, "remote", remoteAddr(conn)),
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Pid returns the child's process ID, or 0 before it has started.
func (s *Session) Pid() int { return int(s.pid.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("state → %s", st)
}

// source identifies one of the session's event sources.
type source int

const (
	srcSocket source = iota
	srcStdout
	srcStderr
	srcExit
	srcCancel
)

// event is the single terminal report each source makes.
type event struct {
	src source
	err error
}

// Run drives the session to completion.  It returns once the socket is
// closed and the child has been reaped.  Cancelling ctx ends the
// session early; the accept loop's stop signal never does.
func (s *Session) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{SessionID: s.ID, ExitCode: -1}

	s.cfg.Metrics.SessionOpened()
	defer func() {
		s.cfg.Metrics.SessionClosed(res.Err != nil)
	}()

	proc, err := s.start()
	if err != nil {
		s.Conn.Close()
		s.setState(StateClosed)
		res.Reason = ReasonError
		res.Err = err
		res.Duration = time.Since(start)
		return res, err
	}
	s.pid.Store(int64(proc.Pid))
	res.Pid = proc.Pid
	s.setState(StateRunning)
	s.logger.Verbose("spawned %s (pid %d)", proc.Path, proc.Pid)

	events := make(chan event, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		events <- event{srcSocket, s.pump(proc.Stdin, s.Conn, srcSocket)}
	}()
	go func() {
		defer wg.Done()
		events <- event{srcStdout, s.pump(s.Conn, proc.Stdout, srcStdout)}
	}()
	go func() {
		defer wg.Done()
		events <- event{srcStderr, s.pump(s.Conn, proc.Stderr, srcStderr)}
	}()

	var first event
	select {
	case first = <-events:
	case <-proc.Done():
		first = event{src: srcExit}
	case <-ctx.Done():
		first = event{src: srcCancel, err: ctx.Err()}
	}

	if first.src != srcSocket && first.src != srcCancel && first.err == nil {
		// The child side ended; let output it already wrote reach the
		// client before tearing down.
		s.drain(events, first.src)
	}

	res.Reason, res.Err = s.classify(first, proc)

	// Closed: socket first so the client sees the end promptly, then
	// reap the child, which also closes the pipes and unblocks pumps.
	s.Conn.Close()
	proc.Reap(s.cfg.KillGrace)
	wg.Wait()
	s.setState(StateClosed)

	res.ExitCode = proc.ExitCode()
	res.BytesIn = s.bytesIn.Load()
	res.BytesOut = s.bytesOut.Load()
	res.Duration = time.Since(start)
	s.cfg.Metrics.ProcessExited(res.ExitCode)

	s.logger.Verbose("closed: %s, child %s, %d bytes in, %d bytes out, after %s",
		res.Reason, proc.Status(), res.BytesIn, res.BytesOut, util.Since(start))
	return res, res.Err
}

// start is the Starting state: locate the program and spawn it.
func (s *Session) start() (*launcher.Process, error) {
	path, err := s.cfg.Locator.Locate()
	if err != nil {
		return nil, ncerr.WrapSession(ncerr.KindLocator, s.ID, "locate", err)
	}
	proc, err := launcher.Start(path)
	if err != nil {
		return nil, ncerr.WrapSession(ncerr.KindSpawn, s.ID, "spawn", err)
	}
	return proc, nil
}

// pump copies one stream chunk by chunk and returns its terminal
// error: nil for a clean end of stream.
func (s *Session) pump(dst io.Writer, src io.Reader, from source) error {
	pool := util.ChunkPoolFor(s.cfg.ChunkSize)
	buf := pool.Get()
	defer pool.Put(buf)

	onChunk := func(n int) {
		if from == srcSocket {
			s.bytesIn.Add(int64(n))
			s.cfg.Metrics.BytesReceived(int64(n))
		} else {
			s.bytesOut.Add(int64(n))
			s.cfg.Metrics.BytesSent(int64(n))
		}
		s.logger.Debug("%s: %d bytes", from, n)
	}

	_, err := util.CopyChunks(dst, src, *buf, onChunk)
	return err
}

// drain waits, up to DrainTimeout, for whichever of stdout and stderr
// have not finished yet.  Events from the socket pump are ignored.
func (s *Session) drain(events <-chan event, first source) {
	pending := map[source]bool{srcStdout: true, srcStderr: true}
	delete(pending, first)

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()
	for len(pending) > 0 {
		select {
		case ev := <-events:
			delete(pending, ev.src)
		case <-timer.C:
			s.logger.Debug("drain timed out")
			return
		}
	}
}

// classify turns the first terminal event into a close reason and,
// for failures, a session error.
func (s *Session) classify(ev event, proc *launcher.Process) (Reason, error) {
	switch ev.src {
	case srcExit:
		return ReasonProcessExit, nil
	case srcCancel:
		return ReasonCancelled, nil
	}

	if ev.err == nil {
		switch ev.src {
		case srcSocket:
			return ReasonClientDisconnect, nil
		case srcStdout:
			return ReasonStdoutEOF, nil
		default:
			return ReasonStderrEOF, nil
		}
	}

	var ce *util.CopyError
	op := "copy"
	if ncerr.As(ev.err, &ce) {
		op = ce.Op
	}

	// Reading the socket or writing the socket is transport; the other
	// end of every copy is a pipe.
	if ev.src == srcSocket {
		if op == "write" {
			if util.IsBrokenPipe(ev.err) || proc.Exited() {
				return ReasonStdinClosed, nil
			}
			return ReasonError, ncerr.WrapSession(ncerr.KindPipe, s.ID, "write stdin", ev.err)
		}
		return ReasonError, ncerr.WrapSession(ncerr.KindTransport, s.ID, "read socket", ev.err)
	}
	if op == "write" {
		return ReasonError, ncerr.WrapSession(ncerr.KindTransport, s.ID, "write socket", ev.err)
	}
	return ReasonError, ncerr.WrapSession(ncerr.KindPipe, s.ID, "read "+ev.src.String(), ev.err)
}

func (src source) String() string {
	switch src {
	case srcSocket:
		return "socket"
	case srcStdout:
		return "stdout"
	case srcStderr:
		return "stderr"
	case srcExit:
		return "exit"
	case srcCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

func remoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
