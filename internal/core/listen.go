package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ncerr "execgate/internal/errors"
	"execgate/internal/metrics"
	"execgate/internal/retry"
	"execgate/internal/session"
	"execgate/internal/transport"
	"execgate/util"
)

// AcceptLoop accepts connections and starts one session per
// connection.  Sessions are never awaited by the loop and outlive it:
// firing Stop closes the listener but leaves in-flight sessions alone.
type AcceptLoop struct {
	Provider    transport.Provider
	Stop        *StopSignal
	Session     session.Config
	MaxSessions int // 0 means unlimited
	Backoff     *retry.Backoff
	Breaker     *retry.CircuitBreaker
	Logger      *util.Logger
	Metrics     *metrics.Collector

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
	initOnce sync.Once

	sessions      sync.WaitGroup
	active        atomic.Int64
	cancelSession context.CancelFunc
}

func (l *AcceptLoop) init() {
	l.initOnce.Do(func() {
		l.ready = make(chan struct{})
		if l.Stop == nil {
			l.Stop = NewStopSignal()
		}
		if l.Logger == nil {
			l.Logger = util.NewLogger(0)
		}
		if l.Backoff == nil {
			l.Backoff = &retry.Backoff{
				InitialDelay: 5 * time.Millisecond,
				MaxDelay:     time.Second,
				Multiplier:   2,
			}
		}
		if l.Breaker == nil {
			l.Breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
				MaxFailures:  10,
				ResetTimeout: time.Minute,
				OnStateChange: func(from, to retry.State) {
					l.Logger.Warn("accept circuit %s → %s", from, to)
				},
			})
		}
		if l.Session.Logger == nil {
			l.Session.Logger = l.Logger
		}
		if l.Session.Metrics == nil {
			l.Session.Metrics = l.Metrics
		}
	})
}

// Run binds the listener and accepts until the stop signal fires, ctx
// is cancelled, or accepting fails for good.  A stop is a clean exit
// and returns nil.
func (l *AcceptLoop) Run(ctx context.Context) error {
	l.init()
	if l.Provider == nil {
		return fmt.Errorf("accept loop: no listener provider")
	}

	ln, err := l.Provider.Listen(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	close(l.ready)
	defer ln.Close()

	// Sessions keep ctx's values but not its cancellation; only
	// Shutdown cuts them short.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.mu.Lock()
	l.cancelSession = cancel
	l.mu.Unlock()

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-l.Stop.Done():
		case <-ctx.Done():
			l.Stop.Fire()
		case <-exited:
			return
		}
		ln.Close()
	}()

	var sem chan struct{}
	if l.MaxSessions > 0 {
		sem = make(chan struct{}, l.MaxSessions)
	}

	l.Logger.Info("accepting on %s", l.Provider)

	failures := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.Stop.Fired() {
				l.Logger.Info("stop requested; no longer accepting")
				return nil
			}
			if fatal := l.acceptFailed(err, &failures); fatal != nil {
				return fatal
			}
			continue
		}
		if l.Stop.Fired() {
			// Accepted in the window between the stop and the close.
			l.Logger.Verbose("stop requested; dropping %s", conn.RemoteAddr())
			conn.Close()
			l.Logger.Info("stop requested; no longer accepting")
			return nil
		}
		failures = 0
		l.Breaker.Record(nil)

		if sem != nil {
			select {
			case sem <- struct{}{}:
			default:
				l.Logger.Warn("refusing %s: %d sessions already running", conn.RemoteAddr(), l.MaxSessions)
				l.Metrics.RecordError("session limit reached")
				conn.Close()
				continue
			}
		}

		l.sessions.Add(1)
		l.active.Add(1)
		go func() {
			defer l.sessions.Done()
			defer l.active.Add(-1)
			if sem != nil {
				defer func() { <-sem }()
			}
			l.serve(sessCtx, conn)
		}()
	}
}

// acceptFailed handles one Accept error.  It returns a non-nil error
// when the loop must end.
func (l *AcceptLoop) acceptFailed(err error, failures *int) error {
	l.Metrics.AcceptError()

	if ncerr.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ncerr.ErrListenerClosed, err)
	}

	*failures++
	if !ncerr.IsTemporary(err) {
		if l.Breaker.Record(err) == retry.StateOpen {
			return fmt.Errorf("accept: %w: %v", ncerr.ErrCircuitOpen, err)
		}
	}

	delay := l.Backoff.Delay(*failures)
	l.Logger.Warn("accept: %v; retrying in %v", err, delay)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.Stop.Done():
	}
	return nil
}

func (l *AcceptLoop) serve(ctx context.Context, conn net.Conn) {
	s := session.New(conn, l.Session)
	l.Logger.Verbose("session %s: connection from %s", s.ID, conn.RemoteAddr())

	if _, err := s.Run(ctx); err != nil {
		l.Logger.Error("%v", err)
		l.Metrics.RecordError(err.Error())
	}
}

// Ready is closed once the listener is bound.
func (l *AcceptLoop) Ready() <-chan struct{} {
	l.init()
	return l.ready
}

// Addr returns the bound address, or nil before Ready.
func (l *AcceptLoop) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Active returns the number of sessions currently running.
func (l *AcceptLoop) Active() int { return int(l.active.Load()) }

// Wait blocks until every session started so far has closed, or until
// timeout (0 waits forever).  It reports whether all sessions closed.
func (l *AcceptLoop) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.sessions.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Shutdown waits up to grace for in-flight sessions, then cancels the
// rest and waits for their children to be reaped.  It reports whether
// every session ended on its own.
func (l *AcceptLoop) Shutdown(grace time.Duration) bool {
	l.init()
	if grace > 0 && l.Wait(grace) {
		return true
	}
	n := l.Active()
	if n == 0 {
		l.sessions.Wait()
		return true
	}
	l.Logger.Warn("terminating %d in-flight session(s)", n)
	l.mu.Lock()
	cancel := l.cancelSession
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.sessions.Wait()
	return false
}
