package core

import "sync"

// StopSignal is a one-shot, payload-free notification.  Firing it more
// than once has no further effect.
type StopSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopSignal returns an unfired signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

// Fire fires the signal.  It reports whether this call was the one
// that fired it.
func (s *StopSignal) Fire() bool {
	fired := false
	s.once.Do(func() {
		close(s.ch)
		fired = true
	})
	return fired
}

// Done is closed once the signal has fired.
func (s *StopSignal) Done() <-chan struct{} { return s.ch }

// Fired reports whether the signal has fired.
func (s *StopSignal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
