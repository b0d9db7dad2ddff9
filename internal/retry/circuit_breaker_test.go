package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "execgate/internal/errors"
)

var errAccept = errors.New("accept: too many open files")

func TestCircuitBreaker_RecordTrips(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	assert.Equal(t, StateClosed, cb.Record(errAccept))
	assert.Equal(t, StateClosed, cb.Record(errAccept))
	assert.Equal(t, StateOpen, cb.Record(errAccept))
	assert.Equal(t, 3, cb.Failures())

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ncerr.ErrCircuitOpen))
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 3})

	cb.Record(errAccept)
	cb.Record(errAccept)
	assert.Equal(t, StateClosed, cb.Record(nil))
	assert.Zero(t, cb.Failures())

	cb.Record(errAccept)
	cb.Record(errAccept)
	assert.Equal(t, StateClosed, cb.CurrentState(), "count restarted after the success")
}

func TestCircuitBreaker_ExecuteSkipsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	assert.Equal(t, errAccept, cb.Execute(func() error { return errAccept }))

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ncerr.ErrCircuitOpen))
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	cb.Record(errAccept)
	require.Equal(t, StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.CurrentState())

	assert.Equal(t, StateHalfOpen, cb.Record(nil))
	assert.Equal(t, StateClosed, cb.Record(nil))
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	cb.Record(errAccept)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())

	assert.Equal(t, StateOpen, cb.Record(errAccept))
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	cb.Record(errAccept)
	cb.Reset()

	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.Zero(t, cb.Failures())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_StateChange(t *testing.T) {
	var seen []string
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		OnStateChange: func(from, to State) {
			seen = append(seen, from.String()+"→"+to.String())
		},
	})
	cb.Record(errAccept)
	cb.Record(errAccept)
	cb.Record(errAccept)
	cb.Reset()

	assert.Equal(t, []string{"closed→open", "open→closed"}, seen)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	for i := 0; i < 4; i++ {
		cb.Record(errAccept)
	}
	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.Equal(t, StateOpen, cb.Record(errAccept))

	partial := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 2})
	assert.Equal(t, 30*time.Second, partial.cfg.ResetTimeout)
	assert.Equal(t, 2, partial.cfg.HalfOpenMax)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}
