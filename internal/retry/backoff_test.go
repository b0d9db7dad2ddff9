package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errGatewayDown = errors.New("dial tcp gateway:22: connection refused")
	errForward     = errors.New("ssh: tcpip-forward request denied by peer")
)

func gatewayBackoff(attempts int) *Backoff {
	return &Backoff{InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: attempts}
}

func TestDo_GatewayComesUp(t *testing.T) {
	var seen []int
	err := gatewayBackoff(5).Do(context.Background(), func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errGatewayDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDo_RefusedForwardIsNotRetried(t *testing.T) {
	calls := 0
	err := gatewayBackoff(5).Do(context.Background(), func(int) error {
		calls++
		return Permanent(errForward)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, errForward, err)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := gatewayBackoff(3).Do(context.Background(), func(int) error {
		calls++
		return errGatewayDown
	})
	assert.Equal(t, 3, calls)
	require.ErrorIs(t, err, errGatewayDown)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestDo_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backoff{InitialDelay: time.Hour}

	err := b.Do(ctx, func(int) error {
		cancel()
		return errGatewayDown
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestDelay_Schedule(t *testing.T) {
	b := &Backoff{InitialDelay: 5 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	for _, tt := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Millisecond},
		{2, 10 * time.Millisecond},
		{3, 20 * time.Millisecond},
		{8, 640 * time.Millisecond},
		{9, time.Second},
		{50, time.Second},
	} {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDelay_ZeroValueDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, time.Minute, b.Delay(100))
}

func TestJitter_WithinQuarter(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		got := jitter(d)
		assert.GreaterOrEqual(t, got, 75*time.Millisecond)
		assert.LessOrEqual(t, got, 125*time.Millisecond)
	}
}
