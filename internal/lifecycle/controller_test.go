package lifecycle

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_HappyPath(t *testing.T) {
	stops := 0
	c := NewController(func() { stops++ })

	assert.Equal(t, StateStartPending, c.Interrogate().State)
	assert.Equal(t, StateRunning, c.Started().State)

	st := c.Stop()
	assert.Equal(t, StateStopPending, st.State)
	assert.Equal(t, -1, st.ExitCode)
	assert.Equal(t, 1, stops)

	st = c.Finish(nil)
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, ExitClean, st.ExitCode)
	assert.Equal(t, ExitClean, c.ExitCode())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Finish")
	}
}

func TestController_StopIdempotent(t *testing.T) {
	var mu sync.Mutex
	stops := 0
	c := NewController(func() {
		mu.Lock()
		stops++
		mu.Unlock()
	})
	c.Started()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Handle(CmdStop)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, stops)
	assert.Equal(t, StateStopPending, c.Interrogate().State)
}

func TestController_InterrogateHasNoSideEffects(t *testing.T) {
	stops := 0
	c := NewController(func() { stops++ })
	c.Started()
	before := c.Interrogate()

	for i := 0; i < 5; i++ {
		assert.Equal(t, before, c.Handle(CmdInterrogate))
	}
	assert.Zero(t, stops)
	assert.Equal(t, -1, c.ExitCode())
}

func TestController_FatalError(t *testing.T) {
	c := NewController(nil)
	c.Started()

	st := c.Finish(errors.New("listener closed unexpectedly"))
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, ExitError, st.ExitCode)
	assert.Equal(t, "listener closed unexpectedly", st.Error)

	// Later reports do not change the outcome.
	assert.Equal(t, ExitError, c.Finish(nil).ExitCode)
	assert.Equal(t, StateStopped, c.Stop().State)
}

func TestController_ShutdownActsAsStop(t *testing.T) {
	stopped := false
	c := NewController(func() { stopped = true })
	c.Started()

	assert.Equal(t, StateStopPending, c.Handle(CmdShutdown).State)
	assert.True(t, stopped)
}

func TestController_StopAfterFinish(t *testing.T) {
	stops := 0
	c := NewController(func() { stops++ })
	c.Started()
	c.Finish(nil)

	c.Stop()
	assert.Zero(t, stops, "stop hook must not fire after the run ended")
}

func TestStatus_JSON(t *testing.T) {
	c := NewController(nil)
	c.Started()

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(c.Interrogate().JSON(), &got))
	assert.Equal(t, "running", got["state"])
	assert.Equal(t, float64(-1), got["exit_code"])
	assert.NotContains(t, got, "error")
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateStartPending: "start-pending",
		StateRunning:      "running",
		StateStopPending:  "stop-pending",
		StateStopped:      "stopped",
		State(99):         "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}
