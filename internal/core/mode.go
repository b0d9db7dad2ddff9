// Package core is the orchestration layer.  It composes a listener
// provider, the accept loop, and the lifecycle controller into a
// complete run, and provides a builder that selects the run mode from
// a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  core  →  cmd (CLI)
package core

import (
	"context"
	"sync"
	"time"

	"execgate/internal/lifecycle"
	"execgate/internal/status"
	"execgate/util"
)

// Mode is a complete way of running the gateway: in the foreground
// under a console, or under the host's service manager.  Each mode
// owns the run from binding the listener to the final exit code.
type Mode interface {
	Run(ctx context.Context) error
	Name() string
}

// Runner drives one accept loop under a lifecycle controller.  Stop
// requests reach the loop through the controller; once the loop has
// returned, in-flight sessions get Grace to finish before they are
// terminated.
type Runner struct {
	Loop   *AcceptLoop
	Status *status.Server // optional
	Grace  time.Duration
	Logger *util.Logger

	once       sync.Once
	controller *lifecycle.Controller
}

// Controller returns the run's controller, creating it on first use.
func (r *Runner) Controller() *lifecycle.Controller {
	r.once.Do(func() {
		r.Loop.init()
		if r.Logger == nil {
			r.Logger = r.Loop.Logger
		}
		stop := r.Loop.Stop
		r.controller = lifecycle.NewController(func() {
			r.Logger.Info("stop requested")
			stop.Fire()
		})
	})
	return r.controller
}

// run executes the whole lifecycle and reports the loop's outcome to
// the controller.
func (r *Runner) run(ctx context.Context) error {
	c := r.Controller()

	if r.Status != nil {
		r.Status.Source = c
		if r.Status.Metrics == nil {
			r.Status.Metrics = r.Loop.Metrics
		}
		if err := r.Status.Start(ctx); err != nil {
			c.Finish(err)
			return err
		}
		defer r.Status.Close() //nolint:errcheck
	}
	defer r.Loop.Provider.Close() //nolint:errcheck

	errc := make(chan error, 1)
	go func() { errc <- r.Loop.Run(ctx) }()

	var err error
	select {
	case <-r.Loop.Ready():
		c.Started()
		r.Logger.Info("gateway running on %s", r.Loop.Addr())
		err = <-errc
	case err = <-errc:
	}

	if err != nil {
		r.Logger.Error("accept loop: %v", err)
	}
	start := time.Now()
	if n := r.Loop.Active(); n > 0 {
		r.Logger.Info("waiting up to %v for %d session(s)", r.Grace, n)
	}
	if !r.Loop.Shutdown(r.Grace) {
		r.Logger.Warn("sessions terminated after %s", util.Since(start))
	}

	st := c.Finish(err)
	r.Logger.Verbose("stopped with exit code %d", st.ExitCode)
	return err
}

// ForegroundMode runs under a console.  Cancelling ctx, e.g. on
// SIGINT, is a stop request.
type ForegroundMode struct {
	*Runner
}

// Name implements Mode.
func (m *ForegroundMode) Name() string { return "foreground" }

// Run implements Mode.
func (m *ForegroundMode) Run(ctx context.Context) error {
	c := m.Controller()
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.Done():
		}
	}()
	return m.run(ctx)
}

// ServiceMode runs under the Windows service control manager, which
// sends the stop and interrogate requests.
type ServiceMode struct {
	*Runner
	ServiceName string
}

// Name implements Mode.
func (m *ServiceMode) Name() string { return "service" }

// Run implements Mode.
func (m *ServiceMode) Run(ctx context.Context) error {
	var runErr error
	err := lifecycle.RunService(m.ServiceName, m.Controller(), func() error {
		runErr = m.run(ctx)
		return runErr
	})
	if err != nil {
		return err
	}
	return runErr
}
