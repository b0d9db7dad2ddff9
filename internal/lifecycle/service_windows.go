//go:build windows

package lifecycle

import (
	"golang.org/x/sys/windows/svc"
)

// IsService reports whether the process was started by the service
// control manager.
func IsService() (bool, error) {
	return svc.IsWindowsService()
}

// RunService registers name with the service control manager and
// drives c from its requests while run executes.  It returns when run
// has returned and the final status has been reported.
func RunService(name string, c *Controller, run func() error) error {
	return svc.Run(name, &handler{c: c, run: run})
}

type handler struct {
	c   *Controller
	run func() error
}

const accepted = svc.AcceptStop | svc.AcceptShutdown

func (h *handler) Execute(_ []string, reqs <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	errc := make(chan error, 1)
	go func() { errc <- h.run() }()

	h.c.Started()
	changes <- svc.Status{State: svc.Running, Accepts: accepted}

	for {
		select {
		case err := <-errc:
			st := h.c.Finish(err)
			changes <- svc.Status{State: svc.StopPending}
			if st.ExitCode != ExitClean {
				return true, uint32(st.ExitCode)
			}
			return false, 0

		case req := <-reqs:
			switch req.Cmd {
			case svc.Interrogate:
				changes <- toSvcStatus(h.c.Handle(CmdInterrogate))
			case svc.Stop:
				changes <- toSvcStatus(h.c.Handle(CmdStop))
			case svc.Shutdown:
				changes <- toSvcStatus(h.c.Handle(CmdShutdown))
			}
		}
	}
}

func toSvcStatus(st Status) svc.Status {
	switch st.State {
	case StateStartPending:
		return svc.Status{State: svc.StartPending}
	case StateRunning:
		return svc.Status{State: svc.Running, Accepts: accepted}
	case StateStopPending:
		return svc.Status{State: svc.StopPending}
	default:
		return svc.Status{State: svc.Stopped, ServiceSpecificExitCode: uint32(st.ExitCode)}
	}
}
