// Package tunnel publishes a local accept loop on a remote SSH gateway.
// The gateway listens on our behalf ("ssh -R") and hands each inbound
// connection back over the SSH link as a forwarded-tcpip channel.
package tunnel

import (
	"context"
	"net"
)

// Gateway is an encrypted link to a host that can accept connections
// for us.
type Gateway interface {
	// Connect establishes the link.
	Connect(ctx context.Context) error

	// Listen asks the gateway to accept connections on bindAddr:port
	// and returns a listener yielding them.  Port 0 lets the gateway
	// choose; the listener's Addr reports the port it picked.
	Listen(bindAddr string, port int) (net.Listener, error)

	// Close tears down the link and every listener opened over it.
	Close() error

	// IsAlive reports whether the link is still up.
	IsAlive() bool
}
