// Package transport provides the listeners an accept loop can take
// connections from: a plain TCP socket, or a port published on a
// remote SSH gateway.  What happens over each connection is the
// session layer's business.
package transport

import (
	"context"
	"net"
)

// Provider opens the listener for one run of an accept loop.
type Provider interface {
	// Listen binds and returns a ready listener.
	Listen(ctx context.Context) (net.Listener, error)

	// Close releases anything the provider holds beyond the listener
	// itself (e.g. an SSH connection).  Stateless providers return nil.
	Close() error

	// String describes where connections arrive, for logs.
	String() string
}
