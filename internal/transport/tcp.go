package transport

import (
	"context"
	"fmt"
	"net"

	ncerr "execgate/internal/errors"
)

// TCPProvider listens on a local TCP address.
type TCPProvider struct {
	Address string // host:port; port 0 picks a free one
}

// Listen binds Address.
func (p *TCPProvider) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.Address)
	if err != nil {
		return nil, ncerr.Wrap("listen", p.Address, err)
	}
	return ln, nil
}

// Close is a no-op for plain TCP.
func (p *TCPProvider) Close() error { return nil }

func (p *TCPProvider) String() string { return fmt.Sprintf("tcp://%s", p.Address) }
