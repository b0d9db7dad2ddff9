package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"execgate/internal/retry"
	"execgate/tunnel"
	"execgate/util"
)

// SSHProvider publishes the accept loop on a remote SSH gateway.  The
// gateway is connected on Listen, retrying with Backoff, and torn down
// on Close.
type SSHProvider struct {
	Gateway    tunnel.Gateway
	BindAddr   string // address to bind on the gateway; "" lets it decide
	RemotePort int
	Backoff    *retry.Backoff
	Logger     *util.Logger

	mu        sync.Mutex
	connected bool
}

// NewSSHProvider returns a provider that reaches the gateway described
// by cfg.
func NewSSHProvider(cfg *tunnel.SSHConfig, bindAddr string, remotePort int, logger *util.Logger) *SSHProvider {
	return &SSHProvider{
		Gateway:    tunnel.NewSSHGateway(cfg, logger),
		BindAddr:   bindAddr,
		RemotePort: remotePort,
		Logger:     logger,
	}
}

// Listen connects the gateway if needed and requests the remote port.
func (p *SSHProvider) Listen(ctx context.Context) (net.Listener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bo := p.Backoff
	if bo == nil {
		bo = retry.DefaultBackoff()
		bo.MaxAttempts = 5
	}

	var ln net.Listener
	err := bo.Do(ctx, func(attempt int) error {
		if !p.connected || !p.Gateway.IsAlive() {
			if attempt > 1 {
				p.logf("gateway connect, attempt %d", attempt)
			}
			if err := p.Gateway.Connect(ctx); err != nil {
				return err
			}
			p.connected = true
		}
		var err error
		ln, err = p.Gateway.Listen(p.BindAddr, p.RemotePort)
		if err != nil {
			// A refused forward will not change on retry.
			return retry.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("publishing on gateway: %w", err)
	}
	return ln, nil
}

// Close disconnects from the gateway.
func (p *SSHProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return p.Gateway.Close()
}

func (p *SSHProvider) String() string {
	return fmt.Sprintf("ssh-forward://%s", util.FormatAddr(p.BindAddr, p.RemotePort))
}

func (p *SSHProvider) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Verbose(format, args...)
	}
}
