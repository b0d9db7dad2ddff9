package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "execgate/internal/errors"
	"execgate/util"
)

// DefaultSSHPort is used when a target names no port.
const DefaultSSHPort = 22

// SSHConfig holds everything needed to reach an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
	KeepAlive     time.Duration // 0 disables keepalive requests

	// ExtraAuth is tried before any method derived from the fields
	// above.  Embedders and tests use it to supply credentials without
	// a terminal.
	ExtraAuth []ssh.AuthMethod
}

// Addr returns host:port of the gateway.
func (c *SSHConfig) Addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// ParseTarget splits "user@host[:port]" into its parts.
func ParseTarget(target string) (user, host string, port int, err error) {
	at := strings.LastIndex(target, "@")
	if at <= 0 || at == len(target)-1 {
		return "", "", 0, fmt.Errorf("tunnel target %q: want user@host[:port]", target)
	}
	user, rest := target[:at], target[at+1:]

	if h, p, splitErr := net.SplitHostPort(rest); splitErr == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return "", "", 0, fmt.Errorf("tunnel target %q: invalid port %q", target, p)
		}
		return user, h, n, nil
	}
	return user, rest, DefaultSSHPort, nil
}

// SSHGateway implements [Gateway] with golang.org/x/crypto/ssh.
type SSHGateway struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	done   chan struct{}
}

// NewSSHGateway creates a gateway that is ready to [SSHGateway.Connect].
func NewSSHGateway(cfg *SSHConfig, logger *util.Logger) *SSHGateway {
	if cfg.Port == 0 {
		cfg.Port = DefaultSSHPort
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &SSHGateway{config: cfg, logger: logger}
}

// Connect dials the gateway and completes the SSH handshake.
func (g *SSHGateway) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(g.config)
	if err != nil {
		return ncerr.WrapSSH("auth", g.config.Host, g.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(g.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", g.config.Host, g.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            g.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         g.config.ConnTimeout,
	}

	addr := g.config.Addr()
	g.logger.Debug("SSH: dialing %s as %s", addr, g.config.User)

	dialer := net.Dialer{Timeout: g.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.WrapSSH("handshake", g.config.Host, g.config.Port, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	g.mu.Lock()
	g.client = client
	g.alive = true
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go g.monitor(client, done)
	if g.config.KeepAlive > 0 {
		go g.keepalive(client, done)
	}
	return nil
}

// Listen requests a remote forward on the gateway.
func (g *SSHGateway) Listen(bindAddr string, port int) (net.Listener, error) {
	g.mu.RLock()
	client, alive := g.client, g.alive
	g.mu.RUnlock()
	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	ln, err := listenRemoteForward(client, bindAddr, port)
	if err != nil {
		return nil, ncerr.WrapSSH("forward", g.config.Host, g.config.Port, err)
	}
	g.logger.Verbose("gateway %s accepting on %s", g.config.Addr(), ln.Addr())
	return ln, nil
}

// Close shuts the SSH connection down.  Safe to call more than once.
func (g *SSHGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.alive = false
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

// IsAlive reports whether the SSH connection is still up.
func (g *SSHGateway) IsAlive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.alive
}

// monitor blocks until the connection closes and flips the alive flag.
func (g *SSHGateway) monitor(client *ssh.Client, done chan struct{}) {
	err := client.Wait()
	close(done)

	g.mu.Lock()
	if g.client == client {
		g.alive = false
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Debug("SSH gateway closed: %v", err)
	} else {
		g.logger.Debug("SSH gateway closed")
	}
}

// keepalive probes the gateway periodically and drops the connection
// when a probe fails, which in turn fails every listener's Accept.
func (g *SSHGateway) keepalive(client *ssh.Client, done <-chan struct{}) {
	ticker := time.NewTicker(g.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				g.logger.Error("SSH keepalive to %s failed: %v", g.config.Addr(), err)
				client.Close()
				return
			}
			g.logger.Debug("SSH keepalive OK")
		}
	}
}
