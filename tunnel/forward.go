package tunnel

// Go's ssh.Client.Listen keys forwarded-tcpip channels by the exact bind
// address it sent.  Gateways that echo back a different address (e.g.
// "0.0.0.0" for "") have every channel rejected.  The listener below
// registers its own forwarded-tcpip handler and accepts all channels.

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// forwardRequest is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type forwardRequest struct {
	Addr string
	Port uint32
}

// forwardReply is the gateway's answer when port 0 was requested.
type forwardReply struct {
	Port uint32
}

// forwardedChannel is the channel-open payload for "forwarded-tcpip"
// (RFC 4254 §7.2).
type forwardedChannel struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// forwardListener implements [net.Listener] over forwarded-tcpip
// channels.
type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept waits for the next connection the gateway forwards.  After
// Close, or once the SSH connection is gone, it returns net.ErrClosed.
func (l *forwardListener) Accept() (net.Conn, error) {
	for {
		select {
		case <-l.done:
			return nil, net.ErrClosed
		case newCh, ok := <-l.incoming:
			if !ok {
				return nil, net.ErrClosed
			}
			ch, reqs, err := newCh.Accept()
			if err != nil {
				// The opener gave up; wait for the next one.
				continue
			}
			go ssh.DiscardRequests(reqs)

			var raddr net.Addr = &net.TCPAddr{}
			var payload forwardedChannel
			if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
				raddr = &net.TCPAddr{
					IP:   net.ParseIP(payload.OriginAddr),
					Port: int(payload.OriginPort),
				}
			}
			return &channelConn{Channel: ch, laddr: l.Addr(), raddr: raddr}, nil
		}
	}
}

// Close cancels the remote forward and unblocks Accept.
func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := forwardRequest{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// Addr returns the address bound on the gateway.
func (l *forwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// channelConn adapts an [ssh.Channel] to [net.Conn].  Deadlines are not
// supported by SSH channels and are ignored.
type channelConn struct {
	ssh.Channel
	laddr, raddr net.Addr
}

func (c *channelConn) LocalAddr() net.Addr              { return c.laddr }
func (c *channelConn) RemoteAddr() net.Addr             { return c.raddr }
func (c *channelConn) SetDeadline(time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(time.Time) error { return nil }

// listenRemoteForward sends tcpip-forward and returns a listener for
// the channels that follow.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (net.Listener, error) {
	// Must be registered before the library registers its own.
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := forwardRequest{Addr: bindAddr, Port: uint32(bindPort)}
	ok, reply, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward request denied by gateway")
	}

	port := uint32(bindPort)
	if port == 0 {
		var r forwardReply
		if err := ssh.Unmarshal(reply, &r); err != nil {
			return nil, fmt.Errorf("tcpip-forward reply: %w", err)
		}
		port = r.Port
	}

	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}
