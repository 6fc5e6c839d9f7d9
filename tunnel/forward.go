package tunnel

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlsnc/internal/errors"
)

// Wire formats from RFC 4254 §7.

type forwardRequest struct {
	Addr string
	Port uint32
}

type forwardReply struct {
	Port uint32
}

type forwardedPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// Listen asks the gateway to listen on address and forward every
// connection it accepts back through the tunnel.  Port 0 lets the
// gateway pick; the chosen port is reported by the listener's Addr.
//
// Forwarded channels are matched unconditionally rather than by the
// bind address the gateway echoes back, since some servers report a
// different address than the one requested.  Only one Listen per
// connected tunnel is supported.
func (t *SSHTunnel) Listen(address string) (net.Listener, error) {
	client, err := t.current()
	if err != nil {
		return nil, err
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q", portStr)
	}

	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("remote listener already active on this tunnel")
	}

	req := forwardRequest{Addr: host, Port: uint32(port)}
	ok, payload, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&req))
	if err != nil {
		return nil, ncerr.WrapSSH("forward", t.config.Host, t.config.Port, err)
	}
	if !ok {
		return nil, ncerr.WrapSSH("forward", t.config.Host, t.config.Port,
			fmt.Errorf("tcpip-forward %s denied by gateway", address))
	}
	if req.Port == 0 {
		var reply forwardReply
		if err := ssh.Unmarshal(payload, &reply); err == nil {
			req.Port = reply.Port
		}
	}

	t.logger.Debug("tunnel: gateway listening on %s", net.JoinHostPort(host, strconv.Itoa(int(req.Port))))

	return &remoteListener{
		client:   client,
		req:      req,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

// remoteListener is a [net.Listener] fed by forwarded-tcpip channels.
type remoteListener struct {
	client   *ssh.Client
	req      forwardRequest
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

func (l *remoteListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case nch, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := nch.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var raddr net.Addr = &net.TCPAddr{}
		var p forwardedPayload
		if err := ssh.Unmarshal(nch.ExtraData(), &p); err == nil {
			raddr = &net.TCPAddr{IP: net.ParseIP(p.OriginAddr), Port: int(p.OriginPort)}
		}
		return &channelConn{Channel: ch, laddr: l.Addr(), raddr: raddr}, nil
	}
}

// Close cancels the remote forward and unblocks Accept.
func (l *remoteListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		// The connection may already be gone.
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&l.req)) //nolint:errcheck
	})
	return nil
}

func (l *remoteListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.req.Addr), Port: int(l.req.Port)}
}

// channelConn adapts an [ssh.Channel] to [net.Conn].  Deadlines are
// not supported by SSH channels and are ignored.
type channelConn struct {
	ssh.Channel
	laddr, raddr net.Addr
}

func (c *channelConn) LocalAddr() net.Addr                { return c.laddr }
func (c *channelConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *channelConn) SetDeadline(_ time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(_ time.Time) error { return nil }
