package tunnel

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlsnc/internal/errors"
	"tlsnc/util"
)

// SSHConfig holds everything needed to reach an SSH jump host.
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

	// KeepAlive is the interval between keepalive@openssh.com probes.
	// A failed probe closes the tunnel.  0 disables probing.
	KeepAlive time.Duration

	// Prompt reads a secret (password or key passphrase).  Nil means
	// read from the controlling terminal without echo.
	Prompt func(label string) ([]byte, error)
}

// Address returns the gateway's host:port.
func (c *SSHConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel is a [Tunnel] over one SSH client connection.  Outbound
// connections use direct-tcpip channels; remote listeners use
// tcpip-forward.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	stop   chan struct{} // closed by Close to end the keepalive loop
}

var _ Tunnel = (*SSHTunnel)(nil)

// NewSSHTunnel creates a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the gateway and completes the SSH handshake.
// Cancelling ctx aborts a handshake in progress.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	clientCfg, err := t.clientConfig()
	if err != nil {
		return err
	}

	client, err := t.handshake(ctx, clientCfg)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	t.mu.Lock()
	t.client = client
	t.alive = true
	t.stop = stop
	t.mu.Unlock()

	go t.monitor(client)
	if t.config.KeepAlive > 0 {
		go t.keepalive(client, stop)
	}
	return nil
}

// clientConfig assembles authentication and host-key checking.
func (t *SSHTunnel) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := BuildAuthMethods(t.config)
	if err != nil {
		return nil, ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}
	hostKey, err := hostKeyCallback(t.config)
	if err != nil {
		return nil, ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}
	return &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         t.config.ConnTimeout,
	}, nil
}

// handshake opens the TCP connection to the gateway and runs the SSH
// handshake on it.  The socket is closed on any failure.
func (t *SSHTunnel) handshake(ctx context.Context, clientCfg *ssh.ClientConfig) (*ssh.Client, error) {
	addr := t.config.Address()
	t.logger.Debug("SSH: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap(ncerr.OpDial, addr, err)
	}

	// ssh.NewClientConn has no context; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { tcpConn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, clientCfg)
	if !stop() && err == nil {
		sshConn.Close()
		return nil, ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, ctx.Err())
	}
	if err != nil {
		tcpConn.Close()
		return nil, ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}

	t.logger.Debug("SSH: server %s", sshConn.ServerVersion())
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// current returns the connected client, or ErrNotConnected.
func (t *SSHTunnel) current() (*ssh.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.alive || t.client == nil {
		return nil, ncerr.ErrNotConnected
	}
	return t.client, nil
}

// Dial forwards a connection through the tunnel.  Names in address
// are resolved by the gateway.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := t.current()
	if err != nil {
		return nil, err
	}
	t.logger.Debug("tunnel: dialing %s %s", network, address)
	return client.DialContext(ctx, network, address)
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}

// keepalive probes the gateway until stop is closed.  A failed probe
// closes client so monitor marks the tunnel down and waiting channels
// and listeners unblock.
func (t *SSHTunnel) keepalive(client *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(t.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("SSH keepalive to %s failed: %v", t.config.Address(), err)
				client.Close()
				return
			}
			t.logger.Debug("SSH keepalive ok")
		}
	}
}
