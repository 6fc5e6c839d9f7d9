package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	ncerr "tlsnc/internal/errors"
	"tlsnc/tunnel"
	"tlsnc/util"
)

// SSHDialer opens raw connections from an SSH jump host, or listens on
// it.  The tunnel is connected on the first Dial or Listen,
// re-established if it has dropped between dials, and torn down on
// Close.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	config *tunnel.SSHConfig
	logger *util.Logger
	mu     sync.Mutex
	up     bool
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		config: cfg,
		logger: logger.With("jump", fmt.Sprintf("%s@%s:%d", cfg.User, cfg.Host, cfg.Port)),
	}
}

// ensure brings the tunnel up unless it is already alive.
func (d *SSHDialer) ensure(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.up && d.tunnel.IsAlive() {
		return nil
	}
	if d.up {
		d.logger.Warn("SSH tunnel dropped, reconnecting")
		d.tunnel.Close() //nolint:errcheck
		d.up = false
	}

	d.logger.Verbose("establishing SSH tunnel")
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.up = true
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address from the far side of the tunnel, so the
// jump host resolves any name in address.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.ensure(ctx); err != nil {
		return nil, err
	}
	conn, err := d.tunnel.Dial(ctx, network, address)
	if err != nil {
		return nil, ncerr.WrapSSH("forward", d.config.Host, d.config.Port, err)
	}
	return conn, nil
}

// Listen binds address on the jump host.  Connections accepted there
// arrive through the tunnel.
func (d *SSHDialer) Listen(ctx context.Context, address string) (net.Listener, error) {
	if err := d.ensure(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Listen(address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.up {
		return nil
	}
	d.up = false
	return d.tunnel.Close()
}
