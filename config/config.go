// Package config defines the runtime configuration for tlsnc and provides
// helpers for parsing ports and SSH jump-host specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"tlsnc/internal/security"
)

// Config holds every tuneable for a single tlsnc session.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host            string
	Port            int // destination port (connect mode)
	LocalPort       int // -p: listen port, or source port when connecting
	Listen          bool
	Timeout         time.Duration // connect + handshake budget (0 = none)
	KeepOpen        bool
	NoDNS           bool
	Retries         int           // extra dial attempts on retryable errors
	ShutdownTimeout time.Duration // bound on sending close_notify

	// ── TLS ──────────────────────────────────────────────────────────
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Insecure   bool
	ALPN       []string
	MinTLS     string // "1.0" … "1.3"

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	SSHKeepAlive   time.Duration // 0 disables keepalive probes

	// ── Execution ────────────────────────────────────────────────────
	Execute string // -e: program path
	Command string // -c: shell command

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	ZeroIO  bool
	Stats   bool
}

// TLSOptions converts the TLS section into builder options.
func (c *Config) TLSOptions() (security.Options, error) {
	v, err := security.ParseVersion(c.MinTLS)
	if err != nil {
		return security.Options{}, err
	}
	return security.Options{
		CAFile:     c.CAFile,
		CertFile:   c.CertFile,
		KeyFile:    c.KeyFile,
		ServerName: c.ServerName,
		Insecure:   c.Insecure,
		ALPN:       c.ALPN,
		MinVersion: v,
	}, nil
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec, if set, into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}
