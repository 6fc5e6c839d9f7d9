package core

import (
	"fmt"
	"net"
	"strconv"

	"tlsnc/config"
	"tlsnc/internal/capability"
	"tlsnc/internal/metrics"
	"tlsnc/internal/retry"
	"tlsnc/internal/security"
	"tlsnc/internal/transport"
	"tlsnc/tlsstream"
	"tlsnc/tunnel"
	"tlsnc/util"
)

// Build constructs the appropriate Mode from the given configuration.
// stats may be nil.
func Build(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger, stats)
	}
	return buildConnect(cfg, logger, stats)
}

// ── mode builders ────────────────────────────────────────────────────

func buildConnect(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	if cfg.NoDNS && !cfg.TunnelEnabled && !util.IsIPLiteral(cfg.Host) {
		return nil, fmt.Errorf(
			"cannot parse %q as an IP address (DNS disabled with -n)",
			cfg.Host)
	}

	opts, err := cfg.TLSOptions()
	if err != nil {
		return nil, err
	}
	conf, err := security.ClientConfig(opts, logger)
	if err != nil {
		return nil, err
	}

	return &ConnectMode{
		Connector:  buildConnector(cfg, logger, stats),
		Context:    tlsstream.NewClientContext(conf),
		Host:       cfg.Host,
		Port:       uint16(cfg.Port),
		Capability: buildCapability(cfg),
		Logger:     logger,
	}, nil
}

func buildListen(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	opts, err := cfg.TLSOptions()
	if err != nil {
		return nil, err
	}
	conf, err := security.ServerConfig(opts, logger)
	if err != nil {
		return nil, err
	}

	var listener transport.Listener = &transport.TCPListener{}
	if cfg.TunnelEnabled {
		listener = transport.NewSSHDialer(sshConfig(cfg), logger)
	}

	return &ListenMode{
		Address:  net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.LocalPort)),
		Listener: listener,
		KeepOpen: cfg.KeepOpen,
		Timeout:  cfg.Timeout,
		Connector: &tlsstream.Connector{
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
			Metrics:         stats,
		},
		Context:    tlsstream.NewServerContext(conf),
		Capability: buildCapability(cfg),
		Logger:     logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildConnector wires resolver, dialer and retry policy.  Through a
// jump host, names are resolved by the gateway.
func buildConnector(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) *tlsstream.Connector {
	var resolver tlsstream.Resolver = tlsstream.SystemResolver{NoDNS: cfg.NoDNS}
	if cfg.TunnelEnabled {
		resolver = tlsstream.PassthroughResolver{}
	}
	return &tlsstream.Connector{
		Resolver:        resolver,
		Dialer:          buildDialer(cfg, logger),
		Retry:           retry.Attempts(cfg.Retries),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
		Metrics:         stats,
	}
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(sshConfig(cfg), logger)
	}

	return &transport.TCPDialer{
		Timeout:   cfg.Timeout,
		LocalPort: cfg.LocalPort,
	}
}

func sshConfig(cfg *config.Config) *tunnel.SSHConfig {
	return &tunnel.SSHConfig{
		User:          cfg.TunnelUser,
		Host:          cfg.TunnelHost,
		Port:          cfg.TunnelPort,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   config.DefaultConnTimeout,
		KeepAlive:     cfg.SSHKeepAlive,
	}
}

// buildCapability selects the per-connection behaviour.
func buildCapability(cfg *config.Config) capability.Capability {
	switch {
	case cfg.ZeroIO:
		return &capability.Probe{}
	case cfg.Execute != "" || cfg.Command != "":
		return &capability.Exec{
			Program: cfg.Execute,
			Command: cfg.Command,
		}
	default:
		return &capability.Relay{}
	}
}
