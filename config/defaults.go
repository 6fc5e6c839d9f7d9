package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultMinTLS is the lowest protocol version offered or accepted.
	DefaultMinTLS = "1.2"

	// DefaultConnTimeout bounds the SSH gateway dial.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHKeepAlive is the interval between keepalive probes on
	// an SSH jump-host connection.
	DefaultSSHKeepAlive = 30 * time.Second

	// DefaultShutdownTimeout bounds the close_notify write at teardown
	// so a peer that stopped reading cannot stall exit.
	DefaultShutdownTimeout = 5 * time.Second
)

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		MinTLS:          DefaultMinTLS,
		ShutdownTimeout: DefaultShutdownTimeout,
		SSHKeepAlive:    DefaultSSHKeepAlive,
	}
}
