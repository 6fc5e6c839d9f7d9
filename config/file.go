package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the tlsnc.toml key mapping.  Host and port only come
// from the command line.
type fileConfig struct {
	Timeout         string   `toml:"timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	Retries         int      `toml:"retries"`
	NoDNS           bool     `toml:"no_dns"`
	KeepOpen        bool     `toml:"keep_open"`
	Verbose         int      `toml:"verbose"`
	CAFile          string   `toml:"ca_file"`
	CertFile        string   `toml:"cert_file"`
	KeyFile         string   `toml:"key_file"`
	ServerName      string   `toml:"server_name"`
	Insecure        bool     `toml:"insecure"`
	ALPN            []string `toml:"alpn"`
	MinTLS          string   `toml:"tls_min"`
	Tunnel          string   `toml:"tunnel"`
	SSHKey          string   `toml:"ssh_key"`
	SSHAgent        bool     `toml:"ssh_agent"`
	StrictHostKey   bool     `toml:"strict_hostkey"`
	KnownHosts      string   `toml:"known_hosts"`
	SSHKeepAlive    string   `toml:"ssh_keepalive"`
}

// LoadFile overlays the TOML file at path onto cfg.  Only keys present
// in the file override the existing value.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("load config %s: timeout: %w", path, err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return fmt.Errorf("load config %s: shutdown_timeout: %w", path, err)
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("no_dns") {
		cfg.NoDNS = raw.NoDNS
	}
	if meta.IsDefined("keep_open") {
		cfg.KeepOpen = raw.KeepOpen
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	if meta.IsDefined("ca_file") {
		cfg.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("cert_file") {
		cfg.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("server_name") {
		cfg.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("insecure") {
		cfg.Insecure = raw.Insecure
	}
	if meta.IsDefined("alpn") {
		cfg.ALPN = raw.ALPN
	}
	if meta.IsDefined("tls_min") {
		cfg.MinTLS = strings.TrimSpace(raw.MinTLS)
	}
	if meta.IsDefined("tunnel") {
		cfg.TunnelSpec = strings.TrimSpace(raw.Tunnel)
	}
	if meta.IsDefined("ssh_key") {
		cfg.SSHKeyPath = strings.TrimSpace(raw.SSHKey)
	}
	if meta.IsDefined("ssh_agent") {
		cfg.UseSSHAgent = raw.SSHAgent
	}
	if meta.IsDefined("strict_hostkey") {
		cfg.StrictHostKey = raw.StrictHostKey
	}
	if meta.IsDefined("known_hosts") {
		cfg.KnownHostsPath = strings.TrimSpace(raw.KnownHosts)
	}
	if meta.IsDefined("ssh_keepalive") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SSHKeepAlive))
		if err != nil {
			return fmt.Errorf("load config %s: ssh_keepalive: %w", path, err)
		}
		cfg.SSHKeepAlive = d
	}
	return nil
}
